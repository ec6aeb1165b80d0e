// Package discovery orchestrates session discovery across all
// providers and merges the results into a unified project index.
package discovery

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sesh-dev/sesh/internal/cache"
	"github.com/sesh-dev/sesh/internal/config"
	"github.com/sesh-dev/sesh/internal/model"
	"github.com/sesh-dev/sesh/internal/provider"
)

// State tracks where a refresh currently is. Purely
// informational; callers must not gate behavior on it.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateMerging     State = "merging"
	StateIndexed     State = "indexed"
)

// Index is the merged view over every provider: projects keyed
// by working directory plus the flat session list. Both slices
// are deterministically ordered, so two refreshes over unchanged
// data produce equal indexes.
type Index struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Projects    []model.Project     `json:"projects"`
	Sessions    []model.SessionMeta `json:"sessions"`
}

// Session finds a session by identity.
func (idx *Index) Session(key model.SessionKey) (model.SessionMeta, bool) {
	for _, s := range idx.Sessions {
		if s.Provider == key.Provider && s.ID == key.ID {
			return s, true
		}
	}
	return model.SessionMeta{}, false
}

// ProjectSessions returns the sessions under one project path,
// most recent first.
func (idx *Index) ProjectSessions(projectPath string) []model.SessionMeta {
	normalized := model.NormalizePath(projectPath)
	var out []model.SessionMeta
	for _, s := range idx.Sessions {
		if s.ProjectPath == normalized {
			out = append(out, s)
		}
	}
	return out
}

// Store owns the current index and the fingerprint cache.
// Refreshes are serialized; readers get value copies and never
// block a running refresh.
type Store struct {
	cfg   config.Config
	cache *cache.Cache

	refreshMu sync.Mutex

	mu    sync.RWMutex
	state State
	index Index
}

func NewStore(cfg config.Config, c *cache.Cache) *Store {
	return &Store{cfg: cfg, cache: c, state: StateIdle}
}

// Cache exposes the store's fingerprint cache for collaborators
// that invalidate entries (moves, deletes).
func (s *Store) Cache() *cache.Cache { return s.cache }

// State returns the current refresh state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Index returns the most recent merged index.
func (s *Store) Index() Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

func (s *Store) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Refresh runs a full discovery pass: every provider contributes
// its sessions, a provider failure contributes an empty set, and
// the merged index replaces the previous one atomically. The
// fingerprint cache and the index snapshot are persisted at the
// end.
func (s *Store) Refresh() (Index, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.setState(StateDiscovering)

	claude := provider.NewClaude(s.cfg.ClaudeProjectsDir, s.cache)
	codex := provider.NewCodex(s.cfg.CodexSessionsDir, s.cache)
	cursor := provider.NewCursor(s.cfg.CursorChatsDir, s.cache)

	sessions := discoverFrom(claude)
	sessions = append(sessions, discoverFrom(codex)...)

	// Cursor hashes project paths, so it can only attribute
	// sessions to paths it has seen. Feed it everything the
	// other providers found.
	cursor.SetKnownPaths(projectPaths(sessions))
	sessions = append(sessions, discoverFrom(cursor)...)

	s.setState(StateMerging)
	index := merge(sessions)

	s.mu.Lock()
	s.index = index
	s.state = StateIndexed
	s.mu.Unlock()

	if err := s.cache.Save(); err != nil {
		log.Printf("saving cache: %v", err)
	}
	if err := writeIndex(s.cfg.IndexPath, index); err != nil {
		log.Printf("saving index: %v", err)
	}
	return index, nil
}

// discoverFrom runs one provider's discovery, isolating its
// failure from the rest of the pass.
func discoverFrom(p provider.Provider) []model.SessionMeta {
	sessions, err := p.Discover()
	if err != nil {
		log.Printf("%s discovery failed: %v", p.Type(), err)
		return nil
	}
	return sessions
}

func projectPaths(sessions []model.SessionMeta) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, s := range sessions {
		if s.ProjectPath == "" ||
			s.ProjectPath == model.UnknownProject {
			continue
		}
		if _, ok := seen[s.ProjectPath]; ok {
			continue
		}
		seen[s.ProjectPath] = struct{}{}
		paths = append(paths, s.ProjectPath)
	}
	return paths
}

// merge folds per-provider sessions into the unified index.
// Session identity is (provider, id); a duplicate identity keeps
// the first occurrence and logs the rest.
func merge(sessions []model.SessionMeta) Index {
	byKey := make(map[model.SessionKey]struct{}, len(sessions))
	projects := make(map[string]*model.Project)
	var kept []model.SessionMeta

	for _, s := range sessions {
		key := s.Key()
		if _, dup := byKey[key]; dup {
			log.Printf(
				"duplicate session %s/%s dropped",
				key.Provider, key.ID,
			)
			continue
		}
		byKey[key] = struct{}{}

		path := s.ProjectPath
		if path == "" {
			path = model.UnknownProject
		}
		s.ProjectPath = model.NormalizePath(path)
		kept = append(kept, s)

		proj, ok := projects[s.ProjectPath]
		if !ok {
			proj = &model.Project{
				Path:        s.ProjectPath,
				DisplayName: model.DisplayName(s.ProjectPath),
				Counts:      make(map[model.ProviderType]int),
			}
			projects[s.ProjectPath] = proj
		}
		proj.AddProvider(s.Provider)
		proj.Counts[s.Provider]++
		proj.SessionCount++
		if s.UpdatedAt.After(proj.LastActivity) {
			proj.LastActivity = s.UpdatedAt
		}
	}

	index := Index{GeneratedAt: time.Now().UTC()}
	for _, proj := range projects {
		index.Projects = append(index.Projects, *proj)
	}
	sort.Slice(index.Projects, func(i, j int) bool {
		a, b := index.Projects[i], index.Projects[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return a.Path < b.Path
	})

	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.ID < b.ID
	})
	index.Sessions = kept
	return index
}

// writeIndex persists the index snapshot via temp file + rename.
func writeIndex(path string, index Index) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// ReadIndex loads a previously written index snapshot.
func ReadIndex(path string) (Index, error) {
	var index Index
	data, err := os.ReadFile(path)
	if err != nil {
		return index, fmt.Errorf("reading index: %w", err)
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return index, fmt.Errorf("parsing index: %w", err)
	}
	return index, nil
}
