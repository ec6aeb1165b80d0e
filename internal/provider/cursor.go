package provider

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/sesh-dev/sesh/internal/cache"
	"github.com/sesh-dev/sesh/internal/model"
	"github.com/sesh-dev/sesh/internal/parser"
)

// Cursor reads Cursor CLI agent sessions from a chats directory
// laid out as <md5(project path)>/<session id>/store.db. The
// hash is not reversible, so project attribution needs either a
// known path whose hash matches the directory name or a
// workspace path embedded in the store's blobs.
type Cursor struct {
	root  string
	cache *cache.Cache
	known map[string]string // md5 hex -> project path
}

func NewCursor(root string, c *cache.Cache) *Cursor {
	return &Cursor{
		root:  root,
		cache: c,
		known: make(map[string]string),
	}
}

func (p *Cursor) Type() model.ProviderType { return model.ProviderCursor }

// SetKnownPaths registers candidate project paths (typically
// those discovered by the other providers) so their md5 hashes
// can be matched against chat directory names.
func (p *Cursor) SetKnownPaths(paths []string) {
	for _, path := range paths {
		p.known[hashPath(path)] = path
	}
}

func hashPath(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

func (p *Cursor) Discover() ([]model.SessionMeta, error) {
	hashDirs, err := os.ReadDir(p.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.root, err)
	}

	var all []model.SessionMeta
	for _, hashDir := range hashDirs {
		if !hashDir.IsDir() {
			continue
		}
		dirPath := filepath.Join(p.root, hashDir.Name())
		sessionDirs, err := os.ReadDir(dirPath)
		if err != nil {
			log.Printf("cursor: skipping %s: %v", dirPath, err)
			continue
		}
		knownPath := p.known[hashDir.Name()]

		for _, sessionDir := range sessionDirs {
			if !sessionDir.IsDir() {
				continue
			}
			dbPath := filepath.Join(
				dirPath, sessionDir.Name(), "store.db",
			)
			if !pathExists(dbPath) {
				continue
			}
			sessionID := sessionDir.Name()
			sessions, err := p.cache.GetOrParse(
				model.ProviderCursor, dbPath,
				func(sourcePath string) ([]model.SessionMeta, error) {
					return parseCursorStore(
						sourcePath, sessionID, knownPath,
					)
				},
			)
			if err != nil {
				log.Printf("cursor: skipping %s: %v", dbPath, err)
				continue
			}
			// A cached entry may predate learning this
			// directory's project path. Override on a copy;
			// the returned slice aliases the cache's entry.
			if knownPath != "" {
				overridden := make(
					[]model.SessionMeta, len(sessions),
				)
				copy(overridden, sessions)
				for i := range overridden {
					overridden[i].ProjectPath = knownPath
				}
				sessions = overridden
			}
			all = append(all, sessions...)
		}
	}
	return all, nil
}

// parseCursorStore reads one store.db into session metadata.
// Attribution order: known path for the hash, workspace path
// found in the blobs, then the unknown bucket.
func parseCursorStore(
	dbPath, sessionID, knownPath string,
) ([]model.SessionMeta, error) {
	storeMeta, err := parser.ReadCursorStore(dbPath)
	if err != nil {
		return nil, err
	}
	projectPath := knownPath
	if projectPath == "" {
		projectPath = storeMeta.WorkspacePath
	}
	if projectPath == "" {
		projectPath = model.UnknownProject
	}
	return []model.SessionMeta{{
		ID:           sessionID,
		Provider:     model.ProviderCursor,
		ProjectPath:  model.NormalizePath(projectPath),
		Summary:      storeMeta.Title,
		CreatedAt:    storeMeta.CreatedAt,
		UpdatedAt:    storeMeta.CreatedAt,
		MessageCount: storeMeta.MessageCount,
		Model:        storeMeta.Model,
		SourcePath:   dbPath,
	}}, nil
}

func (p *Cursor) LoadMessages(
	meta model.SessionMeta,
) ([]model.Message, error) {
	return parser.LoadCursorMessages(meta.SourcePath)
}

// DeleteSession removes the whole session directory: the store
// file never holds more than one session.
func (p *Cursor) DeleteSession(meta model.SessionMeta) error {
	sessionDir := filepath.Dir(meta.SourcePath)
	if err := os.RemoveAll(sessionDir); err != nil {
		return fmt.Errorf("deleting %s: %w", sessionDir, err)
	}
	p.cache.Drop(meta.SourcePath)
	return nil
}

func (p *Cursor) MoveProject(
	oldPath, newPath string,
) model.MoveReport {
	report := model.MoveReport{
		Provider: model.ProviderCursor,
		Status:   model.MoveSucceeded,
	}
	oldDir := filepath.Join(p.root, hashPath(oldPath))
	newDir := filepath.Join(p.root, hashPath(newPath))

	var chatsDir string
	switch {
	case isDir(oldDir):
		if pathExists(newDir) {
			return moveFailed(model.ProviderCursor, fmt.Sprintf(
				"target chats directory already exists: %s",
				newDir,
			))
		}
		if err := os.Rename(oldDir, newDir); err != nil {
			return moveFailed(model.ProviderCursor, fmt.Sprintf(
				"renaming chats directory: %v", err,
			))
		}
		report.DirsRenamed = 1
		chatsDir = newDir
	case isDir(newDir):
		chatsDir = newDir
	default:
		report.Status = model.MoveSkipped
		return report
	}

	for _, dbPath := range cursorStoreFiles(chatsDir) {
		modified, err := parser.RewriteCursorStore(
			dbPath, oldPath, newPath,
		)
		if err != nil {
			// Best effort: an unreadable store must not
			// abort the rest of the move.
			log.Printf("cursor: updating %s: %v", dbPath, err)
			continue
		}
		if modified {
			report.FilesModified++
		}
	}

	p.cache.InvalidateUnder(oldDir)
	p.cache.InvalidateUnder(newDir)
	return report
}

func (p *Cursor) PlanMove(
	oldPath, newPath string,
) model.MoveReport {
	report := model.MoveReport{
		Provider: model.ProviderCursor,
		Status:   model.MoveSucceeded,
	}
	oldDir := filepath.Join(p.root, hashPath(oldPath))
	newDir := filepath.Join(p.root, hashPath(newPath))

	if isDir(oldDir) && pathExists(newDir) {
		return moveFailed(model.ProviderCursor, fmt.Sprintf(
			"target chats directory already exists: %s", newDir,
		))
	}

	var scanDir string
	switch {
	case isDir(oldDir):
		report.DirsRenamed = 1
		scanDir = oldDir
	case isDir(newDir):
		scanDir = newDir
	default:
		report.Status = model.MoveSkipped
		return report
	}

	for _, dbPath := range cursorStoreFiles(scanDir) {
		if parser.CursorStoreNeedsRewrite(dbPath, oldPath) {
			report.FilesModified++
		}
	}
	return report
}

// cursorStoreFiles finds every store.db beneath dir.
func cursorStoreFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(
		dir,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && d.Name() == "store.db" {
				files = append(files, path)
			}
			return nil
		},
	)
	return files
}
