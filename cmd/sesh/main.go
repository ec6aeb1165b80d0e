// Command sesh is a unified browser core for coding-agent
// conversation logs. It discovers Claude Code, Codex, and Cursor
// sessions, merges them into one project index, and exposes the
// core operations as JSON-printing subcommands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sesh-dev/sesh/internal/cache"
	"github.com/sesh-dev/sesh/internal/config"
	"github.com/sesh-dev/sesh/internal/discovery"
	"github.com/sesh-dev/sesh/internal/model"
	"github.com/sesh-dev/sesh/internal/move"
	"github.com/sesh-dev/sesh/internal/provider"
	"github.com/sesh-dev/sesh/internal/resume"
	"github.com/sesh-dev/sesh/internal/search"
)

var version = "dev"

const watcherDebounce = 500 * time.Millisecond

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "refresh":
		err = runRefresh(os.Args[2:])
	case "projects":
		err = runProjects(os.Args[2:])
	case "sessions":
		err = runSessions(os.Args[2:])
	case "messages":
		err = runMessages(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "move":
		err = runMove(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "resume":
		err = runResume(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("sesh %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("sesh: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`sesh %s - unified coding-agent session browser

Discovers Claude Code, Codex, and Cursor sessions and merges
them into one project index. All output is JSON.

Usage:
  sesh refresh                       Re-discover all sessions
  sesh projects                      List projects
  sesh sessions -project <path>      List a project's sessions
  sesh messages -session <id>        Print a session transcript
  sesh search -query <text>          Full-text search (ripgrep)
  sesh move -old <path> -new <path>  Move a project
       [-metadata-only] [-dry-run]
  sesh delete -session <id>          Delete a session
  sesh resume -session <id>          Print the resume command
  sesh watch                         Auto-refresh on file changes
  sesh version                       Show version
`, version)
}

// setup loads config and opens the fingerprint cache and store.
func setup() (config.Config, *discovery.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return cfg, nil, err
	}
	c := cache.Load(cfg.CachePath)
	return cfg, discovery.NewStore(cfg, c), nil
}

// currentIndex returns the stored snapshot, refreshing when none
// exists yet.
func currentIndex(
	cfg config.Config, store *discovery.Store,
) (discovery.Index, error) {
	index, err := discovery.ReadIndex(cfg.IndexPath)
	if err == nil {
		return index, nil
	}
	return store.Refresh()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, store, err := setup()
	if err != nil {
		return err
	}
	index, err := store.Refresh()
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"projects":     len(index.Projects),
		"sessions":     len(index.Sessions),
		"generated_at": index.GeneratedAt,
	})
}

func runProjects(args []string) error {
	fs := flag.NewFlagSet("projects", flag.ExitOnError)
	refresh := fs.Bool("refresh", false, "re-discover first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, store, err := setup()
	if err != nil {
		return err
	}
	var index discovery.Index
	if *refresh {
		index, err = store.Refresh()
	} else {
		index, err = currentIndex(cfg, store)
	}
	if err != nil {
		return err
	}
	return printJSON(index.Projects)
}

func runSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	project := fs.String("project", "", "project path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" {
		return errors.New("sessions: -project is required")
	}
	cfg, store, err := setup()
	if err != nil {
		return err
	}
	index, err := currentIndex(cfg, store)
	if err != nil {
		return err
	}
	return printJSON(index.ProjectSessions(*project))
}

// findSession resolves a session ID, optionally disambiguated by
// provider.
func findSession(
	index discovery.Index, id, providerName string,
) (model.SessionMeta, error) {
	if providerName != "" {
		meta, ok := index.Session(model.SessionKey{
			Provider: model.ProviderType(providerName),
			ID:       id,
		})
		if !ok {
			return meta, fmt.Errorf(
				"session %s/%s not found", providerName, id,
			)
		}
		return meta, nil
	}

	var matches []model.SessionMeta
	for _, s := range index.Sessions {
		if s.ID == id {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return model.SessionMeta{}, fmt.Errorf(
			"session %s not found", id,
		)
	case 1:
		return matches[0], nil
	default:
		return model.SessionMeta{}, fmt.Errorf(
			"session %s exists under multiple providers, "+
				"pass -provider", id,
		)
	}
}

func providerFor(
	cfg config.Config, store *discovery.Store,
	pt model.ProviderType,
) (provider.Provider, error) {
	for _, p := range provider.All(cfg, store.Cache()) {
		if p.Type() == pt {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown provider %q", pt)
}

func runMessages(args []string) error {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	session := fs.String("session", "", "session id")
	providerName := fs.String("provider", "", "provider name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return errors.New("messages: -session is required")
	}
	cfg, store, err := setup()
	if err != nil {
		return err
	}
	index, err := currentIndex(cfg, store)
	if err != nil {
		return err
	}
	meta, err := findSession(index, *session, *providerName)
	if err != nil {
		return err
	}
	p, err := providerFor(cfg, store, meta.Provider)
	if err != nil {
		return err
	}
	messages, err := p.LoadMessages(meta)
	if err != nil {
		return err
	}
	return printJSON(messages)
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("query", "", "search query")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *query == "" {
		return errors.New("search: -query is required")
	}
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	results, err := search.New(cfg).Search(
		context.Background(), *query,
	)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func runMove(args []string) error {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	oldPath := fs.String("old", "", "current project path")
	newPath := fs.String("new", "", "new project path")
	metadataOnly := fs.Bool(
		"metadata-only", false,
		"update provider metadata without moving files",
	)
	dryRun := fs.Bool(
		"dry-run", false, "report without modifying anything",
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *oldPath == "" || *newPath == "" {
		return errors.New("move: -old and -new are required")
	}
	cfg, store, err := setup()
	if err != nil {
		return err
	}

	mode := move.ModeFull
	if *metadataOnly {
		mode = move.ModeMetadataOnly
	}
	result, err := move.Run(cfg, store.Cache(), move.Options{
		OldPath: *oldPath,
		NewPath: *newPath,
		Mode:    mode,
		DryRun:  *dryRun,
	})
	if err != nil {
		return err
	}
	if !*dryRun {
		if _, err := store.Refresh(); err != nil {
			log.Printf("refresh after move: %v", err)
		}
	}
	return printJSON(result)
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	session := fs.String("session", "", "session id")
	providerName := fs.String("provider", "", "provider name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return errors.New("delete: -session is required")
	}
	cfg, store, err := setup()
	if err != nil {
		return err
	}
	index, err := currentIndex(cfg, store)
	if err != nil {
		return err
	}
	meta, err := findSession(index, *session, *providerName)
	if err != nil {
		return err
	}
	p, err := providerFor(cfg, store, meta.Provider)
	if err != nil {
		return err
	}
	if err := p.DeleteSession(meta); err != nil {
		return err
	}
	if _, err := store.Refresh(); err != nil {
		log.Printf("refresh after delete: %v", err)
	}
	return printJSON(map[string]any{
		"deleted":  meta.ID,
		"provider": meta.Provider,
	})
}

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	session := fs.String("session", "", "session id")
	providerName := fs.String("provider", "", "provider name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return errors.New("resume: -session is required")
	}
	cfg, store, err := setup()
	if err != nil {
		return err
	}
	index, err := currentIndex(cfg, store)
	if err != nil {
		return err
	}
	meta, err := findSession(index, *session, *providerName)
	if err != nil {
		return err
	}
	cmd, err := resume.NewResolver(cfg.ResumeCommands).Resolve(meta)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"args": cmd.Args,
		"dir":  cmd.Dir,
	})
}

// runWatch refreshes once, then keeps the index current as the
// provider roots change, until interrupted.
func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, store, err := setup()
	if err != nil {
		return err
	}
	if _, err := store.Refresh(); err != nil {
		return err
	}
	log.Printf("indexed; watching for changes")

	refresher := discovery.NewRefresher(store)
	watcher, err := discovery.NewWatcher(
		[]string{
			cfg.ClaudeProjectsDir,
			cfg.CodexSessionsDir,
			cfg.CursorChatsDir,
		},
		watcherDebounce,
		func(paths []string) {
			result := <-refresher.Trigger()
			if result.Err != nil {
				log.Printf("refresh: %v", result.Err)
				return
			}
			log.Printf(
				"refreshed: %d project(s), %d session(s)",
				len(result.Index.Projects),
				len(result.Index.Sessions),
			)
		},
	)
	if err != nil {
		return err
	}
	watcher.Start()
	defer watcher.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
