// Package provider implements the per-agent capability surface:
// discovery of session metadata, lazy message loading, session
// deletion, and project-path metadata rewriting for moves.
package provider

import (
	"github.com/sesh-dev/sesh/internal/cache"
	"github.com/sesh-dev/sesh/internal/config"
	"github.com/sesh-dev/sesh/internal/model"
)

// Provider is one coding agent's session store. Implementations
// degrade gracefully: a missing root yields an empty result, a
// broken file is logged and skipped, never fatal to the caller.
type Provider interface {
	Type() model.ProviderType

	// Discover returns session metadata for every session the
	// provider can find, re-using the fingerprint cache.
	Discover() ([]model.SessionMeta, error)

	// LoadMessages loads the full message list for one session.
	LoadMessages(meta model.SessionMeta) ([]model.Message, error)

	// DeleteSession removes exactly the identified session from
	// the provider's store. Shared files keep their other
	// sessions' lines.
	DeleteSession(meta model.SessionMeta) error

	// MoveProject rewrites the provider's metadata after a
	// project path change. It never touches the project files
	// themselves.
	MoveProject(oldPath, newPath string) model.MoveReport

	// PlanMove reports what MoveProject would do, modifying
	// nothing. The report is structurally identical to the one
	// a real move produces.
	PlanMove(oldPath, newPath string) model.MoveReport
}

// All constructs every provider against cfg and c, in stable
// order.
func All(cfg config.Config, c *cache.Cache) []Provider {
	return []Provider{
		NewClaude(cfg.ClaudeProjectsDir, c),
		NewCodex(cfg.CodexSessionsDir, c),
		NewCursor(cfg.CursorChatsDir, c),
	}
}
