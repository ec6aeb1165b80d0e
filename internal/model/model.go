// Package model holds the shared data model for projects,
// sessions, and messages discovered across providers.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// ProviderType identifies the coding agent that produced a session.
type ProviderType string

const (
	ProviderClaude ProviderType = "claude"
	ProviderCodex  ProviderType = "codex"
	ProviderCursor ProviderType = "cursor"
)

// Providers lists all supported providers. Order is stable and
// used for iteration in discovery, move, and search.
var Providers = []ProviderType{
	ProviderClaude,
	ProviderCodex,
	ProviderCursor,
}

// UnknownProject is the bucket path for sessions whose working
// directory could not be determined from their log data.
const UnknownProject = "unknown"

// SessionKey is the global identity of a session. A bare session
// ID is never unique: two providers may reuse the same ID string.
type SessionKey struct {
	Provider ProviderType `json:"provider"`
	ID       string       `json:"id"`
}

// Project groups sessions under a working-directory path.
// Identity is the normalized absolute path.
type Project struct {
	Path         string               `json:"path"`
	DisplayName  string               `json:"display_name"`
	Providers    []ProviderType       `json:"providers"`
	SessionCount int                  `json:"session_count"`
	Counts       map[ProviderType]int `json:"counts"`
	LastActivity time.Time            `json:"last_activity"`
}

// HasProvider reports whether the project has sessions from the
// given provider.
func (p *Project) HasProvider(pt ProviderType) bool {
	for _, have := range p.Providers {
		if have == pt {
			return true
		}
	}
	return false
}

// AddProvider records a provider badge, keeping order stable.
func (p *Project) AddProvider(pt ProviderType) {
	if !p.HasProvider(pt) {
		p.Providers = append(p.Providers, pt)
	}
}

// SessionMeta is the parsed metadata for one session. Immutable
// once parsed except for the Bookmarked flag, which is owned by
// the bookmark store outside this core and merely carried here.
type SessionMeta struct {
	ID           string       `json:"id"`
	Provider     ProviderType `json:"provider"`
	ProjectPath  string       `json:"project_path"`
	Summary      string       `json:"summary"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	MessageCount int          `json:"message_count"`
	Model        string       `json:"model,omitempty"`
	SourcePath   string       `json:"source_path,omitempty"`
	Bookmarked   bool         `json:"bookmarked,omitempty"`
}

// Key returns the session's global identity.
func (s *SessionMeta) Key() SessionKey {
	return SessionKey{Provider: s.Provider, ID: s.ID}
}

// RoleType identifies the sender of a message.
type RoleType string

const (
	RoleUser      RoleType = "user"
	RoleAssistant RoleType = "assistant"
	RoleSystem    RoleType = "system"
	RoleTool      RoleType = "tool"
)

// ContentType classifies a message content block.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
	ContentThinking   ContentType = "thinking"
)

// Message is one content block of a session, loaded lazily and
// never populated during discovery. IsSystem marks injected
// command/reminder/warmup content the rendering layer hides by
// default.
type Message struct {
	Ordinal     int         `json:"ordinal"`
	Role        RoleType    `json:"role"`
	ContentType ContentType `json:"content_type"`
	Content     string      `json:"content"`
	Timestamp   time.Time   `json:"timestamp,omitzero"`
	ToolName    string      `json:"tool_name,omitempty"`
	ToolInput   string      `json:"tool_input,omitempty"`
	ToolOutput  string      `json:"tool_output,omitempty"`
	Thinking    string      `json:"thinking,omitempty"`
	IsSystem    bool        `json:"is_system,omitempty"`
}

// SearchResult is one hit from the federated search. Derived,
// never persisted.
type SearchResult struct {
	Provider    ProviderType `json:"provider"`
	SessionID   string       `json:"session_id"`
	ProjectPath string       `json:"project_path"`
	MatchedLine string       `json:"matched_line"`
	FilePath    string       `json:"file_path"`
}

// MoveStatus is the outcome of one provider's part of a move.
type MoveStatus string

const (
	MoveSucceeded MoveStatus = "succeeded"
	MoveFailed    MoveStatus = "failed"
	MoveSkipped   MoveStatus = "skipped"
)

// MoveReport records what one provider did (or would do, under
// dry run) during a project move.
type MoveReport struct {
	Provider      ProviderType `json:"provider"`
	Status        MoveStatus   `json:"status"`
	FilesModified int          `json:"files_modified"`
	DirsRenamed   int          `json:"dirs_renamed"`
	Error         string       `json:"error,omitempty"`
}

// NormalizePath cleans a project path for identity comparison.
// Merging sessions from different providers under one Project
// requires exact equality of the normalized path.
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	if cleaned != "/" {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}
	return cleaned
}

// DisplayName derives a short project name from its path.
func DisplayName(projectPath string) string {
	base := filepath.Base(projectPath)
	if base == "." || base == string(filepath.Separator) {
		return projectPath
	}
	return base
}

// EncodeClaudePath encodes a path the way Claude Code names its
// per-project directories: every "/" and space becomes "-", the
// leading slash included ("/Users/me/My Project" ->
// "-Users-me-My-Project").
func EncodeClaudePath(path string) string {
	return strings.ReplaceAll(
		strings.ReplaceAll(path, "/", "-"), " ", "-",
	)
}
