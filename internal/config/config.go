package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all application configuration.
type Config struct {
	ClaudeProjectsDir string `json:"claude_projects_dir"`
	CodexSessionsDir  string `json:"codex_sessions_dir"`
	CursorChatsDir    string `json:"cursor_chats_dir"`
	DataDir           string `json:"data_dir"`
	CachePath         string `json:"-"`
	IndexPath         string `json:"-"`

	// Resume command templates keyed by provider name. Each
	// template may use {session_id} and {cwd} placeholders.
	ResumeCommands map[string]string `json:"resume_commands,omitempty"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".sesh")
	cfg := Config{
		ClaudeProjectsDir: filepath.Join(home, ".claude", "projects"),
		CodexSessionsDir:  filepath.Join(home, ".codex", "sessions"),
		CursorChatsDir:    filepath.Join(home, ".cursor", "chats"),
		DataDir:           dataDir,
	}
	cfg.setDerivedPaths()
	return cfg, nil
}

// Load builds a Config by layering: defaults < config file < env.
func Load() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	cfg.setDerivedPaths()
	return cfg, nil
}

func (c *Config) setDerivedPaths() {
	c.CachePath = filepath.Join(c.DataDir, "sessions.json")
	c.IndexPath = filepath.Join(c.DataDir, "index.json")
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		ClaudeProjectsDir string            `json:"claude_projects_dir"`
		CodexSessionsDir  string            `json:"codex_sessions_dir"`
		CursorChatsDir    string            `json:"cursor_chats_dir"`
		ResumeCommands    map[string]string `json:"resume_commands"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.ClaudeProjectsDir != "" {
		c.ClaudeProjectsDir = file.ClaudeProjectsDir
	}
	if file.CodexSessionsDir != "" {
		c.CodexSessionsDir = file.CodexSessionsDir
	}
	if file.CursorChatsDir != "" {
		c.CursorChatsDir = file.CursorChatsDir
	}
	if len(file.ResumeCommands) > 0 {
		c.ResumeCommands = file.ResumeCommands
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("SESH_CLAUDE_PROJECTS_DIR"); v != "" {
		c.ClaudeProjectsDir = v
	}
	if v := os.Getenv("SESH_CODEX_SESSIONS_DIR"); v != "" {
		c.CodexSessionsDir = v
	}
	if v := os.Getenv("SESH_CURSOR_CHATS_DIR"); v != "" {
		c.CursorChatsDir = v
	}
	if v := os.Getenv("SESH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

// EnsureDataDir creates the data directory if needed.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	return nil
}
