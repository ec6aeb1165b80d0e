// Package resume builds the shell command that reopens a
// session in its provider's own CLI. The command is returned,
// never spawned: process management belongs to the caller.
package resume

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/sesh-dev/sesh/internal/model"
)

// Default per-provider command templates. {session_id} and
// {cwd} are substituted before tokenizing.
var defaultTemplates = map[model.ProviderType]string{
	model.ProviderClaude: "claude --resume {session_id}",
	model.ProviderCodex:  "codex resume {session_id}",
	model.ProviderCursor: "agent --resume={session_id}",
}

// Command is a resolved resume invocation: argv plus the
// directory to run it in.
type Command struct {
	Args []string
	Dir  string
}

// Resolver turns session metadata into resume commands, with
// config-supplied templates overriding the defaults.
type Resolver struct {
	templates map[model.ProviderType]string
}

// NewResolver merges overrides (keyed by provider name, as read
// from the config file) over the default templates.
func NewResolver(overrides map[string]string) *Resolver {
	templates := make(map[model.ProviderType]string)
	for pt, tmpl := range defaultTemplates {
		templates[pt] = tmpl
	}
	for name, tmpl := range overrides {
		templates[model.ProviderType(name)] = tmpl
	}
	return &Resolver{templates: templates}
}

// Resolve builds the resume command for a session. The working
// directory is the session's project path when it is a real
// path, empty otherwise (caller runs from wherever it is).
func (r *Resolver) Resolve(meta model.SessionMeta) (Command, error) {
	tmpl, ok := r.templates[meta.Provider]
	if !ok || tmpl == "" {
		return Command{}, fmt.Errorf(
			"no resume command for provider %q", meta.Provider,
		)
	}

	resolved := strings.NewReplacer(
		"{session_id}", meta.ID,
		"{cwd}", meta.ProjectPath,
	).Replace(tmpl)

	args, err := shlex.Split(resolved)
	if err != nil {
		return Command{}, fmt.Errorf(
			"parsing resume command %q: %w", resolved, err,
		)
	}
	if len(args) == 0 {
		return Command{}, fmt.Errorf(
			"empty resume command for provider %q",
			meta.Provider,
		)
	}

	cmd := Command{Args: args}
	if meta.ProjectPath != "" &&
		meta.ProjectPath != model.UnknownProject {
		cmd.Dir = meta.ProjectPath
	}
	return cmd, nil
}
