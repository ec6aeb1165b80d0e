package resume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesh-dev/sesh/internal/model"
)

func TestResolveDefaults(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		provider model.ProviderType
		want     []string
	}{
		{model.ProviderClaude, []string{"claude", "--resume", "abc"}},
		{model.ProviderCodex, []string{"codex", "resume", "abc"}},
		{model.ProviderCursor, []string{"agent", "--resume=abc"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			cmd, err := r.Resolve(model.SessionMeta{
				ID:          "abc",
				Provider:    tt.provider,
				ProjectPath: "/home/me/proj",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.Args)
			assert.Equal(t, "/home/me/proj", cmd.Dir)
		})
	}
}

func TestResolveOverride(t *testing.T) {
	r := NewResolver(map[string]string{
		"claude": "tmux new-window 'claude --resume {session_id}'",
	})

	cmd, err := r.Resolve(model.SessionMeta{
		ID: "abc", Provider: model.ProviderClaude,
	})
	require.NoError(t, err)
	// The quoted segment stays one argument.
	assert.Equal(t, []string{
		"tmux", "new-window", "claude --resume abc",
	}, cmd.Args)

	// Other providers keep their defaults.
	cmd, err = r.Resolve(model.SessionMeta{
		ID: "xyz", Provider: model.ProviderCodex,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"codex", "resume", "xyz"}, cmd.Args)
}

func TestResolveCwdPlaceholder(t *testing.T) {
	r := NewResolver(map[string]string{
		"codex": "codex resume {session_id} --cd {cwd}",
	})

	cmd, err := r.Resolve(model.SessionMeta{
		ID: "abc", Provider: model.ProviderCodex,
		ProjectPath: "/home/me/proj",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"codex", "resume", "abc", "--cd", "/home/me/proj",
	}, cmd.Args)
}

func TestResolveUnknownProjectHasNoDir(t *testing.T) {
	r := NewResolver(nil)

	cmd, err := r.Resolve(model.SessionMeta{
		ID: "abc", Provider: model.ProviderClaude,
		ProjectPath: model.UnknownProject,
	})
	require.NoError(t, err)
	assert.Empty(t, cmd.Dir)

	cmd, err = r.Resolve(model.SessionMeta{
		ID: "abc", Provider: model.ProviderClaude,
	})
	require.NoError(t, err)
	assert.Empty(t, cmd.Dir)
}

func TestResolveUnknownProvider(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(model.SessionMeta{
		ID: "abc", Provider: model.ProviderType("mystery"),
	})
	assert.Error(t, err)
}

func TestResolveEmptyTemplate(t *testing.T) {
	r := NewResolver(map[string]string{"claude": "  "})
	_, err := r.Resolve(model.SessionMeta{
		ID: "abc", Provider: model.ProviderClaude,
	})
	assert.Error(t, err)
}
