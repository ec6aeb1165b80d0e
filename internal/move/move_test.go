package move

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesh-dev/sesh/internal/cache"
	"github.com/sesh-dev/sesh/internal/config"
	"github.com/sesh-dev/sesh/internal/model"
	"github.com/sesh-dev/sesh/internal/testjsonl"
)

type fixture struct {
	cfg   config.Config
	cache *cache.Cache
	old   string
	new   string
}

// newFixture builds a real project directory plus claude and
// codex metadata that reference it.
func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	f := fixture{
		cfg: config.Config{
			ClaudeProjectsDir: filepath.Join(base, "claude"),
			CodexSessionsDir:  filepath.Join(base, "codex"),
			CursorChatsDir:    filepath.Join(base, "cursor"),
			CachePath:         filepath.Join(base, "cache.json"),
		},
		old: filepath.Join(base, "projects", "webapp"),
		new: filepath.Join(base, "projects", "site"),
	}
	f.cache = cache.Load(f.cfg.CachePath)

	require.NoError(t, os.MkdirAll(f.old, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(f.old, "main.go"), []byte("package main\n"), 0o644,
	))

	claudeDir := filepath.Join(
		f.cfg.ClaudeProjectsDir, model.EncodeClaudePath(f.old),
	)
	require.NoError(t, os.MkdirAll(claudeDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(claudeDir, "s1.jsonl"),
		[]byte(testjsonl.Lines(
			testjsonl.ClaudeUserJSON(
				"s1", "u1", "", "work", "2024-04-01T10:00:00Z", f.old,
			),
		)), 0o644,
	))

	codexDir := filepath.Join(f.cfg.CodexSessionsDir, "2024", "04", "01")
	require.NoError(t, os.MkdirAll(codexDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(codexDir, "rollout-a.jsonl"),
		[]byte(testjsonl.Lines(
			testjsonl.CodexSessionMetaJSON(
				"cx-1", f.old, "", "2024-04-01T10:00:00Z",
			),
		)), 0o644,
	))
	return f
}

func reportFor(
	t *testing.T, reports []model.MoveReport, pt model.ProviderType,
) model.MoveReport {
	t.Helper()
	for _, r := range reports {
		if r.Provider == pt {
			return r
		}
	}
	t.Fatalf("no report for %s", pt)
	return model.MoveReport{}
}

func TestRunFullMove(t *testing.T) {
	f := newFixture(t)

	result, err := Run(f.cfg, f.cache, Options{
		OldPath: f.old, NewPath: f.new, Mode: ModeFull,
	})
	require.NoError(t, err)
	assert.False(t, result.DryRun)
	reports := result.Reports
	require.Len(t, reports, 3)

	// The project files themselves moved.
	assert.FileExists(t, filepath.Join(f.new, "main.go"))
	_, err = os.Stat(f.old)
	assert.True(t, os.IsNotExist(err))

	claude := reportFor(t, reports, model.ProviderClaude)
	assert.Equal(t, model.MoveSucceeded, claude.Status)
	assert.Equal(t, 1, claude.DirsRenamed)
	assert.Equal(t, 1, claude.FilesModified)

	codex := reportFor(t, reports, model.ProviderCodex)
	assert.Equal(t, model.MoveSucceeded, codex.Status)
	assert.Equal(t, 1, codex.FilesModified)

	cursor := reportFor(t, reports, model.ProviderCursor)
	assert.Equal(t, model.MoveSkipped, cursor.Status)

	// Claude's project directory was renamed to the new encoding.
	assert.DirExists(t, filepath.Join(
		f.cfg.ClaudeProjectsDir, model.EncodeClaudePath(f.new),
	))
}

func TestRunMetadataOnly(t *testing.T) {
	f := newFixture(t)
	// The project was already moved by hand.
	require.NoError(
		t, os.MkdirAll(filepath.Dir(f.new), 0o755),
	)
	require.NoError(t, os.Rename(f.old, f.new))

	result, err := Run(f.cfg, f.cache, Options{
		OldPath: f.old, NewPath: f.new, Mode: ModeMetadataOnly,
	})
	require.NoError(t, err)

	codex := reportFor(t, result.Reports, model.ProviderCodex)
	assert.Equal(t, 1, codex.FilesModified)
}

func TestRunDryRunMatchesReal(t *testing.T) {
	dry := newFixture(t)
	dryResult, err := Run(dry.cfg, dry.cache, Options{
		OldPath: dry.old, NewPath: dry.new,
		Mode: ModeFull, DryRun: true,
	})
	require.NoError(t, err)
	assert.True(t, dryResult.DryRun)

	// Nothing moved.
	assert.DirExists(t, dry.old)
	assert.FileExists(t, filepath.Join(dry.old, "main.go"))

	real := newFixture(t)
	realResult, err := Run(real.cfg, real.cache, Options{
		OldPath: real.old, NewPath: real.new, Mode: ModeFull,
	})
	require.NoError(t, err)
	assert.False(t, realResult.DryRun)

	// Fixture paths differ between the two runs, but the report
	// shape is identical.
	dryReports, realReports := dryResult.Reports, realResult.Reports
	require.Len(t, dryReports, len(realReports))
	for i := range dryReports {
		assert.Equal(t, realReports[i].Provider, dryReports[i].Provider)
		assert.Equal(t, realReports[i].Status, dryReports[i].Status)
		assert.Equal(
			t, realReports[i].FilesModified, dryReports[i].FilesModified,
		)
		assert.Equal(
			t, realReports[i].DirsRenamed, dryReports[i].DirsRenamed,
		)
	}
}

// A metadata-only dry run must leave every provider file's
// bytes and mtime untouched while reporting the rewrites a real
// run would perform.
func TestRunMetadataOnlyDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.new), 0o755))
	require.NoError(t, os.Rename(f.old, f.new))

	codexFile := filepath.Join(
		f.cfg.CodexSessionsDir, "2024", "04", "01", "rollout-a.jsonl",
	)
	before, err := os.ReadFile(codexFile)
	require.NoError(t, err)
	infoBefore, err := os.Stat(codexFile)
	require.NoError(t, err)

	dryResult, err := Run(f.cfg, f.cache, Options{
		OldPath: f.old, NewPath: f.new,
		Mode: ModeMetadataOnly, DryRun: true,
	})
	require.NoError(t, err)
	assert.True(t, dryResult.DryRun)

	after, err := os.ReadFile(codexFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	infoAfter, err := os.Stat(codexFile)
	require.NoError(t, err)
	assert.True(t, infoBefore.ModTime().Equal(infoAfter.ModTime()))

	realResult, err := Run(f.cfg, f.cache, Options{
		OldPath: f.old, NewPath: f.new, Mode: ModeMetadataOnly,
	})
	require.NoError(t, err)
	assert.False(t, realResult.DryRun)
	assert.Equal(t, realResult.Reports, dryResult.Reports)
}

func TestRunValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		opts Options
	}{
		{"same path", Options{
			OldPath: f.old, NewPath: f.old, Mode: ModeFull,
		}},
		{"old missing", Options{
			OldPath: f.old + "-gone", NewPath: f.new, Mode: ModeFull,
		}},
		{"new exists", Options{
			OldPath: f.old,
			NewPath: filepath.Dir(f.old),
			Mode:    ModeFull,
		}},
		{"metadata only new missing", Options{
			OldPath: f.old, NewPath: f.new, Mode: ModeMetadataOnly,
		}},
		{"unknown mode", Options{
			OldPath: f.old, NewPath: f.new, Mode: "partial",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(f.cfg, f.cache, tt.opts)
			assert.Error(t, err)
			assert.Empty(t, result.Reports)
		})
	}
}

func TestRunNormalizesPaths(t *testing.T) {
	f := newFixture(t)

	// Trailing slashes are stripped before validation, so this is
	// the same-path case.
	_, err := Run(f.cfg, f.cache, Options{
		OldPath: f.old + "/", NewPath: f.old, Mode: ModeFull,
	})
	assert.Error(t, err)
}
