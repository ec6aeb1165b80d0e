package provider

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesh-dev/sesh/internal/model"
)

// writeCursorSession creates <md5(projectPath)>/<sessionID>/store.db
// under root and returns the store path.
func writeCursorSession(
	t *testing.T, root, projectPath, sessionID, title string,
	blobs ...string,
) string {
	t.Helper()
	dir := filepath.Join(root, hashPath(projectPath), sessionID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dbPath := filepath.Join(dir, "store.db")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE meta (key TEXT, value BLOB)")
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE blobs (id TEXT, data BLOB)")
	require.NoError(t, err)

	metaJSON, err := json.Marshal(map[string]any{
		"name":      title,
		"createdAt": "2024-05-01T12:00:00Z",
	})
	require.NoError(t, err)
	_, err = db.Exec(
		"INSERT INTO meta (key, value) VALUES ('0', ?)",
		[]byte(hex.EncodeToString(metaJSON)),
	)
	require.NoError(t, err)

	for i, blob := range blobs {
		_, err = db.Exec(
			"INSERT INTO blobs (id, data) VALUES (?, ?)",
			string(rune('a'+i)), []byte(blob),
		)
		require.NoError(t, err)
	}
	return dbPath
}

func userBlob(t *testing.T, text string) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"role": "user", "content": text,
	})
	require.NoError(t, err)
	return string(data)
}

func TestCursorDiscoverKnownPath(t *testing.T) {
	root := t.TempDir()
	writeCursorSession(
		t, root, "/home/me/webapp", "sess-1", "Fix the login flow",
		userBlob(t, "login breaks on refresh"),
	)

	p := NewCursor(root, newTestCache(t))
	p.SetKnownPaths([]string{"/home/me/webapp", "/home/me/other"})

	sessions, err := p.Discover()
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, model.ProviderCursor, s.Provider)
	assert.Equal(t, "/home/me/webapp", s.ProjectPath)
	assert.Equal(t, "Fix the login flow", s.Summary)
	assert.Equal(t, 1, s.MessageCount)
}

func TestCursorDiscoverWorkspaceFallback(t *testing.T) {
	root := t.TempDir()
	writeCursorSession(
		t, root, "/unregistered/project", "sess-1", "Untracked",
		userBlob(t, "Workspace Path: /unregistered/project\nOS: linux"),
	)

	p := NewCursor(root, newTestCache(t))
	sessions, err := p.Discover()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "/unregistered/project", sessions[0].ProjectPath)
}

func TestCursorDiscoverUnknownBucket(t *testing.T) {
	root := t.TempDir()
	writeCursorSession(
		t, root, "/whatever", "sess-1", "Orphan",
		userBlob(t, "no workspace marker here"),
	)

	p := NewCursor(root, newTestCache(t))
	sessions, err := p.Discover()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.UnknownProject, sessions[0].ProjectPath)
}

func TestCursorDiscoverCachedEntryLearnsPath(t *testing.T) {
	root := t.TempDir()
	writeCursorSession(
		t, root, "/home/me/webapp", "sess-1", "Learned later",
	)

	c := newTestCache(t)

	// First discovery with no known paths caches the session
	// under the unknown bucket.
	p := NewCursor(root, c)
	sessions, err := p.Discover()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, model.UnknownProject, sessions[0].ProjectPath)

	// A later run that knows the path overrides the cached
	// attribution without re-parsing.
	p2 := NewCursor(root, c)
	p2.SetKnownPaths([]string{"/home/me/webapp"})
	sessions, err = p2.Discover()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "/home/me/webapp", sessions[0].ProjectPath)

	// The override must not leak into the cached entry: a
	// provider without the known path still sees the
	// parse-time attribution.
	p3 := NewCursor(root, c)
	sessions, err = p3.Discover()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.UnknownProject, sessions[0].ProjectPath)
}

func TestCursorDeleteSession(t *testing.T) {
	root := t.TempDir()
	dbPath := writeCursorSession(
		t, root, "/home/me/webapp", "sess-1", "Doomed",
	)

	c := newTestCache(t)
	p := NewCursor(root, c)
	sessions, err := p.Discover()
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	require.NoError(t, p.DeleteSession(sessions[0]))
	_, err = os.Stat(filepath.Dir(dbPath))
	assert.True(t, os.IsNotExist(err))
	assert.Zero(t, c.Len())
}

func TestCursorMoveProject(t *testing.T) {
	root := t.TempDir()
	writeCursorSession(
		t, root, "/home/me/webapp", "sess-1", "Move me",
		userBlob(t, "see /home/me/webapp/main.go"),
	)

	p := NewCursor(root, newTestCache(t))
	report := p.MoveProject("/home/me/webapp", "/home/me/site")

	assert.Equal(t, model.MoveSucceeded, report.Status)
	assert.Equal(t, 1, report.DirsRenamed)
	assert.Equal(t, 1, report.FilesModified)

	newDB := filepath.Join(
		root, hashPath("/home/me/site"), "sess-1", "store.db",
	)
	assert.True(t, pathExists(newDB))
	assert.False(
		t, pathExists(filepath.Join(root, hashPath("/home/me/webapp"))),
	)
}

func TestCursorPlanMoveMatchesMove(t *testing.T) {
	makeRoot := func(t *testing.T) string {
		root := t.TempDir()
		writeCursorSession(
			t, root, "/home/me/webapp", "sess-1", "Move me",
			userBlob(t, "see /home/me/webapp/main.go"),
		)
		return root
	}

	plan := NewCursor(makeRoot(t), newTestCache(t)).
		PlanMove("/home/me/webapp", "/home/me/site")
	real := NewCursor(makeRoot(t), newTestCache(t)).
		MoveProject("/home/me/webapp", "/home/me/site")
	assert.Equal(t, real, plan)
}

func TestCursorMoveProjectNoData(t *testing.T) {
	p := NewCursor(t.TempDir(), newTestCache(t))
	report := p.MoveProject("/a", "/b")
	assert.Equal(t, model.MoveSkipped, report.Status)
}
