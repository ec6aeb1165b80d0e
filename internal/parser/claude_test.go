package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesh-dev/sesh/internal/model"
	"github.com/sesh-dev/sesh/internal/testjsonl"
)

func writeProjectFile(
	t *testing.T, dir, name string, lines ...string,
) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(
		t, os.WriteFile(path, []byte(testjsonl.Lines(lines...)), 0o644),
	)
	return path
}

func TestParseClaudeProjectDirBasic(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "s1.jsonl",
		testjsonl.ClaudeUserJSON(
			"s1", "u1", "", "fix the flaky test",
			"2024-03-01T10:00:00Z", "/home/me/proj",
		),
		testjsonl.ClaudeAssistantJSON(
			"s1", "u2", "u1", "done", "claude-opus-4",
			"2024-03-01T10:05:00Z",
		),
	)

	sessions, err := ParseClaudeProjectDir(dir, "/home/me/proj")
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, model.ProviderClaude, s.Provider)
	assert.Equal(t, "/home/me/proj", s.ProjectPath)
	assert.Equal(t, "fix the flaky test", s.Summary)
	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, "claude-opus-4", s.Model)
	assert.Equal(t, dir, s.SourcePath)
	assert.Equal(
		t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		s.CreatedAt,
	)
	assert.Equal(
		t, time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC),
		s.UpdatedAt,
	)
}

func TestParseClaudeProjectDirSummaryChain(t *testing.T) {
	dir := t.TempDir()
	// The summary entry carries no sessionId; it is linked to
	// the session via leafUuid -> some entry's parentUuid.
	writeProjectFile(t, dir, "s1.jsonl",
		testjsonl.ClaudeSummaryJSON("Refactor auth layer", "u2"),
		testjsonl.ClaudeUserJSON(
			"s1", "u1", "", "start", "2024-03-01T10:00:00Z",
		),
		testjsonl.ClaudeAssistantJSON(
			"s1", "u2", "u1", "ok", "", "2024-03-01T10:01:00Z",
		),
		testjsonl.ClaudeUserJSON(
			"s1", "u3", "u2", "continue", "2024-03-01T10:02:00Z",
		),
	)

	sessions, err := ParseClaudeProjectDir(dir, "/p")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Refactor auth layer", sessions[0].Summary)
}

func TestParseClaudeProjectDirSummaryFallback(t *testing.T) {
	t.Run("last user message", func(t *testing.T) {
		dir := t.TempDir()
		long := strings.Repeat("y", 100)
		writeProjectFile(t, dir, "s1.jsonl",
			testjsonl.ClaudeUserJSON(
				"s1", "u1", "", "first", "2024-03-01T10:00:00Z",
			),
			testjsonl.ClaudeUserJSON(
				"s1", "u2", "u1", long, "2024-03-01T10:01:00Z",
			),
		)
		sessions, err := ParseClaudeProjectDir(dir, "/p")
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(
			t, strings.Repeat("y", 80)+"...",
			sessions[0].Summary,
		)
	})

	t.Run("system text skipped", func(t *testing.T) {
		dir := t.TempDir()
		writeProjectFile(t, dir, "s1.jsonl",
			testjsonl.ClaudeUserJSON(
				"s1", "u1", "",
				"<command-name>/clear</command-name>",
				"2024-03-01T10:00:00Z",
			),
		)
		sessions, err := ParseClaudeProjectDir(dir, "/p")
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "New Session", sessions[0].Summary)
	})

	t.Run("json artifact session dropped", func(t *testing.T) {
		dir := t.TempDir()
		writeProjectFile(t, dir, "s1.jsonl",
			testjsonl.ClaudeUserJSON(
				"s1", "u1", "", `{ "result": "ok" }`,
				"2024-03-01T10:00:00Z",
			),
		)
		sessions, err := ParseClaudeProjectDir(dir, "/p")
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})
}

func TestParseClaudeProjectDirThreadGrouping(t *testing.T) {
	dir := t.TempDir()
	// Two session files sharing a thread-root uuid: the second
	// is a resume of the first, only the newer one survives.
	writeProjectFile(t, dir, "a.jsonl",
		testjsonl.ClaudeUserJSON(
			"s1", "root-1", "", "original", "2024-03-01T10:00:00Z",
		),
	)
	writeProjectFile(t, dir, "b.jsonl",
		testjsonl.ClaudeUserJSON(
			"s2", "root-1", "", "original", "2024-03-02T10:00:00Z",
		),
		testjsonl.ClaudeAssistantJSON(
			"s2", "u9", "root-1", "resumed", "",
			"2024-03-02T10:05:00Z",
		),
	)
	// An unrelated thread stays.
	writeProjectFile(t, dir, "c.jsonl",
		testjsonl.ClaudeUserJSON(
			"s3", "root-2", "", "other topic", "2024-03-01T12:00:00Z",
		),
	)

	sessions, err := ParseClaudeProjectDir(dir, "/p")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.Contains(t, ids, "s2")
	assert.Contains(t, ids, "s3")
	assert.NotContains(t, ids, "s1")
}

func TestParseClaudeProjectDirSkipsAgentFiles(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "agent-xyz.jsonl",
		testjsonl.ClaudeUserJSON(
			"sub", "u1", "", "subtask", "2024-03-01T10:00:00Z",
		),
	)
	sessions, err := ParseClaudeProjectDir(dir, "/p")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestExtractClaudeProjectPath(t *testing.T) {
	ts := func(hour int) string {
		return time.Date(
			2024, 3, 1, hour, 0, 0, 0, time.UTC,
		).Format(time.RFC3339)
	}

	t.Run("single cwd", func(t *testing.T) {
		dir := t.TempDir()
		writeProjectFile(t, dir, "s.jsonl",
			testjsonl.ClaudeUserJSON(
				"s1", "u1", "", "hi", ts(10), "/repo/a",
			),
		)
		assert.Equal(t, "/repo/a", ExtractClaudeProjectPath("x", dir))
	})

	t.Run("most frequent wins", func(t *testing.T) {
		dir := t.TempDir()
		lines := make([]string, 0, 6)
		for i := 0; i < 5; i++ {
			lines = append(lines, testjsonl.ClaudeUserJSON(
				"s1", "u1", "", "hi", ts(i+1), "/repo/old",
			))
		}
		// The latest cwd has under a quarter of the top count.
		lines = append(lines, testjsonl.ClaudeUserJSON(
			"s2", "u2", "", "hi", ts(20), "/repo/stray",
		))
		writeProjectFile(t, dir, "s.jsonl", lines...)
		assert.Equal(
			t, "/repo/old", ExtractClaudeProjectPath("x", dir),
		)
	})

	t.Run("recent wins at quarter share", func(t *testing.T) {
		dir := t.TempDir()
		lines := []string{
			testjsonl.ClaudeUserJSON(
				"s1", "u1", "", "hi", ts(1), "/repo/old",
			),
			testjsonl.ClaudeUserJSON(
				"s1", "u2", "u1", "hi", ts(2), "/repo/old",
			),
			testjsonl.ClaudeUserJSON(
				"s1", "u3", "u2", "hi", ts(3), "/repo/old",
			),
			testjsonl.ClaudeUserJSON(
				"s2", "u4", "", "hi", ts(20), "/repo/new",
			),
		}
		writeProjectFile(t, dir, "s.jsonl", lines...)
		assert.Equal(
			t, "/repo/new", ExtractClaudeProjectPath("x", dir),
		)
	})

	t.Run("falls back to directory name", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(
			t, "/Users/me/proj",
			ExtractClaudeProjectPath("-Users-me-proj", dir),
		)
	})
}

func TestLoadClaudeMessages(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "s1.jsonl",
		testjsonl.ClaudeUserJSON(
			"s1", "u1", "", "run the tests", "2024-03-01T10:00:00Z",
		),
		testjsonl.ClaudeAssistantJSON(
			"s1", "u2", "u1",
			[]any{
				testjsonl.ThinkingBlock("which runner to use"),
				testjsonl.ToolUseBlock(
					"tool-1", "Bash",
					map[string]any{"command": "go test ./..."},
				),
			},
			"claude-opus-4", "2024-03-01T10:01:00Z",
		),
		// Tool result arrives as a user entry with a block list.
		`{"type":"user","sessionId":"s1","uuid":"u4","parentUuid":"u2",`+
			`"timestamp":"2024-03-01T10:01:30Z","message":{"role":"user",`+
			`"content":[{"type":"tool_result","tool_use_id":"tool-1",`+
			`"content":"ok\t42 passed"}]}}`,
	)
	writeProjectFile(t, dir, "other.jsonl",
		testjsonl.ClaudeUserJSON(
			"other", "u9", "", "different session",
			"2024-03-01T11:00:00Z",
		),
	)

	msgs, err := LoadClaudeMessages(dir, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "run the tests", msgs[0].Content)
	assert.False(t, msgs[0].IsSystem)

	assert.Equal(t, model.ContentThinking, msgs[1].ContentType)
	assert.Equal(t, "which runner to use", msgs[1].Thinking)

	assert.Equal(t, model.ContentToolUse, msgs[2].ContentType)
	assert.Equal(t, "Bash", msgs[2].ToolName)
	assert.Contains(t, msgs[2].ToolInput, "go test")

	assert.Equal(t, model.ContentToolResult, msgs[3].ContentType)
	assert.Equal(t, model.RoleTool, msgs[3].Role)
	assert.Equal(t, "Bash", msgs[3].ToolName)
	assert.Equal(t, "ok\t42 passed", msgs[3].ToolOutput)

	for i, m := range msgs {
		assert.Equal(t, i, m.Ordinal)
	}
	for i := 1; i < len(msgs); i++ {
		assert.False(
			t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp),
		)
	}
}

func TestRewriteClaudeCwd(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFile(t, dir, "s.jsonl",
		testjsonl.ClaudeUserJSON(
			"s1", "u1", "", "hi", "2024-03-01T10:00:00Z", "/old/path",
		),
		testjsonl.ClaudeUserJSON(
			"s1", "u2", "u1", "hi", "2024-03-01T10:01:00Z", "/other",
		),
		"not json at all",
	)

	modified, err := RewriteClaudeCwd(path, "/old/path", "/new/path")
	require.NoError(t, err)
	assert.True(t, modified)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `"/new/path"`)
	assert.NotContains(t, content, `"/old/path"`)
	assert.Contains(t, content, `"/other"`)
	assert.Contains(t, content, "not json at all")

	// Second pass has nothing left to do.
	modified, err = RewriteClaudeCwd(path, "/old/path", "/new/path")
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestClaudeFileNeedsCwdRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFile(t, dir, "s.jsonl",
		testjsonl.ClaudeUserJSON(
			"s1", "u1", "", "hi", "2024-03-01T10:00:00Z", "/old/path",
		),
	)
	assert.True(t, ClaudeFileNeedsCwdRewrite(path, "/old/path"))
	assert.False(t, ClaudeFileNeedsCwdRewrite(path, "/old"))
}

func TestDeleteClaudeSession(t *testing.T) {
	dir := t.TempDir()
	shared := writeProjectFile(t, dir, "shared.jsonl",
		testjsonl.ClaudeUserJSON(
			"s1", "u1", "", "keep me out", "2024-03-01T10:00:00Z",
		),
		testjsonl.ClaudeUserJSON(
			"s2", "u2", "", "survivor", "2024-03-01T11:00:00Z",
		),
	)
	solo := writeProjectFile(t, dir, "solo.jsonl",
		testjsonl.ClaudeUserJSON(
			"s1", "u3", "", "only victim here", "2024-03-01T12:00:00Z",
		),
	)

	require.NoError(t, DeleteClaudeSession(dir, "s1"))

	data, err := os.ReadFile(shared)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "keep me out")
	assert.Contains(t, string(data), "survivor")

	_, err = os.Stat(solo)
	assert.True(t, os.IsNotExist(err))
}
