package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sesh-dev/sesh/internal/model"
)

const summaryMaxLen = 80

// claudeSessionAcc accumulates per-session state while scanning
// a project directory's JSONL files.
type claudeSessionAcc struct {
	id           string
	summary      string
	createdAt    time.Time
	updatedAt    time.Time
	messageCount int
	model        string
	lastUserMsg  string
	firstMsgUUID string // uuid of the thread-root user entry
}

// listClaudeSessionFiles returns the project's JSONL logs in
// stable order, excluding subagent files.
func listClaudeSessionFiles(projectDir string) []string {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		if strings.HasPrefix(name, "agent-") {
			continue
		}
		files = append(files, filepath.Join(projectDir, name))
	}
	sort.Strings(files)
	return files
}

// ParseClaudeProjectDir parses every session log in a Claude
// project directory. Sessions sharing a thread root (the uuid of
// their first user message) are collapsed to the most recent
// one; the rest are superseded resume copies of the same thread.
func ParseClaudeProjectDir(
	projectDir, projectPath string,
) ([]model.SessionMeta, error) {
	if _, err := os.Stat(projectDir); err != nil {
		return nil, fmt.Errorf("stat %s: %w", projectDir, err)
	}

	sessions := make(map[string]*claudeSessionAcc)
	var order []string
	// Summary entries that arrive without a sessionId, held by
	// leafUuid until an entry's parentUuid claims them.
	pendingSummaries := make(map[string]string)

	for _, file := range listClaudeSessionFiles(projectDir) {
		err := forEachLine(file, func(line string) {
			if !gjson.Valid(line) {
				return
			}
			entryType := gjson.Get(line, "type").Str
			sessionID := gjson.Get(line, "sessionId").Str

			if entryType == "summary" && sessionID == "" {
				if leaf := gjson.Get(line, "leafUuid").Str; leaf != "" {
					if s := gjson.Get(line, "summary").Str; s != "" {
						pendingSummaries[leaf] = s
					}
				}
				return
			}
			if sessionID == "" {
				return
			}

			acc, ok := sessions[sessionID]
			if !ok {
				acc = &claudeSessionAcc{id: sessionID}
				sessions[sessionID] = acc
				order = append(order, sessionID)
			}

			if ts := parseTimestamp(
				gjson.Get(line, "timestamp"),
			); !ts.IsZero() {
				if acc.createdAt.IsZero() || ts.Before(acc.createdAt) {
					acc.createdAt = ts
				}
				if ts.After(acc.updatedAt) {
					acc.updatedAt = ts
				}
			}

			if parent := gjson.Get(line, "parentUuid").Str; parent != "" {
				if s, ok := pendingSummaries[parent]; ok && acc.summary == "" {
					acc.summary = s
				}
			}
			if entryType == "summary" {
				if s := gjson.Get(line, "summary").Str; s != "" {
					acc.summary = s
				}
			}

			msg := gjson.Get(line, "message")
			if !msg.Exists() {
				return
			}
			acc.messageCount++

			role := msg.Get("role").Str
			if role == "assistant" {
				if m := msg.Get("model").Str; m != "" {
					acc.model = m
				}
			}
			if role == "user" {
				// The thread root is the user entry with no parent.
				if gjson.Get(line, "parentUuid").Type == gjson.Null {
					if uuid := gjson.Get(line, "uuid").Str; uuid != "" {
						acc.firstMsgUUID = uuid
					}
				}
				if text := extractText(msg.Get("content")); text != "" &&
					!IsSystemText(text) {
					acc.lastUserMsg = text
				}
			}
		})
		if err != nil {
			continue
		}
	}

	keep := selectLatestPerThread(sessions)

	var result []model.SessionMeta
	for _, id := range order {
		if !keep[id] {
			continue
		}
		acc := sessions[id]
		summary := acc.summary
		if summary == "" {
			if acc.lastUserMsg != "" {
				summary = truncate(flatten(acc.lastUserMsg), summaryMaxLen)
			} else {
				summary = "New Session"
			}
		}
		// Sessions whose summary is a raw JSON blob are tool
		// artifacts, not conversations.
		if strings.HasPrefix(summary, `{ "`) {
			continue
		}
		updated := acc.updatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		created := acc.createdAt
		if created.IsZero() {
			created = updated
		}
		result = append(result, model.SessionMeta{
			ID:           acc.id,
			Provider:     model.ProviderClaude,
			ProjectPath:  projectPath,
			Summary:      summary,
			CreatedAt:    created,
			UpdatedAt:    updated,
			MessageCount: acc.messageCount,
			Model:        acc.model,
			SourcePath:   projectDir,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// selectLatestPerThread groups sessions by thread-root uuid and
// keeps the most recent of each group. Sessions without a thread
// root are always kept.
func selectLatestPerThread(
	sessions map[string]*claudeSessionAcc,
) map[string]bool {
	byRoot := make(map[string][]*claudeSessionAcc)
	keep := make(map[string]bool, len(sessions))

	for _, acc := range sessions {
		if acc.firstMsgUUID == "" {
			keep[acc.id] = true
			continue
		}
		byRoot[acc.firstMsgUUID] = append(byRoot[acc.firstMsgUUID], acc)
	}
	for _, group := range byRoot {
		best := group[0]
		for _, acc := range group[1:] {
			if acc.updatedAt.After(best.updatedAt) {
				best = acc
			}
		}
		keep[best.id] = true
	}
	return keep
}

// ExtractClaudeProjectPath resolves a project directory's real
// working path from the cwd fields inside its logs. When several
// cwds appear, the most frequent wins unless the most recent one
// has at least a quarter of the top count. Falls back to
// decoding the encoded directory name.
func ExtractClaudeProjectPath(dirName, projectDir string) string {
	counts := make(map[string]int)
	var latestCwd string
	var latestTs time.Time

	for _, file := range listClaudeSessionFiles(projectDir) {
		_ = forEachLine(file, func(line string) {
			if !gjson.Valid(line) {
				return
			}
			cwd := gjson.Get(line, "cwd").Str
			if cwd == "" {
				return
			}
			counts[cwd]++
			if ts := parseTimestamp(
				gjson.Get(line, "timestamp"),
			); !ts.IsZero() && ts.After(latestTs) {
				latestTs = ts
				latestCwd = cwd
			}
		})
	}

	if len(counts) == 0 {
		return strings.ReplaceAll(dirName, "-", "/")
	}
	if len(counts) == 1 {
		for cwd := range counts {
			return cwd
		}
	}

	maxCount := 0
	var mostFrequent string
	for cwd, n := range counts {
		if n > maxCount || (n == maxCount && cwd < mostFrequent) {
			maxCount = n
			mostFrequent = cwd
		}
	}
	if latestCwd != "" && counts[latestCwd]*4 >= maxCount {
		return latestCwd
	}
	return mostFrequent
}

// LoadClaudeMessages loads the full transcript of one session.
// sourcePath is the project directory holding the shared JSONL
// logs; entries are filtered by sessionId.
func LoadClaudeMessages(
	sourcePath, sessionID string,
) ([]model.Message, error) {
	var files []string
	if info, err := os.Stat(sourcePath); err == nil && info.IsDir() {
		files = listClaudeSessionFiles(sourcePath)
	} else {
		files = []string{sourcePath}
	}

	var msgs []model.Message
	toolIDs := make(map[string]string)

	for _, file := range files {
		_ = forEachLine(file, func(line string) {
			if !gjson.Valid(line) {
				return
			}
			if gjson.Get(line, "sessionId").Str != sessionID {
				return
			}
			msg := gjson.Get(line, "message")
			if !msg.Exists() {
				return
			}
			ts := parseTimestamp(gjson.Get(line, "timestamp"))
			msgs = appendContentMessages(
				msgs, msg.Get("role").Str,
				msg.Get("content"), ts, toolIDs,
			)
		})
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return renumber(msgs), nil
}

// RewriteClaudeCwd replaces exact cwd matches in a JSONL file,
// rewriting atomically. Reports whether anything changed.
func RewriteClaudeCwd(
	jsonlPath, oldPath, newPath string,
) (bool, error) {
	var out []string
	modified := false

	err := forEachLineRaw(jsonlPath, func(line string) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !gjson.Valid(trimmed) {
			out = append(out, line)
			return
		}
		if gjson.Get(trimmed, "cwd").Str != oldPath {
			out = append(out, line)
			return
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
			out = append(out, line)
			return
		}
		entry["cwd"] = newPath
		encoded, err := json.Marshal(entry)
		if err != nil {
			out = append(out, line)
			return
		}
		out = append(out, string(encoded))
		modified = true
	})
	if err != nil {
		return false, err
	}
	if !modified {
		return false, nil
	}
	return true, replaceFileLines(jsonlPath, out)
}

// ClaudeFileNeedsCwdRewrite reports whether a JSONL file has any
// entry whose cwd exactly matches oldPath. Used for dry runs.
func ClaudeFileNeedsCwdRewrite(jsonlPath, oldPath string) bool {
	needs := false
	_ = forEachLine(jsonlPath, func(line string) {
		if needs || !gjson.Valid(line) {
			return
		}
		if gjson.Get(line, "cwd").Str == oldPath {
			needs = true
		}
	})
	return needs
}

// DeleteClaudeSession removes every line belonging to sessionID
// from the project directory's logs. A file left with no entries
// is deleted outright.
func DeleteClaudeSession(projectDir, sessionID string) error {
	for _, file := range listClaudeSessionFiles(projectDir) {
		var kept []string
		removedAny := false

		err := forEachLineRaw(file, func(line string) {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && gjson.Valid(trimmed) &&
				gjson.Get(trimmed, "sessionId").Str == sessionID {
				removedAny = true
				return
			}
			kept = append(kept, line)
		})
		if err != nil || !removedAny {
			continue
		}

		empty := true
		for _, l := range kept {
			if strings.TrimSpace(l) != "" {
				empty = false
				break
			}
		}
		if empty {
			if err := os.Remove(file); err != nil {
				return fmt.Errorf("removing %s: %w", file, err)
			}
			continue
		}
		if err := replaceFileLines(file, kept); err != nil {
			return err
		}
	}
	return nil
}

// forEachLineRaw is forEachLine without the blank-line filter,
// for rewrites that must preserve every original line.
func forEachLineRaw(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := newLineScanner(f)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	return nil
}
