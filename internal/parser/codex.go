package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sesh-dev/sesh/internal/model"
)

// Codex JSONL entry types.
const (
	codexTypeSessionMeta  = "session_meta"
	codexTypeResponseItem = "response_item"
	codexTypeEventMsg     = "event_msg"
)

var cwdTagRe = regexp.MustCompile(`<cwd>(.*?)</cwd>`)

// ParseCodexSessionFile parses one Codex JSONL session file.
// New-generation files declare session metadata on the first
// line; legacy files carry the working directory inside an
// environment-context text block. A session with no resolvable
// working directory lands in the unknown-project bucket.
func ParseCodexSessionFile(path string) (*model.SessionMeta, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var (
		first        = true
		newFormat    bool
		sessionID    string
		cwd          string
		modelName    string
		firstUserMsg string
		msgCount     int
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := forEachLine(path, func(line string) {
		if !gjson.Valid(line) {
			return
		}
		if ts := parseTimestamp(
			gjson.Get(line, "timestamp"),
		); !ts.IsZero() {
			if createdAt.IsZero() {
				createdAt = ts
			}
			updatedAt = ts
		}

		entryType := gjson.Get(line, "type").Str
		payload := gjson.Get(line, "payload")

		if first {
			first = false
			if entryType == codexTypeSessionMeta {
				newFormat = true
				sessionID = payload.Get("id").Str
				cwd = payload.Get("cwd").Str
				modelName = payload.Get("model").Str
				if modelName == "" {
					modelName = payload.Get("model_provider").Str
				}
				return
			}
		}

		// Legacy format: the working directory is embedded in a
		// marked-up field inside response content blocks.
		if !newFormat {
			payload.Get("content").ForEach(
				func(_, item gjson.Result) bool {
					text := item.Get("text").Str
					if text == "" {
						text = item.Get("input_text").Str
					}
					if m := cwdTagRe.FindStringSubmatch(text); m != nil {
						cwd = m[1]
					}
					return true
				},
			)
		}

		switch entryType {
		case codexTypeEventMsg:
			if payload.Get("type").Str == "user_message" {
				msgCount++
				if firstUserMsg == "" {
					firstUserMsg = payload.Get("message").Str
				}
			}
		case codexTypeResponseItem:
			if newFormat && payload.Get("role").Str == "assistant" {
				msgCount++
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if first {
		return nil, nil // empty file
	}

	if sessionID == "" {
		sessionID = strings.TrimSuffix(
			filepath.Base(path), ".jsonl",
		)
	}

	projectPath := model.UnknownProject
	if cwd != "" {
		projectPath = model.NormalizePath(cwd)
	}

	summary := "Codex Session"
	if firstUserMsg != "" {
		summary = truncate(flatten(firstUserMsg), summaryMaxLen)
	}

	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	return &model.SessionMeta{
		ID:           sessionID,
		Provider:     model.ProviderCodex,
		ProjectPath:  projectPath,
		Summary:      summary,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		MessageCount: msgCount,
		Model:        modelName,
		SourcePath:   path,
	}, nil
}

// LoadCodexMessages loads the full transcript of one Codex
// session file.
func LoadCodexMessages(path string) ([]model.Message, error) {
	var msgs []model.Message
	callIDs := make(map[string]string)

	err := forEachLine(path, func(line string) {
		if !gjson.Valid(line) {
			return
		}
		entryType := gjson.Get(line, "type").Str
		payload := gjson.Get(line, "payload")
		ts := parseTimestamp(gjson.Get(line, "timestamp"))

		switch entryType {
		case codexTypeEventMsg:
			switch payload.Get("type").Str {
			case "user_message":
				if text := payload.Get("message").Str; text != "" {
					msgs = append(msgs, model.Message{
						Role:        model.RoleUser,
						ContentType: model.ContentText,
						Content:     text,
						Timestamp:   ts,
					})
				}
			case "agent_reasoning":
				if text := payload.Get("text").Str; strings.TrimSpace(text) != "" {
					msgs = append(msgs, model.Message{
						Role:        model.RoleAssistant,
						ContentType: model.ContentThinking,
						Thinking:    text,
						Timestamp:   ts,
					})
				}
			}
		case codexTypeResponseItem:
			switch payload.Get("type").Str {
			case "function_call":
				name := payload.Get("name").Str
				if callID := payload.Get("call_id").Str; callID != "" && name != "" {
					callIDs[callID] = name
				}
				msgs = append(msgs, model.Message{
					Role:        model.RoleAssistant,
					ContentType: model.ContentToolUse,
					ToolName:    name,
					ToolInput:   stringifyToolValue(payload.Get("arguments")),
					Timestamp:   ts,
				})
				return
			case "function_call_output":
				msgs = append(msgs, model.Message{
					Role:        model.RoleTool,
					ContentType: model.ContentToolResult,
					ToolName:    callIDs[payload.Get("call_id").Str],
					ToolOutput:  stringifyToolValue(payload.Get("output")),
					Timestamp:   ts,
				})
				return
			}
			role := payload.Get("role").Str
			if role != "assistant" {
				// user/developer response items are injected
				// instructions, not typed messages.
				return
			}
			if text := extractCodexContent(payload); strings.TrimSpace(text) != "" {
				msgs = append(msgs, model.Message{
					Role:        model.RoleAssistant,
					ContentType: model.ContentText,
					Content:     text,
					Timestamp:   ts,
				})
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return renumber(msgs), nil
}

// extractCodexContent joins all text blocks from a response
// item's content array.
func extractCodexContent(payload gjson.Result) string {
	var parts []string
	payload.Get("content").ForEach(
		func(_, block gjson.Result) bool {
			switch block.Get("type").Str {
			case "input_text", "output_text", "text":
				if t := block.Get("text").Str; t != "" {
					parts = append(parts, t)
				}
			}
			return true
		},
	)
	return strings.Join(parts, "\n")
}

// stringifyToolValue renders a tool argument or output value for
// display: strings verbatim, everything else as raw JSON.
func stringifyToolValue(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	if !v.Exists() {
		return ""
	}
	return v.Raw
}

// RewriteCodexFile rewrites working-directory references in a
// Codex session file: the session_meta cwd field on the first
// line (new format) and <cwd> tags inside content text blocks
// (legacy format). Reports whether anything changed.
func RewriteCodexFile(
	path, oldPath, newPath string,
) (bool, error) {
	oldTag := "<cwd>" + oldPath + "</cwd>"
	newTag := "<cwd>" + newPath + "</cwd>"

	var out []string
	modified := false
	idx := -1

	err := forEachLineRaw(path, func(line string) {
		idx++
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !gjson.Valid(trimmed) {
			replaced := strings.ReplaceAll(line, oldTag, newTag)
			if replaced != line {
				modified = true
			}
			out = append(out, replaced)
			return
		}

		if idx == 0 &&
			gjson.Get(trimmed, "type").Str == codexTypeSessionMeta &&
			gjson.Get(trimmed, "payload.cwd").Str == oldPath {
			if rewritten, ok := rewriteSessionMetaCwd(
				trimmed, newPath,
			); ok {
				out = append(out, rewritten)
				modified = true
				return
			}
		}

		replaced := strings.ReplaceAll(line, oldTag, newTag)
		if replaced != line {
			modified = true
		}
		out = append(out, replaced)
	})
	if err != nil {
		return false, err
	}
	if !modified {
		return false, nil
	}
	return true, replaceFileLines(path, out)
}

// rewriteSessionMetaCwd re-encodes a session_meta line with its
// payload cwd replaced.
func rewriteSessionMetaCwd(line, newPath string) (string, bool) {
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return "", false
	}
	payload, ok := entry["payload"].(map[string]any)
	if !ok {
		return "", false
	}
	payload["cwd"] = newPath
	encoded, err := json.Marshal(entry)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}

// CodexFileNeedsRewrite reports whether a move would modify the
// file, mirroring RewriteCodexFile without mutating. Used for
// dry runs.
func CodexFileNeedsRewrite(path, oldPath string) bool {
	oldTag := "<cwd>" + oldPath + "</cwd>"
	needs := false
	idx := -1

	_ = forEachLineRaw(path, func(line string) {
		idx++
		if needs {
			return
		}
		if strings.Contains(line, oldTag) {
			needs = true
			return
		}
		trimmed := strings.TrimSpace(line)
		if idx == 0 && trimmed != "" && gjson.Valid(trimmed) &&
			gjson.Get(trimmed, "type").Str == codexTypeSessionMeta &&
			gjson.Get(trimmed, "payload.cwd").Str == oldPath {
			needs = true
		}
	})
	return needs
}
