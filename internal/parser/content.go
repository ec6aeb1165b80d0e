package parser

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sesh-dev/sesh/internal/model"
)

// systemPrefixes mark user entries that are injected by the CLI
// rather than typed by a person. They stay in the transcript but
// are flagged is_system so the rendering layer hides them.
var systemPrefixes = [...]string{
	"<command-name>",
	"<command-message>",
	"<command-args>",
	"<local-command-stdout>",
	"<system-reminder>",
	"Caveat:",
	"This session is being continued from a previous",
	"Invalid API key",
	"Warmup",
}

// IsSystemText reports whether a user message body matches a
// known system-injected pattern. Empty text counts as system.
func IsSystemText(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	for _, p := range systemPrefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

// extractText joins the text blocks of string-or-array content.
func extractText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	if !content.IsArray() {
		return ""
	}
	var parts []string
	content.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").Str == "text" {
			if t := block.Get("text").Str; t != "" {
				parts = append(parts, t)
			}
		}
		return true
	})
	return strings.Join(parts, "\n")
}

// appendContentMessages converts a message's content (a plain
// string or an array of typed blocks) into one Message per block
// with a content_type tag, appending to msgs. toolIDs resolves
// tool names across tool_use/tool_result pairs within a session.
func appendContentMessages(
	msgs []model.Message, role string, content gjson.Result,
	ts time.Time, toolIDs map[string]string,
) []model.Message {
	if content.Type == gjson.String {
		if strings.TrimSpace(content.Str) == "" {
			return msgs
		}
		return append(msgs, model.Message{
			Role:        model.RoleType(role),
			ContentType: model.ContentText,
			Content:     content.Str,
			Timestamp:   ts,
			IsSystem: role == string(model.RoleUser) &&
				IsSystemText(content.Str),
		})
	}

	if !content.IsArray() {
		return msgs
	}

	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").Str {
		case "text":
			text := block.Get("text").Str
			if strings.TrimSpace(text) == "" {
				return true
			}
			msgs = append(msgs, model.Message{
				Role:        model.RoleType(role),
				ContentType: model.ContentText,
				Content:     text,
				Timestamp:   ts,
				IsSystem: role == string(model.RoleUser) &&
					IsSystemText(text),
			})
		case "thinking":
			thinking := block.Get("thinking").Str
			if strings.TrimSpace(thinking) == "" {
				return true
			}
			msgs = append(msgs, model.Message{
				Role:        model.RoleAssistant,
				ContentType: model.ContentThinking,
				Thinking:    thinking,
				Timestamp:   ts,
			})
		case "tool_use":
			name := block.Get("name").Str
			if id := block.Get("id").Str; id != "" && name != "" {
				toolIDs[id] = name
			}
			msgs = append(msgs, model.Message{
				Role:        model.RoleAssistant,
				ContentType: model.ContentToolUse,
				ToolName:    name,
				ToolInput:   block.Get("input").Raw,
				Timestamp:   ts,
			})
		case "tool_result":
			msgs = append(msgs, model.Message{
				Role:        model.RoleTool,
				ContentType: model.ContentToolResult,
				ToolName:    toolIDs[block.Get("tool_use_id").Str],
				ToolOutput:  toolResultText(block.Get("content")),
				Timestamp:   ts,
			})
		}
		return true
	})
	return msgs
}

// toolResultText flattens a tool_result content value, which is
// either a plain string or an array of text blocks.
func toolResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	if content.IsArray() {
		var parts []string
		content.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").Str == "text" {
				if t := block.Get("text").Str; t != "" {
					parts = append(parts, t)
				}
			}
			return true
		})
		return strings.Join(parts, "\n")
	}
	if content.Exists() {
		return content.Raw
	}
	return ""
}

// renumber makes ordinals contiguous after filtering.
func renumber(msgs []model.Message) []model.Message {
	for i := range msgs {
		msgs[i].Ordinal = i
	}
	return msgs
}
