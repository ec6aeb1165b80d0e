// Package testjsonl provides shared JSONL fixture builders for
// Claude and Codex session test data. Used by the parser,
// provider, and discovery test packages.
package testjsonl

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ClaudeUserJSON returns a Claude user entry as a JSON string.
// A nil parentUuid marks the entry as its thread's root.
func ClaudeUserJSON(
	sessionID, uuid, parentUUID, content, timestamp string,
	cwd ...string,
) string {
	m := map[string]any{
		"type":      "user",
		"sessionId": sessionID,
		"uuid":      uuid,
		"timestamp": timestamp,
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
	}
	if parentUUID == "" {
		m["parentUuid"] = nil
	} else {
		m["parentUuid"] = parentUUID
	}
	if len(cwd) > 0 {
		m["cwd"] = cwd[0]
	}
	return mustMarshal(m)
}

// ClaudeAssistantJSON returns a Claude assistant entry as a
// JSON string. Content may be a string or a block list.
func ClaudeAssistantJSON(
	sessionID, uuid, parentUUID string,
	content any, model, timestamp string,
) string {
	msg := map[string]any{
		"role":    "assistant",
		"content": content,
	}
	if model != "" {
		msg["model"] = model
	}
	return mustMarshal(map[string]any{
		"type":       "assistant",
		"sessionId":  sessionID,
		"uuid":       uuid,
		"parentUuid": parentUUID,
		"timestamp":  timestamp,
		"message":    msg,
	})
}

// ClaudeSummaryJSON returns a standalone summary entry held by
// leafUuid, as Claude writes after compaction.
func ClaudeSummaryJSON(summary, leafUUID string) string {
	return mustMarshal(map[string]any{
		"type":     "summary",
		"summary":  summary,
		"leafUuid": leafUUID,
	})
}

// TextBlock returns a text content block.
func TextBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// ThinkingBlock returns a thinking content block.
func ThinkingBlock(text string) map[string]any {
	return map[string]any{"type": "thinking", "thinking": text}
}

// ToolUseBlock returns a tool_use content block.
func ToolUseBlock(id, name string, input map[string]any) map[string]any {
	return map[string]any{
		"type":  "tool_use",
		"id":    id,
		"name":  name,
		"input": input,
	}
}

// ToolResultBlock returns a tool_result content block.
func ToolResultBlock(toolUseID, content string) map[string]any {
	return map[string]any{
		"type":        "tool_result",
		"tool_use_id": toolUseID,
		"content":     content,
	}
}

// CodexSessionMetaJSON returns the session_meta line that heads
// a new-format Codex rollout file.
func CodexSessionMetaJSON(id, cwd, model, timestamp string) string {
	payload := map[string]any{
		"id":  id,
		"cwd": cwd,
	}
	if model != "" {
		payload["model"] = model
	}
	return mustMarshal(map[string]any{
		"type":      "session_meta",
		"timestamp": timestamp,
		"payload":   payload,
	})
}

// CodexUserEventJSON returns an event_msg user_message line.
func CodexUserEventJSON(message, timestamp string) string {
	return mustMarshal(map[string]any{
		"type":      "event_msg",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type":    "user_message",
			"message": message,
		},
	})
}

// CodexAssistantJSON returns a response_item assistant message.
func CodexAssistantJSON(text, timestamp string) string {
	return mustMarshal(map[string]any{
		"type":      "response_item",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{
				map[string]any{
					"type": "output_text",
					"text": text,
				},
			},
		},
	})
}

// CodexLegacyUserJSON returns a legacy-format response_item
// user message. Embed an environment context block built with
// CodexEnvContext to give the session its working directory.
func CodexLegacyUserJSON(text, timestamp string) string {
	return mustMarshal(map[string]any{
		"type":      "response_item",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type": "message",
			"role": "user",
			"content": []any{
				map[string]any{
					"type": "input_text",
					"text": text,
				},
			},
		},
	})
}

// CodexEnvContext returns the environment context text legacy
// rollouts carry in their first user message.
func CodexEnvContext(cwd string) string {
	return "<environment_context>\n  <cwd>" + cwd +
		"</cwd>\n</environment_context>"
}

// CodexFunctionCallJSON returns a response_item function call.
func CodexFunctionCallJSON(
	name, callID, arguments, timestamp string,
) string {
	return mustMarshal(map[string]any{
		"type":      "response_item",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type":      "function_call",
			"name":      name,
			"call_id":   callID,
			"arguments": arguments,
		},
	})
}

// CodexFunctionOutputJSON returns a response_item function call
// output.
func CodexFunctionOutputJSON(
	callID, output, timestamp string,
) string {
	return mustMarshal(map[string]any{
		"type":      "response_item",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}

// Lines joins JSONL lines with newlines, with a trailing
// newline.
func Lines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// mustMarshal encodes without HTML escaping so markup like the
// <cwd> tag survives verbatim, matching real log files.
func mustMarshal(m map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		panic(err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
