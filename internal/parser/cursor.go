package parser

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"

	"github.com/sesh-dev/sesh/internal/model"
)

var workspacePathRe = regexp.MustCompile(`Workspace Path: ([^\n]+)`)

// CursorStoreMeta is the session metadata read from one store.db.
// The store does not record its project path; WorkspacePath is a
// best-effort extraction from system blobs and may be empty.
type CursorStoreMeta struct {
	Title         string
	CreatedAt     time.Time
	MessageCount  int
	Model         string
	WorkspacePath string
}

func openCursorStore(dbPath string) (*sql.DB, error) {
	dsn := dbPath + "?mode=ro&_busy_timeout=3000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf(
			"opening cursor store %s: %w", dbPath, err,
		)
	}
	return db, nil
}

// ReadCursorStore reads session metadata from a Cursor store.db:
// title/model/creation time from the meta table, message count
// and workspace path from the blobs table.
func ReadCursorStore(dbPath string) (*CursorStoreMeta, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("stat %s: %w", dbPath, err)
	}

	db, err := openCursorStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta := &CursorStoreMeta{Title: "Untitled Session"}
	fields := readCursorMetaFields(db)

	for _, key := range []string{"name", "title", "sessionTitle"} {
		if v, ok := fields[key]; ok && strings.TrimSpace(v.Str) != "" {
			meta.Title = v.Str
			break
		}
	}
	if v, ok := fields["lastUsedModel"]; ok {
		meta.Model = v.Str
	}
	if v, ok := fields["createdAt"]; ok {
		meta.CreatedAt = parseTimestamp(v)
	}
	if meta.CreatedAt.IsZero() {
		if info, err := os.Stat(dbPath); err == nil {
			meta.CreatedAt = info.ModTime().UTC()
		}
	}

	count, workspace, err := scanCursorBlobs(db)
	if err != nil {
		return nil, err
	}
	meta.MessageCount = count
	meta.WorkspacePath = workspace
	return meta, nil
}

// readCursorMetaFields loads the meta table into a flat field
// map. The store keeps a single hex-encoded JSON object whose
// fields are the actual session metadata, so nested object
// fields are promoted to the top level.
func readCursorMetaFields(db *sql.DB) map[string]gjson.Result {
	fields := make(map[string]gjson.Result)

	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return fields // meta table is optional
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		decoded := decodeCursorValue(value)
		if !decoded.IsObject() {
			fields[key] = decoded
			continue
		}
		decoded.ForEach(func(k, v gjson.Result) bool {
			fields[k.Str] = v
			if v.IsObject() {
				v.ForEach(func(nk, nv gjson.Result) bool {
					fields[nk.Str] = nv
					return true
				})
			}
			return true
		})
	}
	return fields
}

// decodeCursorValue decodes a meta value that may be hex-encoded
// JSON, plain JSON, or a bare string.
func decodeCursorValue(value []byte) gjson.Result {
	text := string(value)
	if len(text) > 2 && isHexString(text) {
		if raw, err := hex.DecodeString(text); err == nil &&
			utf8.Valid(raw) && gjson.ValidBytes(raw) {
			return gjson.ParseBytes(raw)
		}
	}
	if gjson.Valid(text) {
		return gjson.Parse(text)
	}
	return gjson.Result{Type: gjson.String, Str: text}
}

func isHexString(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return s != ""
}

// scanCursorBlobs counts message blobs (JSON objects carrying a
// role field; most blobs are opaque internal data) and extracts
// the workspace path announced in system content.
func scanCursorBlobs(db *sql.DB) (int, string, error) {
	rows, err := db.Query("SELECT data FROM blobs")
	if err != nil {
		return 0, "", nil // blobs table is optional
	}
	defer rows.Close()

	count := 0
	workspace := ""
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			continue
		}
		if len(data) == 0 || !utf8.Valid(data) ||
			!gjson.ValidBytes(data) {
			continue
		}
		obj := gjson.ParseBytes(data)
		if !obj.IsObject() {
			continue
		}
		if obj.Get("role").Str != "" {
			count++
		}
		if workspace == "" {
			content := obj.Get("content")
			if content.Type == gjson.String {
				if m := workspacePathRe.FindStringSubmatch(
					content.Str,
				); m != nil {
					workspace = strings.TrimSpace(m[1])
				}
			}
		}
	}
	return count, workspace, rows.Err()
}

// LoadCursorMessages loads the transcript from a store.db. Blob
// order follows rowid, which tracks insertion order.
func LoadCursorMessages(dbPath string) ([]model.Message, error) {
	db, err := openCursorStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query("SELECT data FROM blobs ORDER BY rowid")
	if err != nil {
		return nil, nil
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			continue
		}
		if len(data) == 0 || !utf8.Valid(data) ||
			!gjson.ValidBytes(data) {
			continue
		}
		obj := gjson.ParseBytes(data)
		if !obj.IsObject() {
			continue
		}
		role := obj.Get("role").Str
		if role == "" {
			continue
		}
		msgs = appendCursorContent(msgs, role, obj.Get("content"))
	}
	return renumber(msgs), rows.Err()
}

// appendCursorContent converts one blob's content into messages.
// Cursor block types differ from Claude's: reasoning, tool-call,
// and tool-result instead of thinking/tool_use/tool_result.
func appendCursorContent(
	msgs []model.Message, role string, content gjson.Result,
) []model.Message {
	if content.Type == gjson.String {
		if strings.TrimSpace(content.Str) == "" {
			return msgs
		}
		return append(msgs, model.Message{
			Role:        model.RoleType(role),
			ContentType: model.ContentText,
			Content:     content.Str,
			IsSystem:    role == string(model.RoleSystem),
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
				IsSystem:    role == string(model.RoleSystem),
			})
		case "reasoning":
			text := block.Get("text").Str
			if strings.TrimSpace(text) == "" {
				return true
			}
			msgs = append(msgs, model.Message{
				Role:        model.RoleAssistant,
				ContentType: model.ContentThinking,
				Thinking:    text,
			})
		case "tool-call":
			msgs = append(msgs, model.Message{
				Role:        model.RoleAssistant,
				ContentType: model.ContentToolUse,
				ToolName:    block.Get("toolName").Str,
				ToolInput:   stringifyToolValue(block.Get("args")),
			})
		case "tool-result":
			msgs = append(msgs, model.Message{
				Role:        model.RoleTool,
				ContentType: model.ContentToolResult,
				ToolName:    block.Get("toolName").Str,
				ToolOutput:  stringifyToolValue(block.Get("result")),
			})
		}
		return true
	})
	return msgs
}

// RewriteCursorStore replaces oldPath references inside the
// store's text blobs. Reports whether any row changed.
func RewriteCursorStore(
	dbPath, oldPath, newPath string,
) (bool, error) {
	db, err := sql.Open(
		"sqlite3", dbPath+"?_busy_timeout=3000",
	)
	if err != nil {
		return false, fmt.Errorf(
			"opening cursor store %s: %w", dbPath, err,
		)
	}
	defer db.Close()

	rows, err := db.Query("SELECT rowid, data FROM blobs")
	if err != nil {
		return false, fmt.Errorf(
			"reading blobs in %s: %w", dbPath, err,
		)
	}

	type update struct {
		rowid int64
		data  []byte
	}
	var updates []update
	for rows.Next() {
		var rowid int64
		var data []byte
		if err := rows.Scan(&rowid, &data); err != nil {
			continue
		}
		if len(data) == 0 || !utf8.Valid(data) {
			continue
		}
		text := string(data)
		replaced := strings.ReplaceAll(text, oldPath, newPath)
		if replaced != text {
			updates = append(updates, update{rowid, []byte(replaced)})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, fmt.Errorf(
			"scanning blobs in %s: %w", dbPath, err,
		)
	}
	rows.Close()

	if len(updates) == 0 {
		return false, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx on %s: %w", dbPath, err)
	}
	for _, u := range updates {
		if _, err := tx.Exec(
			"UPDATE blobs SET data = ? WHERE rowid = ?",
			u.data, u.rowid,
		); err != nil {
			tx.Rollback()
			return false, fmt.Errorf(
				"updating blob %d in %s: %w", u.rowid, dbPath, err,
			)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit on %s: %w", dbPath, err)
	}
	return true, nil
}

// CursorStoreNeedsRewrite reports whether any text blob contains
// oldPath. Used for dry runs.
func CursorStoreNeedsRewrite(dbPath, oldPath string) bool {
	db, err := openCursorStore(dbPath)
	if err != nil {
		return false
	}
	defer db.Close()

	rows, err := db.Query("SELECT data FROM blobs")
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			continue
		}
		if len(data) > 0 && utf8.Valid(data) &&
			strings.Contains(string(data), oldPath) {
			return true
		}
	}
	return false
}
