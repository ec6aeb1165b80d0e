package search

import (
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"

	"github.com/sesh-dev/sesh/internal/model"
)

var workspacePathRe = regexp.MustCompile(`Workspace Path: ([^\n]+)`)

// searchCursorStores scans every store.db under the chats root
// for the query. Ripgrep is useless against SQLite files, so
// this leg reads the blobs directly. One result per session.
func searchCursorStores(
	chatsRoot, query string,
) []model.SearchResult {
	hashDirs, err := os.ReadDir(chatsRoot)
	if err != nil {
		return nil
	}

	var results []model.SearchResult
	for _, hashDir := range hashDirs {
		if !hashDir.IsDir() {
			continue
		}
		dirPath := filepath.Join(chatsRoot, hashDir.Name())
		sessionDirs, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, sessionDir := range sessionDirs {
			if !sessionDir.IsDir() {
				continue
			}
			dbPath := filepath.Join(
				dirPath, sessionDir.Name(), "store.db",
			)
			if _, err := os.Stat(dbPath); err != nil {
				continue
			}
			matched, projectPath := scanStoreForQuery(
				dbPath, query,
			)
			if matched == "" {
				continue
			}
			results = append(results, model.SearchResult{
				Provider:    model.ProviderCursor,
				SessionID:   sessionDir.Name(),
				ProjectPath: projectPath,
				MatchedLine: matched,
				FilePath:    dbPath,
			})
		}
	}
	return results
}

// scanStoreForQuery returns the display window for the first
// blob matching the query, plus the workspace path if any blob
// reveals one.
func scanStoreForQuery(dbPath, query string) (string, string) {
	db, err := sql.Open(
		"sqlite3", dbPath+"?mode=ro&_busy_timeout=3000",
	)
	if err != nil {
		return "", ""
	}
	defer db.Close()

	rows, err := db.Query("SELECT data FROM blobs")
	if err != nil {
		return "", ""
	}
	defer rows.Close()

	var matched, projectPath string
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			continue
		}
		if len(data) == 0 || !utf8.Valid(data) {
			continue
		}
		obj := gjson.ParseBytes(data)
		if !obj.IsObject() {
			continue
		}

		text := blobContentText(obj.Get("content"))
		if projectPath == "" {
			if m := workspacePathRe.FindStringSubmatch(
				text,
			); m != nil {
				projectPath = strings.TrimSpace(m[1])
			}
		}
		if matched == "" && text != "" &&
			containsFold(text, query) {
			matched = displayWindow(text, query)
		}
		if matched != "" && projectPath != "" {
			break
		}
	}
	return matched, projectPath
}

func blobContentText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	if content.IsArray() {
		var parts []string
		for _, item := range content.Array() {
			if t := item.Get("text").Str; t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// codexCwdFromFileHead reads the session_meta line at the top of
// a rollout file to recover its working directory.
func codexCwdFromFileHead(filePath string) string {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return ""
	}
	for _, line := range strings.SplitN(string(data), "\n", 20) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !gjson.Valid(trimmed) {
			return ""
		}
		return gjson.Get(trimmed, "payload.cwd").Str
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
