// Package search implements federated full-text search over all
// providers' session logs: ripgrep over the JSONL roots, a
// SQLite scan over Cursor stores. Results are derived on demand
// and never persisted.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/sesh-dev/sesh/internal/config"
	"github.com/sesh-dev/sesh/internal/model"
)

// ErrSearchToolMissing is returned when ripgrep is not
// installed. Callers surface it to the user; search has no
// built-in fallback scanner.
var ErrSearchToolMissing = errors.New("ripgrep (rg) not found in PATH")

const (
	searchTimeout = 15 * time.Second
	displayMax    = 200
)

var uuidRe = regexp.MustCompile(
	`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`,
)

// Runner executes the external search tool. The seam exists so
// tests can substitute canned rg output.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run returns rg's stdout. Exit code 1 means no matches and is
// not an error; anything else is.
func (execRunner) Run(
	ctx context.Context, name string, args ...string,
) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return out, nil
	}
	return out, err
}

// Searcher runs federated searches against the configured
// provider roots.
type Searcher struct {
	cfg    config.Config
	runner Runner
}

func New(cfg config.Config) *Searcher {
	return &Searcher{cfg: cfg, runner: execRunner{}}
}

// NewWithRunner is the test constructor.
func NewWithRunner(cfg config.Config, r Runner) *Searcher {
	return &Searcher{cfg: cfg, runner: r}
}

// Search runs the query across every provider root that exists.
// A missing root contributes nothing; a failing rg invocation on
// one root is logged and does not abort the others.
func (s *Searcher) Search(
	ctx context.Context, query string,
) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	rg, err := s.runner.LookPath("rg")
	if err != nil {
		return nil, fmt.Errorf("%w", ErrSearchToolMissing)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var results []model.SearchResult
	seen := make(map[string]struct{})

	add := func(r model.SearchResult) {
		key := string(r.Provider) + "\x00" + r.SessionID +
			"\x00" + r.MatchedLine
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		results = append(results, r)
	}

	type jsonlRoot struct {
		provider model.ProviderType
		root     string
	}
	roots := []jsonlRoot{
		{model.ProviderClaude, s.cfg.ClaudeProjectsDir},
		{model.ProviderCodex, s.cfg.CodexSessionsDir},
	}
	for _, jr := range roots {
		if !dirExists(jr.root) {
			continue
		}
		out, err := s.runner.Run(
			ctx, rg,
			"--json", "-i", "--glob", "*.jsonl",
			query, jr.root,
		)
		if err != nil {
			log.Printf(
				"search: rg over %s failed: %v", jr.root, err,
			)
			continue
		}
		for _, r := range parseRipgrepOutput(
			out, jr.provider, query,
		) {
			add(r)
		}
	}

	for _, r := range searchCursorStores(
		s.cfg.CursorChatsDir, query,
	) {
		add(r)
	}
	return results, nil
}

// parseRipgrepOutput converts rg --json lines into search
// results, mapping each hit back to its session identity.
func parseRipgrepOutput(
	out []byte, pt model.ProviderType, query string,
) []model.SearchResult {
	var results []model.SearchResult
	for _, line := range strings.Split(string(out), "\n") {
		if line == "" || !gjson.Valid(line) {
			continue
		}
		event := gjson.Parse(line)
		if event.Get("type").Str != "match" {
			continue
		}
		filePath := event.Get("data.path.text").Str
		matched := strings.TrimSpace(
			event.Get("data.lines.text").Str,
		)
		if filePath == "" || matched == "" {
			continue
		}

		entry := gjson.Result{}
		if gjson.Valid(matched) {
			entry = gjson.Parse(matched)
		}

		sessionID := hitSessionID(entry, filePath, pt)
		projectPath := hitProjectPath(entry, filePath, pt)

		display := displayWindow(contentText(entry), query)
		if display == "" ||
			!containsFold(display, query) {
			raw := displayWindow(matched, query)
			if raw != "" && containsFold(raw, query) {
				display = raw
			} else if display == "" {
				display = truncateDisplay(matched)
			}
		}

		results = append(results, model.SearchResult{
			Provider:    pt,
			SessionID:   sessionID,
			ProjectPath: projectPath,
			MatchedLine: display,
			FilePath:    filePath,
		})
	}
	return results
}

// hitSessionID recovers the session identity from a matched
// line: claude lines carry sessionId directly, codex lines only
// identify the session on the session_meta line, so the filename
// UUID is the fallback.
func hitSessionID(
	entry gjson.Result, filePath string, pt model.ProviderType,
) string {
	if id := entry.Get("sessionId").Str; id != "" {
		return id
	}
	if entry.Get("type").Str == "session_meta" {
		if id := entry.Get("payload.id").Str; id != "" {
			return id
		}
	}
	if pt == model.ProviderCodex {
		return codexSessionIDFromPath(filePath)
	}
	return ""
}

func codexSessionIDFromPath(filePath string) string {
	base := strings.TrimSuffix(
		filePath[strings.LastIndex(filePath, "/")+1:], ".jsonl",
	)
	matches := uuidRe.FindAllString(base, -1)
	if len(matches) > 0 {
		return matches[len(matches)-1]
	}
	return base
}

// hitProjectPath recovers the working directory. Codex keeps it
// only on the first line, so a miss on the matched line falls
// back to reading the file head.
func hitProjectPath(
	entry gjson.Result, filePath string, pt model.ProviderType,
) string {
	if cwd := entry.Get("cwd").Str; cwd != "" {
		return cwd
	}
	if cwd := entry.Get("payload.cwd").Str; cwd != "" {
		return cwd
	}
	if pt == model.ProviderCodex {
		return codexCwdFromFileHead(filePath)
	}
	return ""
}

// contentText extracts readable message text from a matched
// JSONL entry of either provider.
func contentText(entry gjson.Result) string {
	if !entry.Exists() {
		return ""
	}
	content := entry.Get("message.content")
	if content.IsArray() {
		for _, part := range content.Array() {
			if part.Get("type").Str == "text" {
				if t := part.Get("text").Str; t != "" {
					return t
				}
			}
		}
	} else if content.Type == gjson.String && content.Str != "" {
		return content.Str
	}

	payload := entry.Get("payload")
	if pc := payload.Get("content"); pc.IsArray() {
		for _, item := range pc.Array() {
			for _, field := range []string{
				"text", "output_text", "input_text",
			} {
				if t := item.Get(field).Str; t != "" {
					return t
				}
			}
		}
	}
	if msg := payload.Get("message").Str; msg != "" {
		return msg
	}

	if summary := entry.Get("summary"); summary.IsArray() {
		for _, item := range summary.Array() {
			if item.Get("type").Str == "summary_text" {
				if t := item.Get("text").Str; t != "" {
					return t
				}
			}
		}
	}

	if output := entry.Get("output").Str; output != "" {
		if gjson.Valid(output) {
			inner := gjson.Parse(output).Get("output").Str
			if inner != "" {
				return inner
			}
		}
		return output
	}
	return ""
}

// displayWindow returns a window of content centered on the
// first case-insensitive occurrence of query. The window is
// measured in runes so the edges never split a multibyte
// character.
func displayWindow(content, query string) string {
	if content == "" {
		return ""
	}
	lower := strings.ToLower(content)
	idx := strings.Index(lower, strings.ToLower(query))
	if idx == -1 {
		return truncateDisplay(content)
	}

	runes := []rune(content)
	pos := utf8.RuneCountInString(lower[:idx])
	margin := (displayMax - utf8.RuneCountInString(query)) / 2
	if margin < 0 {
		margin = 0
	}
	start := pos - margin
	if start < 0 {
		start = 0
	}
	end := start + displayMax
	if end > len(runes) {
		end = len(runes)
	}
	snippet := runes[start:end]
	if start > 0 && len(snippet) > 3 {
		snippet = append([]rune("..."), snippet[3:]...)
	}
	if end < len(runes) && len(snippet) > 3 {
		snippet = append(snippet[:len(snippet)-3], []rune("...")...)
	}
	return string(snippet)
}

func truncateDisplay(s string) string {
	runes := []rune(s)
	if len(runes) <= displayMax {
		return s
	}
	return string(runes[:displayMax])
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(
		strings.ToLower(haystack), strings.ToLower(needle),
	)
}
