package provider

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sesh-dev/sesh/internal/cache"
	"github.com/sesh-dev/sesh/internal/model"
	"github.com/sesh-dev/sesh/internal/parser"
)

// Claude reads Claude Code logs from a projects directory. Each
// subdirectory is one project, named by the dash-encoded project
// path, holding per-thread JSONL files. The fingerprint cache
// unit is the project directory: thread grouping spans files, so
// a single file cannot be parsed in isolation. The fingerprint
// aggregates the contained session files, since appending to a
// file changes its stat but not the directory's.
type Claude struct {
	root  string
	cache *cache.Cache
}

func NewClaude(root string, c *cache.Cache) *Claude {
	return &Claude{root: root, cache: c}
}

func (p *Claude) Type() model.ProviderType { return model.ProviderClaude }

func (p *Claude) Discover() ([]model.SessionMeta, error) {
	entries, err := os.ReadDir(p.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.root, err)
	}

	var all []model.SessionMeta
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirName := entry.Name()
		dir := filepath.Join(p.root, dirName)
		sessions, err := p.cache.GetOrParseFiles(
			model.ProviderClaude, dir, claudeSessionFiles(dir),
			func(sourcePath string) ([]model.SessionMeta, error) {
				projectPath := parser.ExtractClaudeProjectPath(
					dirName, sourcePath,
				)
				return parser.ParseClaudeProjectDir(
					sourcePath, projectPath,
				)
			},
		)
		if err != nil {
			log.Printf("claude: skipping %s: %v", dir, err)
			continue
		}
		all = append(all, sessions...)
	}
	return all, nil
}

func (p *Claude) LoadMessages(
	meta model.SessionMeta,
) ([]model.Message, error) {
	return parser.LoadClaudeMessages(meta.SourcePath, meta.ID)
}

func (p *Claude) DeleteSession(meta model.SessionMeta) error {
	if err := parser.DeleteClaudeSession(
		meta.SourcePath, meta.ID,
	); err != nil {
		return err
	}
	p.cache.Drop(meta.SourcePath)
	return nil
}

func (p *Claude) MoveProject(
	oldPath, newPath string,
) model.MoveReport {
	report := model.MoveReport{
		Provider: model.ProviderClaude,
		Status:   model.MoveSucceeded,
	}
	oldDir := filepath.Join(p.root, model.EncodeClaudePath(oldPath))
	newDir := filepath.Join(p.root, model.EncodeClaudePath(newPath))

	var targetDir string
	switch {
	case isDir(oldDir):
		if pathExists(newDir) {
			return moveFailed(model.ProviderClaude, fmt.Sprintf(
				"target project directory already exists: %s",
				newDir,
			))
		}
		if err := os.Rename(oldDir, newDir); err != nil {
			return moveFailed(model.ProviderClaude, fmt.Sprintf(
				"renaming project directory: %v", err,
			))
		}
		report.DirsRenamed = 1
		targetDir = newDir
	case isDir(newDir):
		targetDir = newDir
	default:
		// No data for this project: nothing to do.
		report.Status = model.MoveSkipped
		return report
	}

	for _, file := range claudeSessionFiles(targetDir) {
		modified, err := parser.RewriteClaudeCwd(
			file, oldPath, newPath,
		)
		if err != nil {
			report.Status = model.MoveFailed
			report.Error = fmt.Sprintf(
				"updating %s: %v", file, err,
			)
			return report
		}
		if modified {
			report.FilesModified++
		}
	}

	p.cache.Drop(oldDir)
	p.cache.Drop(newDir)
	return report
}

func (p *Claude) PlanMove(
	oldPath, newPath string,
) model.MoveReport {
	report := model.MoveReport{
		Provider: model.ProviderClaude,
		Status:   model.MoveSucceeded,
	}
	oldDir := filepath.Join(p.root, model.EncodeClaudePath(oldPath))
	newDir := filepath.Join(p.root, model.EncodeClaudePath(newPath))

	if isDir(oldDir) && pathExists(newDir) {
		return moveFailed(model.ProviderClaude, fmt.Sprintf(
			"target project directory already exists: %s", newDir,
		))
	}

	var scanDir string
	switch {
	case isDir(oldDir):
		report.DirsRenamed = 1
		scanDir = oldDir
	case isDir(newDir):
		scanDir = newDir
	default:
		report.Status = model.MoveSkipped
		return report
	}

	for _, file := range claudeSessionFiles(scanDir) {
		if parser.ClaudeFileNeedsCwdRewrite(file, oldPath) {
			report.FilesModified++
		}
	}
	return report
}

// claudeSessionFiles lists the session JSONL files in a project
// directory, excluding agent-* subtask logs.
func claudeSessionFiles(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil
	}
	var files []string
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), "agent-") {
			continue
		}
		files = append(files, m)
	}
	return files
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func moveFailed(
	pt model.ProviderType, msg string,
) model.MoveReport {
	return model.MoveReport{
		Provider: pt,
		Status:   model.MoveFailed,
		Error:    msg,
	}
}
