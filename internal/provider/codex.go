package provider

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sesh-dev/sesh/internal/cache"
	"github.com/sesh-dev/sesh/internal/model"
	"github.com/sesh-dev/sesh/internal/parser"
)

// Codex reads Codex CLI rollout logs from a sessions directory
// laid out as yyyy/mm/dd/*.jsonl, one session per file. The
// fingerprint cache unit is the file.
type Codex struct {
	root  string
	cache *cache.Cache
}

func NewCodex(root string, c *cache.Cache) *Codex {
	return &Codex{root: root, cache: c}
}

func (p *Codex) Type() model.ProviderType { return model.ProviderCodex }

func (p *Codex) Discover() ([]model.SessionMeta, error) {
	files, err := p.sessionFiles()
	if err != nil {
		return nil, err
	}

	var all []model.SessionMeta
	for _, file := range files {
		sessions, err := p.cache.GetOrParse(
			model.ProviderCodex, file, parseCodexFile,
		)
		if err != nil {
			log.Printf("codex: skipping %s: %v", file, err)
			continue
		}
		all = append(all, sessions...)
	}
	return all, nil
}

func parseCodexFile(path string) ([]model.SessionMeta, error) {
	meta, err := parser.ParseCodexSessionFile(path)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}
	return []model.SessionMeta{*meta}, nil
}

// sessionFiles walks the date-sharded tree collecting *.jsonl
// paths. A missing root is an empty result.
func (p *Codex) sessionFiles() ([]string, error) {
	if !isDir(p.root) {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(
		p.root,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Printf("codex: walking %s: %v", path, err)
				return nil
			}
			if !d.IsDir() &&
				strings.HasSuffix(d.Name(), ".jsonl") {
				files = append(files, path)
			}
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", p.root, err)
	}
	return files, nil
}

func (p *Codex) LoadMessages(
	meta model.SessionMeta,
) ([]model.Message, error) {
	return parser.LoadCodexMessages(meta.SourcePath)
}

func (p *Codex) DeleteSession(meta model.SessionMeta) error {
	if err := os.Remove(meta.SourcePath); err != nil &&
		!os.IsNotExist(err) {
		return fmt.Errorf(
			"deleting %s: %w", meta.SourcePath, err,
		)
	}
	p.cache.Drop(meta.SourcePath)
	return nil
}

func (p *Codex) MoveProject(
	oldPath, newPath string,
) model.MoveReport {
	report := model.MoveReport{
		Provider: model.ProviderCodex,
		Status:   model.MoveSucceeded,
	}
	files, err := p.sessionFiles()
	if err != nil {
		return moveFailed(model.ProviderCodex, err.Error())
	}
	if files == nil {
		report.Status = model.MoveSkipped
		return report
	}

	for _, file := range files {
		modified, err := parser.RewriteCodexFile(
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
			p.cache.Drop(file)
		}
	}
	return report
}

func (p *Codex) PlanMove(
	oldPath, newPath string,
) model.MoveReport {
	report := model.MoveReport{
		Provider: model.ProviderCodex,
		Status:   model.MoveSucceeded,
	}
	files, err := p.sessionFiles()
	if err != nil {
		return moveFailed(model.ProviderCodex, err.Error())
	}
	if files == nil {
		report.Status = model.MoveSkipped
		return report
	}
	for _, file := range files {
		if parser.CodexFileNeedsRewrite(file, oldPath) {
			report.FilesModified++
		}
	}
	return report
}
