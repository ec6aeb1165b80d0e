// Package move renames a project on disk and updates every
// provider's metadata to the new path. Providers act
// independently: one provider failing leaves the others' results
// standing, reported per provider.
package move

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sesh-dev/sesh/internal/cache"
	"github.com/sesh-dev/sesh/internal/config"
	"github.com/sesh-dev/sesh/internal/model"
	"github.com/sesh-dev/sesh/internal/provider"
)

// Mode selects how much of the move is performed.
type Mode string

const (
	// ModeFull moves the project directory on disk, then
	// rewrites provider metadata.
	ModeFull Mode = "full"
	// ModeMetadataOnly rewrites provider metadata for a
	// project that was already moved by other means.
	ModeMetadataOnly Mode = "metadata_only"
)

// Options describes one move request.
type Options struct {
	OldPath string
	NewPath string
	Mode    Mode
	DryRun  bool
}

// Result is the outcome of one move request: per-provider
// reports plus whether this was a preview or an executed move.
type Result struct {
	DryRun  bool               `json:"dry_run"`
	Reports []model.MoveReport `json:"reports"`
}

// Run validates and executes a project move, returning one
// report per provider. A validation failure returns an error and
// no reports; per-provider failures are carried in the reports.
// Dry run produces reports of the same shape without modifying
// anything.
func Run(
	cfg config.Config, c *cache.Cache, opts Options,
) (Result, error) {
	oldPath := model.NormalizePath(opts.OldPath)
	newPath := model.NormalizePath(opts.NewPath)

	if err := validate(oldPath, newPath, opts.Mode); err != nil {
		return Result{}, err
	}

	providers := provider.All(cfg, c)
	result := Result{
		DryRun:  opts.DryRun,
		Reports: make([]model.MoveReport, 0, len(providers)),
	}

	if opts.DryRun {
		for _, p := range providers {
			result.Reports = append(
				result.Reports, p.PlanMove(oldPath, newPath),
			)
		}
		return result, nil
	}

	if opts.Mode == ModeFull {
		if err := os.MkdirAll(
			filepath.Dir(newPath), 0o755,
		); err != nil {
			return Result{}, fmt.Errorf(
				"creating parent of %s: %w", newPath, err,
			)
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			return Result{}, fmt.Errorf(
				"moving project files: %w", err,
			)
		}
	}

	for _, p := range providers {
		result.Reports = append(
			result.Reports, p.MoveProject(oldPath, newPath),
		)
	}

	// Cached metadata under the old path is gone either way.
	c.InvalidateUnder(oldPath)
	if err := c.Save(); err != nil {
		return result, fmt.Errorf("saving cache: %w", err)
	}
	return result, nil
}

func validate(oldPath, newPath string, mode Mode) error {
	if oldPath == newPath {
		return fmt.Errorf(
			"old path and new path must be different",
		)
	}
	switch mode {
	case ModeFull:
		if !pathExists(oldPath) {
			return fmt.Errorf(
				"old path does not exist: %s", oldPath,
			)
		}
		if pathExists(newPath) {
			return fmt.Errorf(
				"new path already exists: %s", newPath,
			)
		}
	case ModeMetadataOnly:
		if !pathExists(newPath) {
			return fmt.Errorf(
				"new path does not exist: %s", newPath,
			)
		}
	default:
		return fmt.Errorf("unknown move mode %q", mode)
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
