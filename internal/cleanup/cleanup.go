// Package cleanup sweeps the shared data directory for files no longer
// referenced by any graph, result, or test row.
package cleanup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
)

type Sweeper struct {
	log     *logger.Logger
	graphs  repos.GraphRepo
	results repos.ResultRepo
	tests   repos.TestRepo
}

func NewSweeper(baseLog *logger.Logger, graphs repos.GraphRepo, results repos.ResultRepo, tests repos.TestRepo) *Sweeper {
	return &Sweeper{
		log:     baseLog.With("component", "Sweeper"),
		graphs:  graphs,
		results: results,
		tests:   tests,
	}
}

// Report is the outcome of one sweep. Orphaned paths are relative to the data
// directory.
type Report struct {
	ScannedFiles    int
	ReferencedFiles int
	Orphaned        []string
	Deleted         int
	FailedDeletes   int
}

// Sweep diffs the generated subtree of dataDirectory against every file path
// referenced in the store. With dryRun set nothing is deleted; the report
// lists what would go.
func (s *Sweeper) Sweep(ctx context.Context, dataDirectory string, dryRun bool) (*Report, error) {
	generated := filepath.Join(dataDirectory, "generated")
	if _, err := os.Stat(generated); err != nil {
		return nil, fmt.Errorf("data directory does not exist: %s: %w", generated, err)
	}

	onDisk := make(map[string]struct{})
	err := filepath.WalkDir(generated, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dataDirectory, path)
		if relErr != nil {
			return relErr
		}
		onDisk[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]struct{})
	for _, list := range []func(context.Context) ([]string, error){
		func(c context.Context) ([]string, error) { return s.graphs.ListFilePaths(c, nil) },
		func(c context.Context) ([]string, error) { return s.results.ListFilePaths(c, nil) },
		func(c context.Context) ([]string, error) { return s.tests.ListFilePaths(c, nil) },
	} {
		paths, listErr := list(ctx)
		if listErr != nil {
			return nil, listErr
		}
		for _, p := range paths {
			referenced[filepath.ToSlash(p)] = struct{}{}
		}
	}

	report := &Report{
		ScannedFiles:    len(onDisk),
		ReferencedFiles: len(referenced),
	}
	for path := range onDisk {
		if _, ok := referenced[path]; !ok {
			report.Orphaned = append(report.Orphaned, path)
		}
	}
	s.log.Info("Sweep scan complete",
		"on_disk", report.ScannedFiles,
		"referenced", report.ReferencedFiles,
		"orphaned", len(report.Orphaned),
	)

	if dryRun {
		return report, nil
	}
	for _, rel := range report.Orphaned {
		full := filepath.Join(dataDirectory, filepath.FromSlash(rel))
		if rmErr := os.Remove(full); rmErr != nil {
			s.log.Warn("Failed to delete orphaned file", "path", rel, "error", rmErr)
			report.FailedDeletes++
			continue
		}
		report.Deleted++
	}
	return report, nil
}
