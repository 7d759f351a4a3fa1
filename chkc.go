// Package chkc is the embedding surface of the checker: build an engine,
// hand it C sources, get diagnostics back. The cmd tree is a thin wrapper
// around this package.
package chkc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/chkclabs/chkc/internal"
	"github.com/chkclabs/chkc/internal/report"
	"github.com/chkclabs/chkc/internal/summary"
)

// Engine analyzes C sources against their annotations and summaries.
type Engine interface {
	Run(ctx context.Context, paths []string) ([]report.Diagnostic, error)
	RunSource(ctx context.Context, name string, source []byte) ([]report.Diagnostic, error)
}

// New builds an analysis engine. summariesPath may be empty, in which
// case only the builtin libc summaries apply; otherwise the YAML database
// at that path is merged over the builtins.
func New(summariesPath string, logger *zap.Logger) (Engine, error) {
	table, err := NewTable(summariesPath)
	if err != nil {
		return nil, err
	}
	return internal.NewEngine(table, logger), nil
}

// NewTable builds the effective summary table, builtins plus an optional
// YAML overlay.
func NewTable(summariesPath string) (*summary.Table, error) {
	table := summary.NewTable()
	if summariesPath != "" {
		if err := table.LoadFile(summariesPath); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// CollectFiles expands the given paths into the list of C source files to
// analyze. Directories are walked recursively; explicit file arguments
// are taken as-is so a caller can force a header or oddly named file in.
func CollectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.Walk(path, func(filePath string, fileInfo os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fileInfo.IsDir() && filepath.Ext(filePath) == ".c" {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error walking directory %s: %w", path, err)
		}
	}
	return files, nil
}

// ProcessPaths expands paths and analyzes every collected file in one
// run. All files share one annotation model, so a prototype declared in
// one file covers calls made in another.
func ProcessPaths(ctx context.Context, engine Engine, paths []string) ([]report.Diagnostic, error) {
	files, err := CollectFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no C source files found in the given paths")
	}
	return engine.Run(ctx, files)
}
