package internal

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/chkclabs/chkc/internal/annotation"
	"github.com/chkclabs/chkc/internal/cparse"
	"github.com/chkclabs/chkc/internal/discharge"
	"github.com/chkclabs/chkc/internal/obligation"
	"github.com/chkclabs/chkc/internal/report"
	"github.com/chkclabs/chkc/internal/summary"
)

// Engine runs the full analysis pipeline: parse every unit, load the
// annotation model across all of them, generate proof obligations per
// function, discharge what the facts support, and report the rest.
type Engine struct {
	table  *summary.Table
	logger *zap.Logger
}

// NewEngine creates an analysis engine. A nil logger disables logging.
func NewEngine(table *summary.Table, logger *zap.Logger) *Engine {
	if table == nil {
		table = summary.NewTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{table: table, logger: logger}
}

// Run analyzes the given C source files together and returns the open
// obligations as diagnostics, sorted by file, line, and column.
func (e *Engine) Run(ctx context.Context, paths []string) ([]report.Diagnostic, error) {
	units := make([]*cparse.Unit, len(paths))
	defer func() {
		for _, u := range units {
			if u != nil {
				u.Close()
			}
		}
	}()

	// parse in parallel; the units are independent until model load
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		parseErr error
	)
	sem := make(chan struct{}, runtime.NumCPU())
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			unit, err := cparse.ParseFile(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if parseErr == nil {
					parseErr = err
				}
				return
			}
			units[i] = unit
		}(i, path)
	}
	// every spawned parser must finish before the deferred cleanup may
	// touch units
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}

	// the annotation model spans all units: a prototype in one file
	// annotates calls in another
	model, err := annotation.Load(units)
	if err != nil {
		return nil, fmt.Errorf("loading annotations: %w", err)
	}

	// generation is independent per unit once the model is loaded; slots
	// keep path order so the final sort stays deterministic
	perUnit := make([][]*obligation.Obligation, len(units))
	for i, unit := range units {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, unit *cparse.Unit) {
			defer wg.Done()
			defer func() { <-sem }()
			perUnit[i] = e.runUnit(unit, model)
		}(i, unit)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var obs []*obligation.Obligation
	for _, unitObs := range perUnit {
		obs = append(obs, unitObs...)
	}

	discharge.New(model, e.table).Run(obs)

	diags := discharge.Diagnostics(obs)
	report.Sort(diags)
	return diags, nil
}

// RunSource analyzes in-memory source, for tests and tooling.
func (e *Engine) RunSource(ctx context.Context, name string, source []byte) ([]report.Diagnostic, error) {
	unit, err := cparse.ParseSource(ctx, name, source)
	if err != nil {
		return nil, err
	}
	defer unit.Close()

	model, err := annotation.Load([]*cparse.Unit{unit})
	if err != nil {
		return nil, fmt.Errorf("loading annotations: %w", err)
	}

	obs := e.runUnit(unit, model)
	discharge.New(model, e.table).Run(obs)

	diags := discharge.Diagnostics(obs)
	report.Sort(diags)
	return diags, nil
}

func (e *Engine) runUnit(unit *cparse.Unit, model *annotation.Model) []*obligation.Obligation {
	gen := obligation.NewGenerator(unit, model, e.table, e.logger)

	var obs []*obligation.Obligation
	top := unit.ScanTopLevel()
	for _, fd := range top.Functions {
		if !fd.HasBody {
			continue
		}
		e.logger.Debug("generating obligations",
			zap.String("function", fd.Name),
			zap.String("file", unit.Path))
		obs = append(obs, gen.Function(fd)...)
	}
	return obs
}
