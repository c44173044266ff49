package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chazu/adze/pkg/config"
	"github.com/chazu/adze/pkg/datastore"
	"github.com/chazu/adze/pkg/engine"
	"github.com/chazu/adze/pkg/graph"
	"github.com/chazu/adze/pkg/logging"
	"github.com/chazu/adze/pkg/render"
	"github.com/chazu/adze/pkg/results"
	"github.com/chazu/adze/pkg/snapshot"
	"github.com/chazu/adze/pkg/store"
	"github.com/chazu/adze/pkg/sweep"
	"github.com/samber/lo"
)

// ArchiveName is the model archive written next to every run's script.
const ArchiveName = "model.adz"

// App ties the configuration to the evaluation, export and solve pipeline.
type App struct {
	cfg    *config.Config
	engine *engine.Engine
}

// EvalErrorData is one evaluation or validation finding.
type EvalErrorData struct {
	Line    int
	Col     int
	Message string
}

// EvalResult is the outcome of Evaluate. Model is nil when Errors is not
// empty.
type EvalResult struct {
	Model    *engine.Model
	Errors   []EvalErrorData
	Warnings []EvalErrorData
}

// NewApp creates an App for cfg. A nil cfg uses config.Default.
func NewApp(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	eng := engine.NewEngine()
	eng.Epsilon = cfg.Epsilon
	return &App{cfg: cfg, engine: eng}
}

// Evaluate runs source with params and checks the consolidated geometry.
// Geometry errors are reported as errors, advisory findings as warnings.
func (a *App) Evaluate(source string, params map[string]float64) EvalResult {
	result := EvalResult{
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	// Step 1: Evaluate the Lisp source into a model.
	m, evalErrs, err := a.engine.EvaluateWithParams(source, params)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		logging.Logger().Error("evaluate", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}

	// Step 2: Convert eval errors.
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}

	// Step 3: Validate a consolidated copy; the model keeps its raw geometry.
	g := m.Geometry.Clone()
	if _, err := g.Consolidate(); err != nil {
		result.Errors = append(result.Errors, EvalErrorData{Message: "consolidation failed: " + err.Error()})
		return result
	}
	vr := graph.ValidateGeometry(g)
	for _, e := range vr.Errors {
		result.Errors = append(result.Errors, EvalErrorData{Message: e.Error()})
	}
	result.Warnings = append(result.Warnings, lo.Map(vr.Warnings, func(w graph.ValidationWarning, _ int) EvalErrorData {
		return EvalErrorData{Message: fmt.Sprintf("element %d: %s", w.ElementID, w.Message)}
	})...)
	if len(result.Errors) > 0 {
		return result
	}

	result.Model = m
	return result
}

// Build binds m to a fresh platform named by the configuration.
func (a *App) Build(m *engine.Model, name string) (*snapshot.Snapshot, error) {
	p, err := a.cfg.NewPlatform(m.Field, name)
	if err != nil {
		return nil, err
	}
	return m.Build(p)
}

// Export writes the platform script for m to w.
func (a *App) Export(m *engine.Model, name string, w io.Writer) error {
	s, err := a.Build(m, name)
	if err != nil {
		return err
	}
	return s.Export(w)
}

// Render draws m as SVG. Models with material labels are drawn as extracted
// regions; others as bare consolidated geometry.
func (a *App) Render(m *engine.Model, name string, w io.Writer) error {
	s, err := a.Build(m, name)
	if err != nil {
		return err
	}
	if len(m.Labels) == 0 {
		return render.Geometry(w, s.Geometry, render.WithPoints())
	}
	surf, names, err := s.Surface()
	if err != nil {
		return err
	}
	return render.Surface(w, surf, names, render.WithPoints())
}

// Run solves m in OutputDir/name, archives its inputs there and records
// the run in the store. A failed solve is a stored run, not an error.
func (a *App) Run(ctx context.Context, name, source string, params map[string]float64, m *engine.Model) (*store.Run, error) {
	s, err := a.Build(m, name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(a.cfg.OutputDir, name)
	res, err := s.Execute(ctx, dir)
	if err != nil {
		return nil, err
	}
	if err := datastore.SaveFile(filepath.Join(dir, ArchiveName), datastore.New(m, source, params)); err != nil {
		return nil, err
	}

	run := &store.Run{
		Snapshot: s.ID,
		Platform: s.Platform.Name(),
		Params:   params,
		OK:       res.OK,
		TimedOut: res.TimedOut,
		Duration: res.Duration,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if res.OK {
		vals, err := results.ReadFile(s.MetricsPath(dir))
		if err != nil {
			run.OK = false
			run.Error = err.Error()
		} else {
			run.Results = vals
		}
	}

	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	if err := st.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Rerun loads an archive and solves its model again under name.
func (a *App) Rerun(ctx context.Context, name, archivePath string) (*store.Run, error) {
	arc, err := datastore.LoadFile(archivePath)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, name, arc.Source, arc.Params, arc.Model)
}

// Sweep solves source over the grid spanned by axes.
func (a *App) Sweep(ctx context.Context, source string, axes map[string][]float64) ([]sweep.Outcome, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	r := &sweep.Runner{
		Source:      source,
		Engine:      a.engine,
		NewPlatform: a.cfg.NewPlatform,
		OutputDir:   a.cfg.OutputDir,
		Workers:     a.cfg.Workers,
		Store:       st,
	}
	return r.Run(ctx, sweep.Grid(axes))
}

// Runs lists the stored runs, oldest first.
func (a *App) Runs(ctx context.Context) ([]store.Run, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.ListRuns(ctx)
}

func (a *App) openStore() (*store.Store, error) {
	if err := a.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.Open(a.cfg.StorePath)
}

// readSource reads a model file and points import-geometry at its directory.
func (a *App) readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	a.engine.BaseDir = filepath.Dir(path)
	return string(data), nil
}
