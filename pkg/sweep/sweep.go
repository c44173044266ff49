// Package sweep runs one model source over many parameter sets. Every case
// evaluates, builds and solves in its own directory with its own geometry,
// snapshot and platform; only the result store is shared.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chazu/adze/pkg/engine"
	"github.com/chazu/adze/pkg/logging"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/chazu/adze/pkg/results"
	"github.com/chazu/adze/pkg/store"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// ErrEval is wrapped by a case whose source failed to evaluate.
var ErrEval = errors.New("sweep: model evaluation failed")

// Case is one parameter set.
type Case struct {
	Name   string
	Params map[string]float64
}

// Outcome is what one case produced. Err is set when the case could not be
// built or exported; a solver failure is reported in Run instead.
type Outcome struct {
	Case    Case
	Dir     string
	Run     *store.Run
	Results *results.Results
	Err     error
}

// PlatformFactory returns a fresh platform for one case.
type PlatformFactory func(field model.FieldType, scriptName string) (platform.Platform, error)

// Runner holds what every case shares.
type Runner struct {
	Source string
	// Engine supplies evaluation settings; each case evaluates on a clone.
	Engine      *engine.Engine
	NewPlatform PlatformFactory
	OutputDir   string
	Workers     int
	Store       *store.Store // optional
}

// Grid returns the cartesian product of axes. Axis names are visited in
// sorted order; the last name varies fastest. Cases are named
// "name=value,...".
func Grid(axes map[string][]float64) []Case {
	if len(axes) == 0 {
		return nil
	}
	names := lo.Keys(axes)
	sort.Strings(names)
	cases := []Case{{Params: map[string]float64{}}}
	for _, n := range names {
		var next []Case
		for _, c := range cases {
			for _, v := range axes[n] {
				p := lo.Assign(c.Params, map[string]float64{n: v})
				next = append(next, Case{Params: p})
			}
		}
		cases = next
	}
	for i := range cases {
		cases[i].Name = caseName(names, cases[i].Params)
	}
	return cases
}

func caseName(names []string, params map[string]float64) string {
	return strings.Join(lo.Map(names, func(n string, _ int) string {
		return fmt.Sprintf("%s=%g", n, params[n])
	}), ",")
}

// Run solves every case with at most Workers running at once. Outcomes are
// returned in case order. The returned error is a store failure or ctx
// cancellation; per-case failures are in the outcomes.
func (r *Runner) Run(ctx context.Context, cases []Case) ([]Outcome, error) {
	log := logging.Logger()
	if r.Engine == nil || r.NewPlatform == nil {
		return nil, errors.New("sweep: runner needs an engine and a platform factory")
	}
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}

	out := make([]Outcome, len(cases))
	var done atomic.Int64
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range cases {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o := r.runCase(ctx, i, c)
			if o.Run != nil && r.Store != nil {
				if err := r.Store.SaveRun(ctx, o.Run); err != nil {
					return fmt.Errorf("sweep: case %d: %w", i, err)
				}
			}
			out[i] = o
			log.Info("sweep case finished", "case", c.Name, "done", done.Add(1), "of", len(cases), "err", o.Err)
			return nil
		})
	}
	err := g.Wait()
	log.Info("sweep finished", "cases", len(cases), "workers", workers, "elapsed", time.Since(start))
	return out, err
}

func (r *Runner) runCase(ctx context.Context, i int, c Case) Outcome {
	o := Outcome{Case: c, Dir: filepath.Join(r.OutputDir, fmt.Sprintf("case-%03d", i))}

	m, evalErrs, err := r.Engine.Clone().EvaluateWithParams(r.Source, c.Params)
	if err != nil {
		o.Err = fmt.Errorf("sweep: %w", err)
		return o
	}
	if len(evalErrs) > 0 {
		msgs := lo.Map(evalErrs, func(e engine.EvalError, _ int) string { return e.Error() })
		o.Err = fmt.Errorf("%w: %s", ErrEval, strings.Join(msgs, "; "))
		return o
	}

	p, err := r.NewPlatform(m.Field, "case")
	if err != nil {
		o.Err = err
		return o
	}
	snap, err := m.Build(p)
	if err != nil {
		o.Err = err
		return o
	}
	res, err := snap.Execute(ctx, o.Dir)
	if err != nil {
		o.Err = err
		return o
	}

	o.Run = &store.Run{
		Snapshot: snap.ID,
		Platform: p.Name(),
		Params:   c.Params,
		OK:       res.OK,
		TimedOut: res.TimedOut,
		Duration: res.Duration,
	}
	if res.Err != nil {
		o.Run.Error = res.Err.Error()
	}
	if !res.OK {
		return o
	}

	vals, err := results.ReadFile(snap.MetricsPath(o.Dir))
	if err != nil {
		o.Run.OK = false
		o.Run.Error = err.Error()
		return o
	}
	o.Run.Results = vals
	o.Results = vals
	return o
}
