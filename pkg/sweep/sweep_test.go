package sweep

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/adze/pkg/engine"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/chazu/adze/pkg/platform/femm"
	"github.com/chazu/adze/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const source = `
(rect 0 0 w 1)
(material "air")
(dirichlet "ground" :fixed-voltage 0)
(assign-material "air" 0.5 0.5)
(assign-boundary "ground" 0.5 0)
(point-value "V" 0.5 0.5)
`

// widthSolver reports the largest node x coordinate of the script it is
// given as the "width" scalar.
const widthSolver = `w=$(sed -n 's/^ei_addnode(\([^,]*\),.*/\1/p' "$0" | sort -n | tail -1); printf 'width, %s\n' "$w" > fem_data.csv`

func factory(script string) PlatformFactory {
	return func(field model.FieldType, name string) (platform.Platform, error) {
		opts := femm.DefaultOptions()
		opts.Executor = platform.Executor{Command: "/bin/sh", Args: []string{"-c", script, platform.ScriptPlaceholder}}
		return femm.New(platform.NewMetadata(field, name), opts)
	}
}

func runner(t *testing.T, script string) *Runner {
	t.Helper()
	return &Runner{
		Source:      source,
		Engine:      engine.NewEngine(),
		NewPlatform: factory(script),
		OutputDir:   t.TempDir(),
		Workers:     3,
	}
}

func TestGrid(t *testing.T) {
	cases := Grid(map[string][]float64{"w": {1, 2}, "h": {3}})
	require.Len(t, cases, 2)
	assert.Equal(t, "h=3,w=1", cases[0].Name)
	assert.Equal(t, "h=3,w=2", cases[1].Name)
	assert.Equal(t, map[string]float64{"h": 3, "w": 1}, cases[0].Params)

	cases[0].Params["w"] = 9
	assert.Equal(t, 2.0, cases[1].Params["w"], "cases must not share parameter maps")

	assert.Nil(t, Grid(nil))
	assert.Empty(t, Grid(map[string][]float64{"w": {}}))
}

func TestRunIsolatedCases(t *testing.T) {
	r := runner(t, widthSolver)
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()
	r.Store = s

	cases := Grid(map[string][]float64{"w": {1, 2, 3, 4, 5}})
	out, err := r.Run(context.Background(), cases)
	require.NoError(t, err)
	require.Len(t, out, len(cases))

	dirs := make(map[string]bool)
	for i, o := range out {
		require.NoError(t, o.Err, o.Case.Name)
		require.NotNil(t, o.Run, o.Case.Name)
		require.True(t, o.Run.OK, "%s: %s", o.Case.Name, o.Run.Error)
		w, ok := o.Results.Scalar("width")
		require.True(t, ok, o.Case.Name)
		assert.Equal(t, cases[i].Params["w"], w, o.Case.Name)
		assert.Equal(t, "femm", o.Run.Platform)

		dirs[o.Dir] = true
		_, err := os.Stat(filepath.Join(o.Dir, "case.lua"))
		assert.NoError(t, err)
	}
	assert.Len(t, dirs, len(cases))

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, len(cases))

	got, err := s.GetRun(context.Background(), out[2].Run.ID)
	require.NoError(t, err)
	v, _ := got.Results.Scalar("width")
	assert.Equal(t, 3.0, v)
}

func TestRunEvalErrorStaysInItsCase(t *testing.T) {
	r := runner(t, widthSolver)
	cases := []Case{
		{Name: "ok", Params: map[string]float64{"w": 2}},
		{Name: "unbound", Params: map[string]float64{}},
	}
	out, err := r.Run(context.Background(), cases)
	require.NoError(t, err)

	assert.NoError(t, out[0].Err)
	assert.True(t, out[0].Run.OK)
	assert.ErrorIs(t, out[1].Err, ErrEval)
	assert.Nil(t, out[1].Run)
}

func TestRunSolverFailure(t *testing.T) {
	r := runner(t, "exit 3")
	out, err := r.Run(context.Background(), Grid(map[string][]float64{"w": {1}}))
	require.NoError(t, err)
	require.Len(t, out, 1)

	o := out[0]
	assert.NoError(t, o.Err)
	require.NotNil(t, o.Run)
	assert.False(t, o.Run.OK)
	assert.NotEmpty(t, o.Run.Error)
	assert.Nil(t, o.Results)
}

func TestRunMissingMetricsFile(t *testing.T) {
	r := runner(t, "true")
	out, err := r.Run(context.Background(), Grid(map[string][]float64{"w": {1}}))
	require.NoError(t, err)
	assert.False(t, out[0].Run.OK)
	assert.Contains(t, out[0].Run.Error, "fem_data.csv")
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner(t, widthSolver).Run(ctx, Grid(map[string][]float64{"w": {1, 2}}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNeedsEngine(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), nil)
	assert.Error(t, err)
}
