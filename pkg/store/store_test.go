package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chazu/adze/pkg/results"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run := &Run{
		Snapshot: uuid.New(),
		Platform: "femm",
		Params:   map[string]float64{"gap": 0.5, "width": 2},
		OK:       true,
		Duration: 1500 * time.Millisecond,
		Results: &results.Results{
			Points:  []results.PointValue{{Variable: "V", X: 1, Y: 2, Value: 3.5}},
			Scalars: []results.Scalar{{Name: "Energy", Value: 0.25}, {Name: "nodes", Value: 900}},
		},
	}
	require.NoError(t, s.SaveRun(ctx, run))
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.False(t, run.CreatedAt.IsZero())

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Snapshot, got.Snapshot)
	assert.Equal(t, "femm", got.Platform)
	assert.True(t, got.OK)
	assert.False(t, got.TimedOut)
	assert.Equal(t, run.Duration, got.Duration)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, run.Params, got.Params)
	assert.Equal(t, run.Results, got.Results)
}

func TestFailedRunHasNoResults(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run := &Run{Snapshot: uuid.New(), Platform: "agros2d", TimedOut: true, Error: "solver timed out"}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, got.OK)
	assert.True(t, got.TimedOut)
	assert.Equal(t, "solver timed out", got.Error)
	assert.Nil(t, got.Results)
	assert.Empty(t, got.Params)
}

func TestGetRunNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.GetRun(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDuplicateRunRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run := &Run{Snapshot: uuid.New(), Platform: "femm", OK: true}
	require.NoError(t, s.SaveRun(ctx, run))

	dup := &Run{ID: run.ID, Snapshot: uuid.New(), Platform: "ngsolve"}
	assert.Error(t, s.SaveRun(ctx, dup))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "femm", runs[0].Platform)
}

func TestListRunsConcurrentWriters(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	snap := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run := &Run{Snapshot: snap, Platform: "femm", OK: true, Params: map[string]float64{"case": float64(i)}}
			assert.NoError(t, s.SaveRun(ctx, run))
		}(i)
	}
	wg.Wait()

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 8)

	seen := make(map[float64]bool)
	for _, r := range runs {
		assert.Nil(t, r.Results)
		seen[r.Params["case"]] = true
	}
	assert.Len(t, seen, 8)
}
