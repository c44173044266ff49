// Package store persists solver runs and the values they produced in a
// SQLite database, so sweeps can be compared after the fact.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chazu/adze/pkg/results"
	"github.com/google/uuid"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a run id is not in the store.
var ErrNotFound = errors.New("store: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    snapshot_id TEXT NOT NULL,
    platform    TEXT NOT NULL,
    ok          INTEGER NOT NULL,
    timed_out   INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_params (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name   TEXT NOT NULL,
    value  REAL NOT NULL,
    PRIMARY KEY (run_id, name)
);
CREATE TABLE IF NOT EXISTS run_values (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq    INTEGER NOT NULL,
    name   TEXT NOT NULL,
    is_point INTEGER NOT NULL,
    x      REAL,
    y      REAL,
    value  REAL NOT NULL,
    PRIMARY KEY (run_id, seq)
);
`

// ============================================================
// Types
// ============================================================

// Run is one solver execution with its inputs and outputs.
type Run struct {
	ID        uuid.UUID
	Snapshot  uuid.UUID
	Platform  string
	Params    map[string]float64
	OK        bool
	TimedOut  bool
	Error     string
	Duration  time.Duration
	CreatedAt time.Time

	// Results is nil for failed runs and in ListRuns output.
	Results *results.Results
}

// Store is a handle on the run database.
type Store struct {
	db *sql.DB
}

// ============================================================
// Open & Migrate
// ============================================================

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// sweeps write from several goroutines; one connection serializes them
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================================
// Runs
// ============================================================

// SaveRun inserts r with its params and values in one transaction. A zero
// ID or CreatedAt is filled in.
func (s *Store) SaveRun(ctx context.Context, r *Run) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs (id, snapshot_id, platform, ok, timed_out, error, duration_ms, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, r.ID.String(), r.Snapshot.String(), r.Platform, r.OK, r.TimedOut, r.Error,
		r.Duration.Milliseconds(), r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	for name, v := range r.Params {
		if _, err = tx.ExecContext(ctx, `INSERT INTO run_params (run_id, name, value) VALUES (?, ?, ?)`,
			r.ID.String(), name, v); err != nil {
			return fmt.Errorf("store: insert param %q: %w", name, err)
		}
	}

	if r.Results != nil {
		seq := 0
		for _, p := range r.Results.Points {
			if _, err = tx.ExecContext(ctx, `
                INSERT INTO run_values (run_id, seq, name, is_point, x, y, value) VALUES (?, ?, ?, 1, ?, ?, ?)
            `, r.ID.String(), seq, p.Variable, p.X, p.Y, p.Value); err != nil {
				return fmt.Errorf("store: insert value: %w", err)
			}
			seq++
		}
		for _, sc := range r.Results.Scalars {
			if _, err = tx.ExecContext(ctx, `
                INSERT INTO run_values (run_id, seq, name, is_point, value) VALUES (?, ?, ?, 0, ?)
            `, r.ID.String(), seq, sc.Name, sc.Value); err != nil {
				return fmt.Errorf("store: insert value: %w", err)
			}
			seq++
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// GetRun loads one run with its params and values.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, snapshot_id, platform, ok, timed_out, error, duration_ms, created_at
        FROM runs
        WHERE id = ?
    `, id.String())
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	if r.Params, err = s.params(ctx, id); err != nil {
		return nil, err
	}
	if r.Results, err = s.values(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns every run with its params, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, snapshot_id, platform, ok, timed_out, error, duration_ms, created_at
        FROM runs
        ORDER BY created_at, rowid
    `)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	rows.Close()

	// params are read after rows is closed; the pool holds one connection
	for i := range out {
		if out[i].Params, err = s.params(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ============================================================
// Scanning
// ============================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r             Run
		id, snap, at  string
		durationMilli int64
	)
	if err := sc.Scan(&id, &snap, &r.Platform, &r.OK, &r.TimedOut, &r.Error, &durationMilli, &at); err != nil {
		return nil, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("store: run id: %w", err)
	}
	if r.Snapshot, err = uuid.Parse(snap); err != nil {
		return nil, fmt.Errorf("store: snapshot id: %w", err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return nil, fmt.Errorf("store: created_at: %w", err)
	}
	r.Duration = time.Duration(durationMilli) * time.Millisecond
	return &r, nil
}

func (s *Store) params(ctx context.Context, id uuid.UUID) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM run_params WHERE run_id = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("store: params: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			name string
			v    float64
		)
		if err := rows.Scan(&name, &v); err != nil {
			return nil, fmt.Errorf("store: params: %w", err)
		}
		out[name] = v
	}
	return out, rows.Err()
}

func (s *Store) values(ctx context.Context, id uuid.UUID) (*results.Results, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT name, is_point, x, y, value
        FROM run_values
        WHERE run_id = ?
        ORDER BY seq
    `, id.String())
	if err != nil {
		return nil, fmt.Errorf("store: values: %w", err)
	}
	defer rows.Close()

	res := &results.Results{}
	for rows.Next() {
		var (
			name    string
			isPoint bool
			x, y    sql.NullFloat64
			v       float64
		)
		if err := rows.Scan(&name, &isPoint, &x, &y, &v); err != nil {
			return nil, fmt.Errorf("store: values: %w", err)
		}
		if isPoint {
			res.Points = append(res.Points, results.PointValue{Variable: name, X: x.Float64, Y: y.Float64, Value: v})
		} else {
			res.Scalars = append(res.Scalars, results.Scalar{Name: name, Value: v})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: values: %w", err)
	}
	if res.Len() == 0 {
		return nil, nil
	}
	return res, nil
}
