// Package rundb records gridding runs into a sqlite database so past
// runs, their configuration and per-grid statistics stay queryable.
package rundb

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the run-metadata database.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run database %q: %w", path, err)
	}
	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Not closing m: that would close the shared DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run is one completed gridding run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Inputs     []string
	Config     any // marshalled to JSON
	PointCount int
	Threshold  float64
	Degraded   bool
}

// GridStat is the summary of one produced grid.
type GridStat struct {
	Channel    string
	Spacing    float64
	SpacingIdx int
	Cols, Rows int
	ValidCells int
	MinValue   float64
	MaxValue   float64
	Path       string
}

// RecordRun inserts the run row. Inputs and Config are stored as JSON.
func (s *Store) RecordRun(run Run) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO runs (run_id, started_at, finished_at, inputs, config, point_count, threshold, degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.FinishedAt, string(inputs), string(config),
		run.PointCount, run.Threshold, boolToInt(run.Degraded))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordGrid inserts one grid-summary row for a recorded run.
func (s *Store) RecordGrid(runID string, g GridStat) error {
	_, err := s.Exec(`
		INSERT INTO run_grids (run_id, channel, spacing, spacing_idx, cols, rows, valid_cells, min_value, max_value, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, g.Channel, g.Spacing, g.SpacingIdx, g.Cols, g.Rows,
		g.ValidCells, g.MinValue, g.MaxValue, g.Path)
	if err != nil {
		return fmt.Errorf("insert grid for run %s: %w", runID, err)
	}
	return nil
}

// GridsForRun returns the recorded grid summaries of one run, in
// insertion order.
func (s *Store) GridsForRun(runID string) ([]GridStat, error) {
	rows, err := s.Query(`
		SELECT channel, spacing, spacing_idx, cols, rows, valid_cells, min_value, max_value, path
		FROM run_grids WHERE run_id = ? ORDER BY grid_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query grids for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []GridStat
	for rows.Next() {
		var g GridStat
		if err := rows.Scan(&g.Channel, &g.Spacing, &g.SpacingIdx, &g.Cols, &g.Rows,
			&g.ValidCells, &g.MinValue, &g.MaxValue, &g.Path); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RunCount returns the number of recorded runs.
func (s *Store) RunCount() (int, error) {
	var n int
	err := s.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
