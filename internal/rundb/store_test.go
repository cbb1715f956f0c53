package rundb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening an already-migrated database must be a no-op.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.RunCount()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordRunAndGrids(t *testing.T) {
	s := openTemp(t)

	id := NewRunID()
	require.NotEmpty(t, id)
	assert.NotEqual(t, id, NewRunID())

	run := Run{
		ID:         id,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Inputs:     []string{"a.las", "b.csv"},
		Config:     map[string]any{"spacing": 5.0},
		PointCount: 12345,
		Threshold:  96,
		Degraded:   false,
	}
	require.NoError(t, s.RecordRun(run))

	require.NoError(t, s.RecordGrid(id, GridStat{
		Channel: "height", Spacing: 5, Cols: 100, Rows: 80,
		ValidCells: 7300, MinValue: -12.5, MaxValue: 88.25, Path: "out-DEM.asc",
	}))
	require.NoError(t, s.RecordGrid(id, GridStat{
		Channel: "intensity", Spacing: 5, Cols: 100, Rows: 80,
		ValidCells: 7300, Path: "out-DRG.asc",
	}))

	n, err := s.RunCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	grids, err := s.GridsForRun(id)
	require.NoError(t, err)
	require.Len(t, grids, 2)
	assert.Equal(t, "height", grids[0].Channel)
	assert.Equal(t, 88.25, grids[0].MaxValue)
	assert.Equal(t, "out-DRG.asc", grids[1].Path)

	// Unknown runs return no grids, not an error.
	grids, err = s.GridsForRun("nope")
	require.NoError(t, err)
	assert.Empty(t, grids)
}
