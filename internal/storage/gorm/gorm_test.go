package gormstorage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spotterhq/spotter/internal/database"
	"github.com/spotterhq/spotter/internal/storage"
	"github.com/spotterhq/spotter/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Writable = (*Backend)(nil)
)

var origin = core.GeoCoordinate{Latitude: 40.0, Longitude: -74.0}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	m := database.NewManager(nil)
	require.NoError(t, m.Connect("sqlite", filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, m.Setup())

	b := New(Dependencies{DB: m.DB, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() {
		_ = b.Close()
		_ = m.Close()
	})
	return b
}

func rec(id string, cat core.Category, lat, lon float64) storage.Record {
	return storage.Record{CandidateObject: core.CandidateObject{
		ID:       id,
		Name:     "name-" + id,
		Category: cat,
		Position: core.GeoCoordinate{Latitude: lat, Longitude: lon},
	}}
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	require.Error(t, b.Init())
}

func TestAddAndFetchCandidates(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	h := 80.0
	tower := rec("tower", core.CategoryBuilding, 40.005, -74.0) // ~555 m north
	tower.Height = &h
	tower.Attributes = map[string]any{"levels": 20.0}

	require.NoError(t, b.AddCandidates(ctx, []storage.Record{
		tower,
		rec("corner", core.CategoryBuilding, 40.0125, -74.0125), // in box, ~1.75 km
		rec("far", core.CategoryBuilding, 40.2, -74.0),          // outside box
		rec("cafe", core.CategoryPOI, 40.001, -74.0),
	}))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	got, err := b.FetchCandidates(ctx, core.CategoryBuilding, origin, 1000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tower", got[0].ID)
	require.NotNil(t, got[0].Height)
	assert.Equal(t, 80.0, *got[0].Height)
	assert.Nil(t, got[0].VisualConfidence)

	got, err = b.FetchCandidates(ctx, core.CategoryBuilding, origin, 2000)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAddCandidates_Upserts(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.AddCandidates(ctx, []storage.Record{rec("x", core.CategoryPOI, 40.001, -74.0)}))
	updated := rec("x", core.CategoryPOI, 40.002, -74.0)
	updated.Name = "renamed"
	require.NoError(t, b.AddCandidates(ctx, []storage.Record{updated}))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := b.FetchCandidates(ctx, core.CategoryPOI, origin, 1000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "renamed", got[0].Name)
	assert.InDelta(t, 40.002, got[0].Position.Latitude, 1e-9)
}

func TestAddCandidates_Invalid(t *testing.T) {
	b := newTestBackend(t)
	err := b.AddCandidates(context.Background(), []storage.Record{rec("", core.CategoryPOI, 1, 1)})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestFetchCandidates_NearPoleScansAllLongitudes(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.AddCandidates(ctx, []storage.Record{
		rec("station", core.CategoryLandmark, 89.995, 120.0),
	}))

	got, err := b.FetchCandidates(ctx, core.CategoryLandmark, core.GeoCoordinate{Latitude: 89.995, Longitude: -60}, 2000)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFetchCandidates_ClosedDatabase(t *testing.T) {
	m := database.NewManager(nil)
	require.NoError(t, m.Connect("sqlite", filepath.Join(t.TempDir(), "closed.db")))
	require.NoError(t, m.Setup())
	b := New(Dependencies{DB: m.DB})
	require.NoError(t, m.Close())

	_, err := b.FetchCandidates(context.Background(), core.CategoryPOI, origin, 100)
	assert.ErrorIs(t, err, core.ErrCandidateSourceUnavailable)
}

func TestObserve_FlushesOnClose(t *testing.T) {
	m := database.NewManager(nil)
	require.NoError(t, m.Connect("sqlite", filepath.Join(t.TempDir(), "history.db")))
	require.NoError(t, m.Setup())
	t.Cleanup(func() { _ = m.Close() })

	b := New(Dependencies{DB: m.DB, FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	target := core.GeoCoordinate{Latitude: 40.001, Longitude: -74.0}
	for i, id := range []string{"q1", "q2"} {
		b.Observe(context.Background(), core.ResolutionResult{
			QueryID:         id,
			Mode:            core.ModeInteractive,
			Category:        core.CategoryLandmark,
			Method:          core.MethodHeuristicProjection,
			EstimatedTarget: &target,
			Confidence:      0.1,
			CompletedAt:     time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		})
	}
	assert.Equal(t, 2, b.history.Len())

	require.NoError(t, b.Close())
	assert.Equal(t, 0, b.history.Len())

	got, err := b.RecentResolutions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q2", got[0].QueryID)
	assert.Equal(t, core.MethodHeuristicProjection, got[1].Method)
}

func TestClose_Idempotent(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
