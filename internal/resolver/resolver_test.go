package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spotterhq/spotter/internal/config"
	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/internal/storage/memory"
	"github.com/spotterhq/spotter/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var observer = core.GeoCoordinate{Latitude: 40, Longitude: -74}

func metadata(heading float64) core.CaptureMetadata {
	return core.CaptureMetadata{
		Timestamp:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Observer:    observer,
		Heading:     heading,
		Image:       core.ImageSize{Width: 1000, Height: 800},
		ZoomFactor:  1,
		FieldOfView: 60,
		GPSAccuracy: 5,
	}
}

func ptr(v float64) *float64 { return &v }

func object(id string, cat core.Category, bearing, distance float64, height *float64) core.CandidateObject {
	return core.CandidateObject{
		ID:       id,
		Name:     id,
		Category: cat,
		Position: geo.Destination(observer, bearing, distance),
		Height:   height,
	}
}

// sourceFunc adapts a function to storage.Source.
type sourceFunc func(ctx context.Context, cat core.Category, origin core.GeoCoordinate, radius float64) ([]core.CandidateObject, error)

func (f sourceFunc) FetchCandidates(ctx context.Context, cat core.Category, origin core.GeoCoordinate, radius float64) ([]core.CandidateObject, error) {
	return f(ctx, cat, origin, radius)
}

// blockingSource waits for the fetch context to end.
func blockingSource(started chan<- struct{}) sourceFunc {
	return func(ctx context.Context, _ core.Category, _ core.GeoCoordinate, _ float64) ([]core.CandidateObject, error) {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

type recorder struct {
	mu      sync.Mutex
	results []core.ResolutionResult
}

func (r *recorder) Observe(_ context.Context, res core.ResolutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func newMemory(t *testing.T, objs ...core.CandidateObject) *memory.Backend {
	t.Helper()
	b := memory.New("")
	require.NoError(t, b.Init())
	require.NoError(t, b.Add(objs...))
	return b
}

func newResolver(t *testing.T, cfg config.EngineConfig, src sourceFunc, opts ...Option) *Resolver {
	t.Helper()
	r, err := New(cfg, src, opts...)
	require.NoError(t, err)
	return r
}

func TestNew_NilSource(t *testing.T) {
	_, err := New(config.DefaultEngineConfig(), nil)
	require.Error(t, err)
}

func TestResolve_AircraftAutomaticSelectsAlignedMatch(t *testing.T) {
	rec := &recorder{}
	src := newMemory(t,
		object("UAL123", core.CategoryAircraft, 92, 20_000, ptr(9000)),
		object("DAL9", core.CategoryAircraft, 270, 10_000, ptr(3000)),
	)
	r, err := New(config.DefaultEngineConfig(), src, WithObservers(rec))
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), Query{
		Mode:     core.ModeAutomatic,
		Category: core.CategoryAircraft,
		Metadata: metadata(90),
	})
	require.NoError(t, err)

	assert.Equal(t, core.ModeAutomatic, res.Mode)
	assert.InDelta(t, 90, res.Bearing, 1e-9)
	require.NotNil(t, res.Selected)
	assert.Equal(t, "UAL123", res.Selected.Object.ID)
	assert.InDelta(t, 2, res.Selected.BearingDelta, 0.01)
	assert.InDelta(t, 20_000, res.Selected.Distance, 1)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, core.MethodMatchedDatabase, res.Method)
	assert.Equal(t, res.Selected.Confidence, res.Confidence)
	assert.False(t, res.NoConfidentMatch)
	assert.False(t, res.Degraded)
	assert.Nil(t, res.EstimatedTarget)
	assert.Equal(t, []core.State{
		core.StateIdle,
		core.StateBearingComputed,
		core.StateCandidatesQueried,
		core.StateRanked,
		core.StateCompleted,
	}, res.States)
	assert.Len(t, res.QueryID, 36)
	assert.Equal(t, 1, rec.len())
}

func TestResolve_AircraftOutsideAcceptanceIsNoConfidentMatch(t *testing.T) {
	src := newMemory(t, object("N12", core.CategoryAircraft, 102, 5_000, nil))
	r, err := New(config.DefaultEngineConfig(), src)
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), Query{
		Category: core.CategoryAircraft,
		Metadata: metadata(90),
	})
	require.NoError(t, err)

	assert.Equal(t, core.ModeAutomatic, res.Mode, "aircraft default to automatic")
	assert.True(t, res.NoConfidentMatch)
	assert.Nil(t, res.Selected)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, core.MethodHeuristicProjection, res.Method)
	require.NotNil(t, res.EstimatedTarget)
	assert.InDelta(t, 0.1, res.Confidence, 1e-9)
}

func TestResolve_AutomaticWithoutCandidatesIsHeuristic(t *testing.T) {
	r, err := New(config.DefaultEngineConfig(), newMemory(t))
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), Query{
		Mode:     core.ModeAutomatic,
		Category: core.CategoryAircraft,
		Metadata: metadata(45),
	})
	require.NoError(t, err)

	assert.False(t, res.NoConfidentMatch)
	assert.Equal(t, core.MethodHeuristicProjection, res.Method)
	require.NotNil(t, res.EstimatedTarget)
}

func TestResolve_InteractiveLandmarkOcclusion(t *testing.T) {
	src := newMemory(t,
		object("near", core.CategoryLandmark, 182, 400, nil),
		object("far", core.CategoryLandmark, 182.5, 1_200, ptr(30)),
		object("behind", core.CategoryLandmark, 0, 300, nil),
	)
	r, err := New(config.DefaultEngineConfig(), src)
	require.NoError(t, err)

	tap := core.TapPoint{X: 500, Y: 400}
	res, err := r.Resolve(context.Background(), Query{
		ID:       "q-occlusion",
		Mode:     core.ModeInteractive,
		Category: core.CategoryLandmark,
		Metadata: metadata(182),
		Tap:      &tap,
	})
	require.NoError(t, err)

	assert.Equal(t, "q-occlusion", res.QueryID)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "near", res.Candidates[0].Object.ID)
	assert.Equal(t, 1, res.Candidates[0].Rank)
	assert.False(t, res.Candidates[0].Occluded)
	require.Len(t, res.Occluded, 1)
	assert.Equal(t, "far", res.Occluded[0].Object.ID)
	assert.True(t, res.Occluded[0].Occluded)
	assert.Nil(t, res.Selected)
	assert.Equal(t, core.MethodMatchedDatabase, res.Method)
	assert.Contains(t, res.States, core.StateOcclusionFiltered)
	assert.Equal(t, core.StateCompleted, res.States[len(res.States)-1])
}

func TestResolve_PointOfInterestOcclusion(t *testing.T) {
	src := newMemory(t,
		object("kiosk", core.CategoryPOI, 182, 400, nil),
		object("cafe", core.CategoryPOI, 184, 900, ptr(20)),
	)
	r, err := New(config.DefaultEngineConfig(), src)
	require.NoError(t, err)

	tap := core.TapPoint{X: 500, Y: 400}
	res, err := r.Resolve(context.Background(), Query{
		Mode:     core.ModeInteractive,
		Category: core.CategoryPOI,
		Metadata: metadata(182),
		Tap:      &tap,
	})
	require.NoError(t, err)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "kiosk", res.Candidates[0].Object.ID)
	require.Len(t, res.Occluded, 1)
	assert.Equal(t, "cafe", res.Occluded[0].Object.ID)
	assert.Contains(t, res.States, core.StateOcclusionFiltered)
}

func TestResolve_InteractiveTapShiftsBearing(t *testing.T) {
	src := newMemory(t,
		object("left", core.CategoryBuilding, 333, 300, nil),
		object("right", core.CategoryBuilding, 27, 300, nil),
	)
	r, err := New(config.DefaultEngineConfig(), src)
	require.NoError(t, err)

	// Right edge of a 60 degree view while facing north.
	tap := core.TapPoint{X: 1000, Y: 400}
	res, err := r.Resolve(context.Background(), Query{
		Mode:     core.ModeInteractive,
		Category: core.CategoryBuilding,
		Metadata: metadata(0),
		Tap:      &tap,
	})
	require.NoError(t, err)

	assert.InDelta(t, 30, res.Bearing, 1e-9)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "right", res.Candidates[0].Object.ID)
}

func TestResolve_LandmarkHeuristicFallback(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	r, err := New(cfg, newMemory(t))
	require.NoError(t, err)

	md := metadata(120)
	tap := md.Image.Center()
	res, err := r.Resolve(context.Background(), Query{
		Mode:     core.ModeInteractive,
		Category: core.CategoryLandmark,
		Metadata: md,
		Tap:      &tap,
	})
	require.NoError(t, err)

	want := cfg.Estimator.Estimate(tap, md.Image, md.ZoomFactor, md.Altitude)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, core.MethodHeuristicProjection, res.Method)
	assert.Equal(t, want, res.EstimatedDistance)
	assert.Equal(t, cfg.HeuristicConfidence, res.Confidence)
	require.NotNil(t, res.EstimatedTarget)
	assert.InDelta(t, want, geo.DistanceBetween(observer, *res.EstimatedTarget), 0.5)
	assert.InDelta(t, 120, geo.BearingBetween(observer, *res.EstimatedTarget), 0.01)
	assert.False(t, res.Degraded)
}

func TestResolve_InvalidInput(t *testing.T) {
	outside := core.TapPoint{X: 1001, Y: 10}
	inside := core.TapPoint{X: 10, Y: 10}
	badHeading := metadata(0)
	badHeading.Heading = 360
	badZoom := metadata(0)
	badZoom.ZoomFactor = 50

	tests := []struct {
		name  string
		query Query
	}{
		{"tap outside image", Query{Mode: core.ModeInteractive, Category: core.CategoryPOI, Metadata: metadata(0), Tap: &outside}},
		{"interactive without tap", Query{Mode: core.ModeInteractive, Category: core.CategoryPOI, Metadata: metadata(0)}},
		{"heading out of range", Query{Mode: core.ModeInteractive, Category: core.CategoryPOI, Metadata: badHeading, Tap: &inside}},
		{"zoom out of range", Query{Mode: core.ModeAutomatic, Category: core.CategoryAircraft, Metadata: badZoom}},
		{"unknown category", Query{Mode: core.ModeAutomatic, Category: "ship", Metadata: metadata(0)}},
		{"unknown mode", Query{Mode: "burst", Category: core.CategoryPOI, Metadata: metadata(0), Tap: &inside}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			called := false
			src := sourceFunc(func(context.Context, core.Category, core.GeoCoordinate, float64) ([]core.CandidateObject, error) {
				called = true
				return nil, nil
			})
			r := newResolver(t, config.DefaultEngineConfig(), src, WithObservers(rec))

			res, err := r.Resolve(context.Background(), tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
			assert.Equal(t, []core.State{core.StateIdle, core.StateFailed}, res.States)
			assert.NotEmpty(t, res.QueryID)
			assert.False(t, called, "source must not be queried")
			assert.Equal(t, 0, rec.len())
		})
	}
}

func TestResolve_SourceErrorDegrades(t *testing.T) {
	src := sourceFunc(func(context.Context, core.Category, core.GeoCoordinate, float64) ([]core.CandidateObject, error) {
		return nil, fmt.Errorf("%w: connection refused", core.ErrCandidateSourceUnavailable)
	})
	r := newResolver(t, config.DefaultEngineConfig(), src)

	tap := core.TapPoint{X: 200, Y: 400}
	res, err := r.Resolve(context.Background(), Query{
		Mode:     core.ModeInteractive,
		Category: core.CategoryPOI,
		Metadata: metadata(10),
		Tap:      &tap,
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, core.MethodHeuristicProjection, res.Method)
	assert.Equal(t, core.StateCompleted, res.States[len(res.States)-1])
}

func TestResolve_SourceTimeoutDegrades(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := config.DefaultEngineConfig()
	cfg.AircraftTimeout = 20 * time.Millisecond
	r := newResolver(t, cfg, blockingSource(nil))

	start := time.Now()
	res, err := r.Resolve(context.Background(), Query{
		Category: core.CategoryAircraft,
		Metadata: metadata(200),
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Degraded)
	assert.Equal(t, core.MethodHeuristicProjection, res.Method)
}

func TestResolve_ContextCancelled(t *testing.T) {
	r := newResolver(t, config.DefaultEngineConfig(), sourceFunc(
		func(context.Context, core.Category, core.GeoCoordinate, float64) ([]core.CandidateObject, error) {
			return nil, nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Resolve(ctx, Query{Category: core.CategoryAircraft, Metadata: metadata(0)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.StateFailed, res.States[len(res.States)-1])
	assert.Empty(t, res.Candidates)
}

func TestTask_CancelAbandonsPendingFetch(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	started := make(chan struct{}, 1)
	r := newResolver(t, config.DefaultEngineConfig(), blockingSource(started), WithObservers(rec))

	task := r.Start(context.Background(), Query{Category: core.CategoryAircraft, Metadata: metadata(0)})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish after cancel")
	}

	_, err := task.Wait()
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, rec.len())
	task.Cancel()
}

func TestTask_Completes(t *testing.T) {
	src := newMemory(t, object("AAL1", core.CategoryAircraft, 10, 8_000, nil))
	r, err := New(config.DefaultEngineConfig(), src)
	require.NoError(t, err)

	task := r.Start(context.Background(), Query{Category: core.CategoryAircraft, Metadata: metadata(10)})
	res, err := task.Wait()
	require.NoError(t, err)
	require.NotNil(t, res.Selected)
	assert.Equal(t, "AAL1", res.Selected.Object.ID)
}

func TestResolve_ConcurrentQueries(t *testing.T) {
	src := newMemory(t,
		object("north", core.CategoryBuilding, 0.5, 500, nil),
		object("east", core.CategoryBuilding, 90.5, 500, nil),
		object("south", core.CategoryBuilding, 180.5, 500, nil),
		object("west", core.CategoryBuilding, 270.5, 500, nil),
	)
	rec := &recorder{}
	r, err := New(config.DefaultEngineConfig(), src, WithObservers(rec))
	require.NoError(t, err)

	want := map[float64]string{0: "north", 90: "east", 180: "south", 270: "west"}
	headings := []float64{0, 90, 180, 270}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(h float64) {
			defer wg.Done()
			tap := core.TapPoint{X: 500, Y: 400}
			res, err := r.Resolve(context.Background(), Query{
				Mode:     core.ModeInteractive,
				Category: core.CategoryBuilding,
				Metadata: metadata(h),
				Tap:      &tap,
			})
			if err != nil {
				errs <- err
				return
			}
			if len(res.Candidates) != 1 || res.Candidates[0].Object.ID != want[h] {
				errs <- fmt.Errorf("heading %v: got %+v", h, res.Candidates)
			}
		}(headings[i%len(headings)])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 40, rec.len())
}

func TestResolve_UsesClock(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r, err := New(config.DefaultEngineConfig(), newMemory(t), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), Query{Category: core.CategoryAircraft, Metadata: metadata(0)})
	require.NoError(t, err)
	assert.Equal(t, fixed, res.CompletedAt)
}

func TestRun_NoTransitionAfterTerminalState(t *testing.T) {
	p := &run{states: []core.State{core.StateIdle}}
	p.enter(core.StateBearingComputed)
	p.enter(core.StateCompleted)
	p.enter(core.StateFailed)
	p.enter(core.StateRanked)

	assert.Equal(t, []core.State{core.StateIdle, core.StateBearingComputed, core.StateCompleted}, p.states)
}
