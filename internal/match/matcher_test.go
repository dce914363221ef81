package match

import (
	"testing"

	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = core.GeoCoordinate{Latitude: 40.0, Longitude: -74.0}

func at(id string, bearing, distance float64) core.CandidateObject {
	return core.CandidateObject{
		ID:       id,
		Name:     id,
		Category: core.CategoryLandmark,
		Position: geo.Destination(origin, bearing, distance),
	}
}

func TestDefaultWindows(t *testing.T) {
	w := DefaultWindows()

	air, err := w.For(core.CategoryAircraft)
	require.NoError(t, err)
	assert.Equal(t, Window{Tolerance: 15, MaxRadius: 100000}, air)

	lm, err := w.For(core.CategoryLandmark)
	require.NoError(t, err)
	assert.Equal(t, Window{Tolerance: 8, MaxRadius: 2000}, lm)

	poi, err := w.For(core.CategoryPOI)
	require.NoError(t, err)
	assert.Equal(t, Window{Tolerance: 15, MaxRadius: 2000}, poi)

	_, err = w.For("spaceship")
	assert.Error(t, err)
}

func TestMatch_ToleranceAndRadius(t *testing.T) {
	ray := Window{Tolerance: 8, MaxRadius: 2000}.Ray(origin, 90)
	candidates := []core.CandidateObject{
		at("on-axis", 90, 500),
		at("edge", 97, 800),
		at("outside-angle", 100, 800),
		at("too-far", 90, 2500),
		at("behind", 270, 300),
	}

	got := Match(ray, candidates)

	require.Len(t, got, 2)
	assert.Equal(t, "on-axis", got[0].Object.ID)
	assert.InDelta(t, 0.0, got[0].BearingDelta, 0.01)
	assert.InDelta(t, 500.0, got[0].Distance, 0.5)
	assert.Equal(t, "edge", got[1].Object.ID)
	assert.InDelta(t, 7.0, got[1].BearingDelta, 0.01)
	assert.False(t, got[0].Occluded)
}

func TestMatch_WrapsAtNorth(t *testing.T) {
	ray := Window{Tolerance: 15, MaxRadius: 2000}.Ray(origin, 355)
	got := Match(ray, []core.CandidateObject{at("east-of-north", 5, 1000)})

	require.Len(t, got, 1)
	assert.InDelta(t, 10.0, got[0].BearingDelta, 0.01)
}

func TestMatch_EmptyAndInvalid(t *testing.T) {
	ray := DefaultWindows()[core.CategoryLandmark].Ray(origin, 0)

	assert.Empty(t, Match(ray, nil))

	bad := core.CandidateObject{ID: "bad", Position: core.GeoCoordinate{Latitude: 120}}
	assert.Empty(t, Match(ray, []core.CandidateObject{bad}))
}

func TestWindow_RayNormalizesBearing(t *testing.T) {
	ray := Window{Tolerance: 1, MaxRadius: 1}.Ray(origin, -30)
	assert.InDelta(t, 330.0, ray.Bearing, 1e-9)
	assert.Equal(t, origin, ray.Origin)
}
