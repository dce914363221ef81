// Package match filters candidate objects against a bearing ray.
package match

import (
	"fmt"

	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/pkg/core"
)

// Window is the angular tolerance and search radius applied for one category.
type Window struct {
	Tolerance float64 `json:"tolerance" mapstructure:"tolerance"` // degrees
	MaxRadius float64 `json:"maxRadius" mapstructure:"maxRadius"` // meters
}

// Windows maps each category to its search window.
type Windows map[core.Category]Window

// DefaultWindows returns the stock tolerances: a wide cone reaching far for
// aircraft, a narrow urban sightline for buildings and landmarks.
func DefaultWindows() Windows {
	return Windows{
		core.CategoryAircraft: {Tolerance: 15, MaxRadius: 100_000},
		core.CategoryBuilding: {Tolerance: 8, MaxRadius: 2_000},
		core.CategoryLandmark: {Tolerance: 8, MaxRadius: 2_000},
		core.CategoryPOI:      {Tolerance: 15, MaxRadius: 2_000},
	}
}

// For returns the window for category c.
func (w Windows) For(c core.Category) (Window, error) {
	win, ok := w[c]
	if !ok {
		return Window{}, fmt.Errorf("no search window configured for category %q", c)
	}
	return win, nil
}

// Ray builds a bearing ray for the given window.
func (w Window) Ray(origin core.GeoCoordinate, bearing float64) core.BearingRay {
	return core.BearingRay{
		Origin:    origin,
		Bearing:   geo.NormalizeBearing(bearing),
		Tolerance: w.Tolerance,
		MaxRadius: w.MaxRadius,
	}
}

// Match evaluates every candidate against ray and keeps those within the
// angular tolerance and search radius. Input order is preserved. An empty
// result is not an error.
func Match(ray core.BearingRay, candidates []core.CandidateObject) []core.IdentificationCandidate {
	matched := make([]core.IdentificationCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Position.Valid() {
			continue
		}
		distance := geo.DistanceBetween(ray.Origin, c.Position)
		if distance > ray.MaxRadius {
			continue
		}
		bearing := geo.BearingBetween(ray.Origin, c.Position)
		delta := geo.BearingDelta(ray.Bearing, bearing)
		if delta > ray.Tolerance {
			continue
		}
		matched = append(matched, core.IdentificationCandidate{
			Object:       c,
			Bearing:      bearing,
			BearingDelta: delta,
			Distance:     distance,
		})
	}
	return matched
}
