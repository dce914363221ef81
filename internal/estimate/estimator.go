// Package estimate provides the heuristic slant-distance estimate used when
// no database candidate matches a tap.
package estimate

import (
	"math"

	"github.com/spotterhq/spotter/pkg/core"
)

// Params holds the empirically chosen calibration constants.
type Params struct {
	BaseMeters     float64 `json:"baseMeters" mapstructure:"baseMeters"`
	MetersPerPixel float64 `json:"metersPerPixel" mapstructure:"metersPerPixel"`
	AltitudeFactor float64 `json:"altitudeFactor" mapstructure:"altitudeFactor"`
	MinMeters      float64 `json:"minMeters" mapstructure:"minMeters"`
	MaxMeters      float64 `json:"maxMeters" mapstructure:"maxMeters"`
}

// DefaultParams returns the calibration used by the capture app.
func DefaultParams() Params {
	return Params{
		BaseMeters:     100,
		MetersPerPixel: 2,
		AltitudeFactor: 0.5,
		MinMeters:      50,
		MaxMeters:      5000,
	}
}

// Estimate returns an advisory distance to the tapped object in meters,
// always clamped to [MinMeters, MaxMeters].
func (p Params) Estimate(tap core.TapPoint, img core.ImageSize, zoom, altitude float64) float64 {
	center := img.Center()
	offset := math.Hypot(tap.X-center.X, tap.Y-center.Y)

	d := p.BaseMeters + offset*p.MetersPerPixel
	if zoom > 0 {
		d /= zoom
	}
	d += altitude * p.AltitudeFactor

	if math.IsNaN(d) {
		return p.MinMeters
	}
	return math.Max(p.MinMeters, math.Min(p.MaxMeters, d))
}

// Estimate applies DefaultParams.
func Estimate(tap core.TapPoint, img core.ImageSize, zoom, altitude float64) float64 {
	return DefaultParams().Estimate(tap, img, zoom, altitude)
}
