// Package bearing converts an image tap into a compass bearing.
package bearing

import (
	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/pkg/core"
)

// Project returns the compass bearing through tap.
// The horizontal pixel offset is normalized to [-0.5, 0.5] of the image width
// and scaled by the effective field of view. Callers validate inputs first.
func Project(tap core.TapPoint, img core.ImageSize, heading, fov float64) float64 {
	if img.Width <= 0 {
		return geo.NormalizeBearing(heading)
	}
	offset := tap.X/img.Width - 0.5
	return geo.NormalizeBearing(heading + offset*fov)
}

// Center is the bearing of the image center, used when no tap is supplied.
func Center(heading float64) float64 {
	return geo.NormalizeBearing(heading)
}
