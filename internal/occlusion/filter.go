// Package occlusion flags candidates hidden behind nearer candidates on the
// same sightline. Aircraft are never passed through here.
package occlusion

import (
	"math"
	"sort"

	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/pkg/core"
)

// DefaultBinWidth is used when a non-positive window is supplied.
const DefaultBinWidth = 4.0

// minDistance keeps elevation tangents finite for candidates at the observer.
const minDistance = 1.0

// BinWidthFor derives the angular window from a category's bearing tolerance.
func BinWidthFor(tolerance float64) float64 {
	if tolerance <= 0 {
		return DefaultBinWidth
	}
	return tolerance / 2
}

// Filter returns a copy of candidates with Occluded set on every candidate
// that has a nearer candidate within binWidth degrees of its bearing, unless
// both heights are known and the farther object rises above the skyline of
// all those nearer ones. The window is circular, so bearings either side of
// north are compared. Candidates keep their input order; none are dropped.
func Filter(candidates []core.IdentificationCandidate, binWidth float64) []core.IdentificationCandidate {
	if binWidth <= 0 {
		binWidth = DefaultBinWidth
	}
	out := make([]core.IdentificationCandidate, len(candidates))
	copy(out, candidates)

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return out[order[a]].Distance < out[order[b]].Distance
	})

	for k, i := range order {
		c := &out[i]
		blocked := false
		skyline := math.Inf(-1)
		for _, j := range order[:k] {
			n := out[j]
			if geo.BearingDelta(n.Bearing, c.Bearing) > binWidth {
				continue
			}
			if n.Object.Height == nil {
				blocked = true
				break
			}
			skyline = math.Max(skyline, elevationTangent(n))
		}
		if math.IsInf(skyline, -1) && !blocked {
			continue
		}
		c.Occluded = blocked || c.Object.Height == nil || elevationTangent(*c) <= skyline
	}
	return out
}

// Partition splits candidates into visible and occluded, preserving order.
func Partition(candidates []core.IdentificationCandidate) (visible, occluded []core.IdentificationCandidate) {
	for _, c := range candidates {
		if c.Occluded {
			occluded = append(occluded, c)
		} else {
			visible = append(visible, c)
		}
	}
	return visible, occluded
}

func elevationTangent(c core.IdentificationCandidate) float64 {
	if c.Object.Height == nil {
		return 0
	}
	return *c.Object.Height / math.Max(c.Distance, minDistance)
}
