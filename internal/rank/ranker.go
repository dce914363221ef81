// Package rank scores matched candidates and orders them best first.
package rank

import (
	"math"
	"sort"

	"github.com/spotterhq/spotter/pkg/core"
)

// Weights controls the composite confidence.
type Weights struct {
	Bearing  float64 `json:"bearing" mapstructure:"bearing"`
	Distance float64 `json:"distance" mapstructure:"distance"`
	// VisualBoost scales the multiplicative lift from an external visual
	// match. Values above 1 act as 1.
	VisualBoost float64 `json:"visualBoost" mapstructure:"visualBoost"`
}

// DefaultWeights favors bearing alignment over range plausibility.
func DefaultWeights() Weights {
	return Weights{Bearing: 0.7, Distance: 0.3, VisualBoost: 0.5}
}

// Score computes the composite confidence of c against ray, in [0,1].
func (w Weights) Score(ray core.BearingRay, c core.IdentificationCandidate) float64 {
	total := w.Bearing + w.Distance
	if total <= 0 {
		return 0
	}
	base := (w.Bearing*BearingTerm(ray, c) + w.Distance*DistanceTerm(ray, c)) / total

	if v := c.Object.VisualConfidence; v != nil {
		// The lift shrinks as base approaches 1, so the result stays ordered
		// by base for equal visual confidence and never saturates early.
		base *= 1 + clamp01(w.VisualBoost*clamp01(*v))*(1-base)
	}
	return clamp01(base)
}

// Rank scores candidates and returns them sorted by confidence descending,
// then distance ascending, then ID. Ranks are 1-based.
func (w Weights) Rank(ray core.BearingRay, candidates []core.IdentificationCandidate) []core.IdentificationCandidate {
	out := make([]core.IdentificationCandidate, len(candidates))
	for i, c := range candidates {
		c.Confidence = w.Score(ray, c)
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Object.ID < out[j].Object.ID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// BearingTerm is 1 on the ray axis falling to 0 at the tolerance edge.
func BearingTerm(ray core.BearingRay, c core.IdentificationCandidate) float64 {
	if ray.Tolerance <= 0 {
		if c.BearingDelta == 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - c.BearingDelta/ray.Tolerance)
}

// DistanceTerm favors candidates near the ray's expected range. Without an
// expectation the middle of the search radius is used, so both extremes score lower.
func DistanceTerm(ray core.BearingRay, c core.IdentificationCandidate) float64 {
	if ray.MaxRadius <= 0 {
		return 1
	}
	expected := ray.ExpectedDistance
	if expected <= 0 {
		expected = ray.MaxRadius / 2
	}
	return clamp01(1 - math.Abs(c.Distance-expected)/ray.MaxRadius)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
