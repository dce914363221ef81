// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/internal/model"
	"github.com/spotterhq/spotter/pkg/core"
)

// CandidateToCore converts a GORM Candidate to a core.CandidateObject.
// The plain lat/lon columns are authoritative; Location is only a fallback
// for rows written without them.
func CandidateToCore(c model.Candidate) core.CandidateObject {
	pos := core.GeoCoordinate{Latitude: c.Latitude, Longitude: c.Longitude}
	if pos == (core.GeoCoordinate{}) && !c.Location.IsEmpty() {
		if p, _, err := geo.CoordinateFrom3857(c.Location); err == nil {
			pos = p
		}
	}

	return core.CandidateObject{
		ID:               c.ExternalID,
		Name:             c.Name,
		Category:         core.Category(c.Category),
		Position:         pos,
		Height:           c.Height,
		VisualConfidence: c.VisualConfidence,
	}
}

// CandidatesToCore converts a slice of GORM Candidates.
func CandidatesToCore(cs []model.Candidate) []core.CandidateObject {
	out := make([]core.CandidateObject, len(cs))
	for i, c := range cs {
		out[i] = CandidateToCore(c)
	}
	return out
}

// ResultFromGorm decodes the full result stored on a history record.
func ResultFromGorm(rec model.ResolutionRecord) (core.ResolutionResult, error) {
	var r core.ResolutionResult
	err := json.Unmarshal(rec.Result, &r)
	return r, err
}
