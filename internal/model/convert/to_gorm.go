package convert

import (
	"encoding/json"
	"fmt"

	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/internal/model"
	"github.com/spotterhq/spotter/pkg/core"
	"gorm.io/datatypes"
)

// CandidateToGorm converts a core.CandidateObject to a GORM Candidate.
// attrs is free-form source metadata and may be nil.
func CandidateToGorm(c core.CandidateObject, attrs map[string]any) (model.Candidate, error) {
	var height float64
	if c.Height != nil {
		height = *c.Height
	}

	out := model.Candidate{
		ExternalID:       c.ID,
		Name:             c.Name,
		Category:         string(c.Category),
		Latitude:         c.Position.Latitude,
		Longitude:        c.Position.Longitude,
		Location:         geo.Point3857(c.Position, height),
		Height:           c.Height,
		VisualConfidence: c.VisualConfidence,
	}

	if len(attrs) > 0 {
		raw, err := json.Marshal(attrs)
		if err != nil {
			return model.Candidate{}, fmt.Errorf("failed to marshal attributes for %s: %w", c.ID, err)
		}
		out.Attributes = datatypes.JSON(raw)
	}
	return out, nil
}

// ResultToGorm converts a completed resolution into a history record.
func ResultToGorm(r core.ResolutionResult) (model.ResolutionRecord, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return model.ResolutionRecord{}, fmt.Errorf("failed to marshal result %s: %w", r.QueryID, err)
	}

	rec := model.ResolutionRecord{
		Time:             r.CompletedAt,
		QueryID:          r.QueryID,
		Mode:             string(r.Mode),
		Category:         string(r.Category),
		Bearing:          r.Bearing,
		Method:           string(r.Method),
		Confidence:       r.Confidence,
		NoConfidentMatch: r.NoConfidentMatch,
		Degraded:         r.Degraded,
		Result:           datatypes.JSON(raw),
	}

	if best, ok := r.Best(); ok {
		rec.SelectedID = best.Object.ID
		rec.Target = geo.Point3857(best.Object.Position, 0)
	} else if r.EstimatedTarget != nil {
		rec.Target = geo.Point3857(*r.EstimatedTarget, 0)
	}
	return rec, nil
}
