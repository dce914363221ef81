// pkg/core/candidate.go
package core

import "fmt"

// Category selects search tolerances and whether occlusion applies.
type Category string

const (
	CategoryAircraft Category = "aircraft"
	CategoryBuilding Category = "building"
	CategoryLandmark Category = "landmark"
	CategoryPOI      Category = "poi"
)

// Categories lists every supported category.
var Categories = []Category{CategoryAircraft, CategoryBuilding, CategoryLandmark, CategoryPOI}

// IsAircraft reports whether objects of this category have open sky visibility.
func (c Category) IsAircraft() bool {
	return c == CategoryAircraft
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
}

// Mode is the capture flow a query came from.
type Mode string

const (
	// ModeInteractive requires a tap point.
	ModeInteractive Mode = "interactive"
	// ModeAutomatic resolves without a tap and yields at most one match.
	ModeAutomatic Mode = "automatic"
)

// BearingRay is the search ray cast from the observer.
type BearingRay struct {
	Origin           GeoCoordinate `json:"origin"`
	Bearing          float64       `json:"bearing"`   // [0,360)
	Tolerance        float64       `json:"tolerance"` // degrees
	MaxRadius        float64       `json:"maxRadius"` // meters
	ExpectedDistance float64       `json:"expectedDistance,omitempty"`
}

// CandidateObject is a geo-referenced object supplied per query by an
// external data source.
type CandidateObject struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Category         Category      `json:"category"`
	Position         GeoCoordinate `json:"position"`
	Height           *float64      `json:"height,omitempty"` // meters; altitude for aircraft
	VisualConfidence *float64      `json:"visualConfidence,omitempty"`
}

// IdentificationCandidate is a CandidateObject evaluated against one ray.
type IdentificationCandidate struct {
	Object       CandidateObject `json:"object"`
	Bearing      float64         `json:"bearing"`
	BearingDelta float64         `json:"bearingDelta"`
	Distance     float64         `json:"distance"`
	Occluded     bool            `json:"occluded"`
	Confidence   float64         `json:"confidence"`
	Rank         int             `json:"rank,omitempty"`
}
