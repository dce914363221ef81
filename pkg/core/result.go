// pkg/core/result.go
package core

import "time"

// CalculationMethod tags the pipeline path that produced a result.
type CalculationMethod string

const (
	MethodMatchedDatabase     CalculationMethod = "matched-database"
	MethodHeuristicProjection CalculationMethod = "heuristic-projection"
)

// State is a resolution pipeline state.
type State string

const (
	StateIdle              State = "idle"
	StateBearingComputed   State = "bearing-computed"
	StateCandidatesQueried State = "candidates-queried"
	StateOcclusionFiltered State = "occlusion-filtered"
	StateRanked            State = "ranked"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ResolutionResult is the engine's output for one query.
type ResolutionResult struct {
	QueryID  string   `json:"queryId"`
	Mode     Mode     `json:"mode"`
	Category Category `json:"category"`
	Bearing  float64  `json:"bearing"`

	// Candidates holds visible matches, best first.
	Candidates []IdentificationCandidate `json:"candidates"`
	// Occluded holds matches hidden behind a nearer candidate.
	Occluded []IdentificationCandidate `json:"occluded,omitempty"`
	// Selected is the accepted match in automatic mode.
	Selected *IdentificationCandidate `json:"selected,omitempty"`

	Method            CalculationMethod `json:"method"`
	EstimatedTarget   *GeoCoordinate    `json:"estimatedTarget,omitempty"`
	EstimatedDistance float64           `json:"estimatedDistance,omitempty"`
	Confidence        float64           `json:"confidence"`
	NoConfidentMatch  bool              `json:"noConfidentMatch"`
	Degraded          bool              `json:"degraded"`

	States      []State   `json:"states"`
	CompletedAt time.Time `json:"completedAt"`
}

// Best returns the top visible candidate, if any.
func (r ResolutionResult) Best() (IdentificationCandidate, bool) {
	if r.Selected != nil {
		return *r.Selected, true
	}
	if len(r.Candidates) == 0 {
		return IdentificationCandidate{}, false
	}
	return r.Candidates[0], true
}
