// internal/storage/storage.go
package storage

import (
	"context"
	"fmt"

	"github.com/spotterhq/spotter/pkg/core"
)

// Source supplies candidate objects of one category within radius meters of
// origin. Implementations must honor ctx cancellation and be safe for
// concurrent use.
type Source interface {
	FetchCandidates(ctx context.Context, category core.Category, origin core.GeoCoordinate, radius float64) ([]core.CandidateObject, error)
}

// Backend is a Source with a lifecycle.
type Backend interface {
	Source

	Init() error
	Close() error
}

// Writable is an optional interface for backends that accept imported
// candidates. Records with an existing ID replace the stored object.
type Writable interface {
	AddCandidates(ctx context.Context, records []Record) error
}

// Record is one candidate in an import file with its free-form attributes.
type Record struct {
	core.CandidateObject
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Validate checks the fields every backend relies on.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: candidate without id", core.ErrInvalidInput)
	}
	if _, err := core.ParseCategory(string(r.Category)); err != nil {
		return err
	}
	if !r.Position.Valid() {
		return fmt.Errorf("%w: candidate %s: position %s out of range", core.ErrInvalidInput, r.ID, r.Position)
	}
	return nil
}
