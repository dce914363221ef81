// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/internal/storage"
	"github.com/spotterhq/spotter/pkg/core"
)

// Backend holds candidates in memory, grouped by category.
type Backend struct {
	file string

	byCategory map[core.Category][]core.CandidateObject
	index      map[string]core.Category // ID -> category
	mu         sync.RWMutex
}

// New creates a memory backend. A non-empty file is loaded by Init.
func New(file string) *Backend {
	return &Backend{
		file:       file,
		byCategory: make(map[core.Category][]core.CandidateObject),
		index:      make(map[string]core.Category),
	}
}

// Init loads the configured candidate file, if any.
func (b *Backend) Init() error {
	if b.file == "" {
		return nil
	}
	recs, err := storage.ReadFile(b.file)
	if err != nil {
		return err
	}
	return b.AddCandidates(context.Background(), recs)
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Add stores candidates, replacing any with the same ID.
func (b *Backend) Add(objs ...core.CandidateObject) error {
	recs := make([]storage.Record, len(objs))
	for i, o := range objs {
		recs[i] = storage.Record{CandidateObject: o}
	}
	return b.AddCandidates(context.Background(), recs)
}

// AddCandidates stores validated records. Attributes are not kept.
func (b *Backend) AddCandidates(ctx context.Context, records []storage.Record) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if prev, ok := b.index[r.ID]; ok {
			b.remove(prev, r.ID)
		}
		b.byCategory[r.Category] = append(b.byCategory[r.Category], r.CandidateObject)
		b.index[r.ID] = r.Category
	}
	return nil
}

// remove drops id from the category list. Caller holds the write lock.
func (b *Backend) remove(cat core.Category, id string) {
	list := b.byCategory[cat]
	for i := range list {
		if list[i].ID == id {
			b.byCategory[cat] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	delete(b.index, id)
}

// Len returns the number of stored candidates.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.index)
}

// FetchCandidates returns candidates of category within radius meters of origin
// in insertion order.
func (b *Backend) FetchCandidates(ctx context.Context, category core.Category, origin core.GeoCoordinate, radius float64) ([]core.CandidateObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !origin.Valid() {
		return nil, fmt.Errorf("%w: origin %s", core.ErrInvalidInput, origin)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.CandidateObject
	for _, c := range b.byCategory[category] {
		if geo.DistanceBetween(origin, c.Position) <= radius {
			out = append(out, c)
		}
	}
	return out, nil
}
