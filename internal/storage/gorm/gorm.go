// Package gormstorage serves candidates from a SQL database through GORM and
// keeps a history of completed resolutions. It works against both the SQLite
// and the Postgres connections opened by the database package.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/internal/model"
	"github.com/spotterhq/spotter/internal/model/convert"
	"github.com/spotterhq/spotter/internal/queue"
	"github.com/spotterhq/spotter/internal/storage"
	"github.com/spotterhq/spotter/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultHistoryLimit  = 10000
	insertBatchSize      = 500
)

// Dependencies holds everything the backend needs from the caller.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger

	// FlushInterval controls how often queued history records are written.
	FlushInterval time.Duration
	// HistoryLimit bounds the pending history queue.
	HistoryLimit int
}

// Backend implements storage.Backend and storage.Writable over GORM.
type Backend struct {
	db  *gorm.DB
	log *slog.Logger

	flushInterval time.Duration
	history       *queue.Queue[model.ResolutionRecord]

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a GORM backend. Call Init before use.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = defaultHistoryLimit
	}
	return &Backend{
		db:            deps.DB,
		log:           deps.Logger,
		flushInterval: deps.FlushInterval,
		history:       queue.NewBounded[model.ResolutionRecord](deps.HistoryLimit),
		stopChan:      make(chan struct{}),
	}
}

// Init starts the history writer.
func (b *Backend) Init() error {
	if b.db == nil {
		return errors.New("gorm backend: no database")
	}
	b.wg.Add(1)
	go b.flushLoop()
	return nil
}

// Close stops the history writer after a final flush. The database
// connection belongs to the caller.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()
	return nil
}

func (b *Backend) flushLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushHistory()
		case <-b.stopChan:
			b.flushHistory()
			return
		}
	}
}

func (b *Backend) flushHistory() {
	records := b.history.Drain()
	if len(records) == 0 {
		return
	}
	err := b.db.Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, insertBatchSize).Error
	if err != nil {
		b.log.Error("Failed to write resolution history", "error", err, "count", len(records))
		return
	}
	b.log.Debug("Wrote resolution history", "count", len(records))
}

// FetchCandidates returns candidates of category within radius meters of
// origin. The lat/lon bounding box runs in SQL; the exact great-circle
// distance check runs here.
func (b *Backend) FetchCandidates(ctx context.Context, category core.Category, origin core.GeoCoordinate, radius float64) ([]core.CandidateObject, error) {
	if !origin.Valid() {
		return nil, fmt.Errorf("%w: origin %s", core.ErrInvalidInput, origin)
	}

	box := geo.SearchBounds(origin, radius)
	q := b.db.WithContext(ctx).
		Where("category = ?", string(category)).
		Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat)
	if !box.AllLongitudes {
		q = q.Where("longitude BETWEEN ? AND ?", box.MinLon, box.MaxLon)
	}

	var rows []model.Candidate
	if err := q.Order("id").Find(&rows).Error; err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", core.ErrCandidateSourceUnavailable, err)
	}

	out := make([]core.CandidateObject, 0, len(rows))
	for _, c := range convert.CandidatesToCore(rows) {
		if geo.DistanceBetween(origin, c.Position) <= radius {
			out = append(out, c)
		}
	}
	return out, nil
}

// AddCandidates upserts records keyed by their external ID.
func (b *Backend) AddCandidates(ctx context.Context, records []storage.Record) error {
	rows := make([]model.Candidate, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		row, err := convert.CandidateToGorm(r.CandidateObject, r.Attributes)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "name", "category", "latitude", "longitude",
			"location", "height", "visual_confidence", "attributes",
		}),
	}).CreateInBatches(rows, insertBatchSize).Error
}

// Observe queues a completed resolution for the history table.
func (b *Backend) Observe(_ context.Context, r core.ResolutionResult) {
	rec, err := convert.ResultToGorm(r)
	if err != nil {
		b.log.Warn("Skipping resolution history", "error", err, "query_id", r.QueryID)
		return
	}
	if dropped := b.history.Push(rec); dropped > 0 {
		b.log.Warn("Resolution history queue full", "dropped", dropped)
	}
}

// RecentResolutions returns up to limit stored results, newest first.
func (b *Backend) RecentResolutions(ctx context.Context, limit int) ([]core.ResolutionResult, error) {
	var recs []model.ResolutionRecord
	err := b.db.WithContext(ctx).Order("time DESC").Order("id DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.ResolutionResult, 0, len(recs))
	for _, rec := range recs {
		r, err := convert.ResultFromGorm(rec)
		if err != nil {
			return nil, fmt.Errorf("decoding resolution %s: %w", rec.QueryID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Count returns the number of stored candidates.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	var n int64
	err := b.db.WithContext(ctx).Model(&model.Candidate{}).Count(&n).Error
	return n, err
}
