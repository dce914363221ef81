// Package ratelimit enforces a daily call quota on a candidate source.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spotterhq/spotter/internal/storage"
	"github.com/spotterhq/spotter/pkg/core"
)

// ErrLimitExceeded is returned once a key has used its daily quota.
var ErrLimitExceeded = errors.New("daily source limit exceeded")

const dayLayout = "2006-01-02"

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// CounterStore persists per-key, per-day call counts.
type CounterStore interface {
	// Increment adds one to the counter and returns the new value.
	Increment(ctx context.Context, key, day string) (int, error)
	// Count returns the current value, zero if unset.
	Count(ctx context.Context, key, day string) (int, error)
}

// Limiter allows at most limit calls per key per UTC day.
type Limiter struct {
	store CounterStore
	limit int
	now   Clock
}

// New creates a limiter. A nil clock uses time.Now.
func New(store CounterStore, dailyLimit int, now Clock) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: store, limit: dailyLimit, now: now}
}

func (l *Limiter) day() string {
	return l.now().UTC().Format(dayLayout)
}

// Allow consumes one call for key. Calls over the limit still count, so a
// caller retrying in a loop stays blocked until the day rolls over.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	n, err := l.store.Increment(ctx, key, l.day())
	if err != nil {
		return fmt.Errorf("failed to update usage counter: %w", err)
	}
	if n > l.limit {
		return fmt.Errorf("%w: %s used %d of %d", ErrLimitExceeded, key, n, l.limit)
	}
	return nil
}

// Remaining returns how many calls key has left today.
func (l *Limiter) Remaining(ctx context.Context, key string) (int, error) {
	n, err := l.store.Count(ctx, key, l.day())
	if err != nil {
		return 0, err
	}
	return max(l.limit-n, 0), nil
}

// LimitedSource charges every fetch against a limiter. Refused or
// uncountable calls surface as core.ErrCandidateSourceUnavailable.
type LimitedSource struct {
	next    storage.Source
	limiter *Limiter
	key     string
}

// NewLimitedSource wraps next, counting calls under key.
func NewLimitedSource(next storage.Source, limiter *Limiter, key string) *LimitedSource {
	return &LimitedSource{next: next, limiter: limiter, key: key}
}

func (s *LimitedSource) FetchCandidates(ctx context.Context, category core.Category, origin core.GeoCoordinate, radius float64) ([]core.CandidateObject, error) {
	if err := s.limiter.Allow(ctx, s.key); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCandidateSourceUnavailable, err)
	}
	return s.next.FetchCandidates(ctx, category, origin, radius)
}
