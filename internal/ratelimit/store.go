package ratelimit

import (
	"context"
	"sync"

	"github.com/spotterhq/spotter/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

func (s *MemoryStore) Increment(_ context.Context, key, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key + "|" + day
	s.counts[k]++
	return s.counts[k], nil
}

func (s *MemoryStore) Count(_ context.Context, key, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key+"|"+day], nil
}

// GormStore keeps counters in the usage_counters table so quotas survive restarts.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Increment(ctx context.Context, key, day string) (int, error) {
	var row model.UsageCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "counter_key"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count": gorm.Expr("usage_counters.count + 1"),
			}),
		}).Create(&model.UsageCounter{Key: key, Day: day, Count: 1}).Error
		if err != nil {
			return err
		}
		return tx.Where("counter_key = ? AND day = ?", key, day).First(&row).Error
	})
	if err != nil {
		return 0, err
	}
	return row.Count, nil
}

func (s *GormStore) Count(ctx context.Context, key, day string) (int, error) {
	var row model.UsageCounter
	err := s.db.WithContext(ctx).Where("counter_key = ? AND day = ?", key, day).Limit(1).Find(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Count, nil
}
