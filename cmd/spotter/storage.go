package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spotterhq/spotter/internal/api"
	"github.com/spotterhq/spotter/internal/cache"
	"github.com/spotterhq/spotter/internal/config"
	"github.com/spotterhq/spotter/internal/database"
	"github.com/spotterhq/spotter/internal/ratelimit"
	"github.com/spotterhq/spotter/internal/storage"
	gormstorage "github.com/spotterhq/spotter/internal/storage/gorm"
	"github.com/spotterhq/spotter/internal/storage/memory"
)

// sources is the assembled candidate source and the stores behind it.
type sources struct {
	backend storage.Backend
	// source is backend behind the quota and cache layers
	source storage.Source
	// db and history are set for the sqlite and postgres backends
	db      *database.Manager
	history *gormstorage.Backend
	cache   *cache.CandidateCache
	// limiter and quotaKey are set when the daily quota is enabled
	limiter  *ratelimit.Limiter
	quotaKey string
}

// openSources creates and initializes the configured backend and its
// wrappers. Everything opened is registered for close.
func (a *app) openSources(ctx context.Context) (*sources, error) {
	cfg := config.GetSourceConfig()

	s, err := createBackend(cfg, a.log)
	if err != nil {
		return nil, err
	}
	if s.db != nil {
		a.onClose(s.db.Close)
	}
	if err := s.backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s source: %w", cfg.Type, err)
	}
	a.onClose(s.backend.Close)

	if c, ok := s.backend.(*api.Client); ok {
		if err := c.Healthcheck(ctx); err != nil {
			a.log.Warn("Candidate API is not healthy, queries may degrade", "error", err)
		} else {
			a.log.Info("Candidate API is healthy", "url", cfg.API.ServerURL)
		}
	}

	if err := s.wrap(cfg.Type, config.GetCacheConfig(), config.GetRateLimitConfig(), time.Now); err != nil {
		return nil, err
	}
	a.log.Info("Candidate source ready", "type", cfg.Type, "cache", s.cache != nil)
	s.logStats(ctx, a.log)
	a.onClose(func() error {
		s.logStats(context.Background(), a.log)
		return nil
	})
	return s, nil
}

// logStats reports the remaining quota and cache effectiveness. It logs
// nothing when neither layer is enabled.
func (s *sources) logStats(ctx context.Context, log *slog.Logger) {
	var attrs []any
	if s.limiter != nil {
		rem, err := s.limiter.Remaining(ctx, s.quotaKey)
		if err != nil {
			log.Warn("Failed to read source quota", "error", err)
		} else {
			attrs = append(attrs, "quota_remaining", rem)
		}
	}
	if s.cache != nil {
		attrs = append(attrs,
			"cache_hits", s.cache.Hits.Value(),
			"cache_misses", s.cache.Misses.Value(),
			"cache_entries", s.cache.Len(),
		)
	}
	if len(attrs) > 0 {
		log.Info("Candidate source usage", attrs...)
	}
}

func createBackend(cfg config.SourceConfig, log *slog.Logger) (*sources, error) {
	switch cfg.Type {
	case "memory":
		log.Info("Memory candidate source initialized", "file", cfg.Memory.File)
		return &sources{backend: memory.New(cfg.Memory.File)}, nil

	case "sqlite", "postgres":
		db := database.NewManager(log)
		db.Config = config.GetDatabaseConfig()
		if err := db.Connect(cfg.Type, cfg.SQLite.Path); err != nil {
			return nil, err
		}
		if err := db.Setup(); err != nil {
			_ = db.Close()
			return nil, err
		}
		history := gormstorage.New(gormstorage.Dependencies{DB: db.DB, Logger: log})
		log.Info("Database candidate source initialized", "driver", cfg.Type, "local", db.Local)
		return &sources{backend: history, db: db, history: history}, nil

	case "api":
		log.Info("API candidate source initialized", "url", cfg.API.ServerURL)
		return &sources{backend: api.New(cfg.API.ServerURL, cfg.API.APIKey, cfg.API.Timeout)}, nil

	default:
		return nil, fmt.Errorf("unknown source type: %q", cfg.Type)
	}
}

// wrap applies the daily quota and then the cache, so cache hits do not
// count against the quota. The in-process memory source is never cached.
func (s *sources) wrap(kind string, cc config.CacheConfig, rc config.RateLimitConfig, now ratelimit.Clock) error {
	s.source = s.backend

	if rc.Enabled {
		var store ratelimit.CounterStore
		switch rc.Store {
		case "memory", "":
			store = ratelimit.NewMemoryStore()
		case "database":
			if s.db == nil {
				return fmt.Errorf("rate limit store %q needs a sqlite or postgres source", rc.Store)
			}
			store = ratelimit.NewGormStore(s.db.DB)
		default:
			return fmt.Errorf("unknown rate limit store: %q", rc.Store)
		}
		s.limiter = ratelimit.New(store, rc.DailyLimit, now)
		s.quotaKey = kind
		s.source = ratelimit.NewLimitedSource(s.source, s.limiter, kind)
	}

	if cc.Enabled && kind != "memory" {
		s.cache = cache.NewCandidateCache(s.source, cc.TTL, cc.AircraftTTL)
		s.source = s.cache
	}
	return nil
}
