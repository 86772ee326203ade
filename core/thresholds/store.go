// Package thresholds holds the per-product-group runtime configuration that
// drives the auto-trigger loop: delta thresholds, poll intervals, cooldown and
// Monte Carlo scenario count. The store serves reads from an in-memory cache;
// writes persist asynchronously and publish a change event so running loops
// observe new values without a restart.
package thresholds

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/tradedesk/routeopt/core/logger"
	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/internal/eventbus"
)

// Config is the runtime tuning for one product group.
type Config struct {
	ProductGroup  string                   `json:"product_group"`
	Enabled       bool                     `json:"enabled"`
	Thresholds    map[string]float64       `json:"thresholds"`
	PollIntervals map[string]time.Duration `json:"poll_intervals"`
	Cooldown      time.Duration            `json:"cooldown"`
	Scenarios     int                      `json:"scenarios"`
	Cutoffs       model.SignalCutoffs      `json:"cutoffs"`
}

func (c Config) clone() Config {
	c.Thresholds = maps.Clone(c.Thresholds)
	c.PollIntervals = maps.Clone(c.PollIntervals)
	return c
}

// Persistence is the durable backing for threshold configuration.
type Persistence interface {
	LoadConfigs(ctx context.Context) ([]Config, error)
	SaveConfig(ctx context.Context, cfg Config) error
}

// Store caches configuration per product group. All methods are safe for
// concurrent use.
type Store struct {
	mu    sync.RWMutex
	cache map[string]Config
	db    Persistence
	bus   *eventbus.TypedBus[Config]
	log   logger.Logger
}

// loadTimeout bounds the startup read so an unavailable backing store can
// never block service start.
const loadTimeout = 5 * time.Second

// NewStore builds a store seeded with hardcoded defaults, then overlays
// whatever the durable store holds. A persistence failure is logged and the
// defaults stay authoritative.
func NewStore(ctx context.Context, db Persistence, log logger.Logger) *Store {
	s := &Store{
		cache: make(map[string]Config),
		db:    db,
		bus:   eventbus.NewTyped[Config](),
		log:   log,
	}
	for _, cfg := range Defaults() {
		s.cache[cfg.ProductGroup] = cfg
	}
	if db != nil {
		loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()
		stored, err := db.LoadConfigs(loadCtx)
		if err != nil {
			log.Warnf("threshold config load failed, using defaults: %v", err)
			return s
		}
		for _, cfg := range stored {
			s.cache[cfg.ProductGroup] = cfg.clone()
		}
	}
	return s
}

// Get returns the configuration for a product group.
func (s *Store) Get(productGroup string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.cache[productGroup]
	if !ok {
		return Config{}, false
	}
	return cfg.clone(), true
}

// All returns every cached configuration.
func (s *Store) All() []Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Config, 0, len(s.cache))
	for _, cfg := range s.cache {
		out = append(out, cfg.clone())
	}
	return out
}

// Replace installs a full configuration for the product group.
func (s *Store) Replace(cfg Config) {
	s.mu.Lock()
	s.cache[cfg.ProductGroup] = cfg.clone()
	stored := s.cache[cfg.ProductGroup].clone()
	s.mu.Unlock()
	s.afterWrite(stored)
}

// MergeThresholds overlays the given variable thresholds onto the existing
// map; variables not mentioned keep their current values.
func (s *Store) MergeThresholds(productGroup string, updates map[string]float64) (Config, bool) {
	return s.merge(productGroup, func(cfg *Config) {
		if cfg.Thresholds == nil {
			cfg.Thresholds = make(map[string]float64, len(updates))
		}
		maps.Copy(cfg.Thresholds, updates)
	})
}

// MergePollIntervals overlays the given per-source poll intervals.
func (s *Store) MergePollIntervals(productGroup string, updates map[string]time.Duration) (Config, bool) {
	return s.merge(productGroup, func(cfg *Config) {
		if cfg.PollIntervals == nil {
			cfg.PollIntervals = make(map[string]time.Duration, len(updates))
		}
		maps.Copy(cfg.PollIntervals, updates)
	})
}

// SetEnabled toggles auto-triggering for the product group.
func (s *Store) SetEnabled(productGroup string, enabled bool) (Config, bool) {
	return s.merge(productGroup, func(cfg *Config) { cfg.Enabled = enabled })
}

// SetCooldown updates the minimum spacing between accepted solves.
func (s *Store) SetCooldown(productGroup string, cooldown time.Duration) (Config, bool) {
	return s.merge(productGroup, func(cfg *Config) { cfg.Cooldown = cooldown })
}

func (s *Store) merge(productGroup string, apply func(*Config)) (Config, bool) {
	s.mu.Lock()
	cfg, ok := s.cache[productGroup]
	if !ok {
		s.mu.Unlock()
		return Config{}, false
	}
	cfg = cfg.clone()
	apply(&cfg)
	s.cache[productGroup] = cfg
	stored := cfg.clone()
	s.mu.Unlock()
	s.afterWrite(stored)
	return stored, true
}

// afterWrite persists asynchronously and notifies subscribers. Persistence
// failure never rolls back the cache; the in-memory state stays authoritative.
func (s *Store) afterWrite(cfg Config) {
	if s.db != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
			defer cancel()
			if err := s.db.SaveConfig(ctx, cfg); err != nil {
				s.log.Errorf("threshold config persist %s: %v", cfg.ProductGroup, err)
			}
		}()
	}
	s.bus.Publish(cfg)
}

// Changes returns a subscription that receives every updated Config.
func (s *Store) Changes() <-chan Config { return s.bus.Subscribe() }

// Unsubscribe releases a subscription obtained from Changes.
func (s *Store) Unsubscribe(ch <-chan Config) { s.bus.Unsubscribe(ch) }

// Close shuts down change notification.
func (s *Store) Close() { s.bus.Close() }

// EffectivePollInterval returns the shortest interval configured for the data
// source across all enabled product groups. Shortest wins so no enabled group
// sees staler data than it asked for. The second return is false when no
// enabled group polls the source.
func (s *Store) EffectivePollInterval(source string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best time.Duration
	found := false
	for _, cfg := range s.cache {
		if !cfg.Enabled {
			continue
		}
		iv, ok := cfg.PollIntervals[source]
		if !ok || iv <= 0 {
			continue
		}
		if !found || iv < best {
			best = iv
			found = true
		}
	}
	return best, found
}
