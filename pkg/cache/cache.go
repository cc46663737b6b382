// Package cache holds a small in-process read-through cache for liveness
// reports. It exists purely to absorb repeated reads of hot buckets; the
// event store stays the source of truth and a miss is always transparent
// to the caller. Keep the TTL well below the smallest window in use so a
// cached report can never straddle a window boundary.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lifesign/pkg/models"
)

type Options struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	MaxEntries           int
}

// Hooks are optional callbacks for metrics wiring.
type Hooks struct {
	OnHit   func()
	OnMiss  func()
	OnStale func()
}

// Loader computes a report on a miss. Errors are never cached: a store
// failure must surface on every read until the store recovers.
type Loader func(ctx context.Context) (models.LivenessReport, error)

type entry struct {
	report    models.LivenessReport
	expiresAt time.Time
	staleAt   time.Time
}

// ReportCache caches liveness reports keyed by bucket and window. Entries
// fresh within TTL are served directly; entries inside the
// stale-while-revalidate margin are served stale while one background
// reload runs; anything older is reloaded synchronously. Loads for the
// same key are collapsed through singleflight. Eviction is FIFO over a
// bounded entry count.
type ReportCache struct {
	mu    sync.RWMutex
	items map[string]*entry
	order []string
	opts  Options
	hooks Hooks
	sf    singleflight.Group
}

func New(opts Options, hooks Hooks) *ReportCache {
	return &ReportCache{
		items: make(map[string]*entry),
		order: make([]string, 0, 64),
		opts:  opts,
		hooks: hooks,
	}
}

// Get returns the cached report for key, loading it when absent or
// expired.
func (c *ReportCache) Get(ctx context.Context, key string, load Loader) (models.LivenessReport, error) {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.items[key]
	if ok && now.Before(e.expiresAt) {
		report := e.report
		c.mu.RUnlock()
		if c.hooks.OnHit != nil {
			c.hooks.OnHit()
		}
		return report, nil
	}
	if ok && now.Before(e.staleAt) {
		report := e.report
		c.mu.RUnlock()
		if c.hooks.OnStale != nil {
			c.hooks.OnStale()
		}
		go func() {
			_, _, _ = c.sf.Do("refresh:"+key, func() (interface{}, error) {
				if fresh, err := load(ctx); err == nil {
					c.store(key, fresh)
				}
				return nil, nil
			})
		}()
		return report, nil
	}
	c.mu.RUnlock()

	if c.hooks.OnMiss != nil {
		c.hooks.OnMiss()
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		report, err := load(ctx)
		if err != nil {
			return models.LivenessReport{}, err
		}
		c.store(key, report)
		return report, nil
	})
	if err != nil {
		return models.LivenessReport{}, err
	}
	return v.(models.LivenessReport), nil
}

// Len reports how many entries are currently held, for the cache gauge.
func (c *ReportCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ReportCache) store(key string, report models.LivenessReport) {
	now := time.Now()
	e := &entry{
		report:    report,
		expiresAt: now.Add(c.opts.TTL),
	}
	e.staleAt = e.expiresAt.Add(c.opts.StaleWhileRevalidate)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
}

func (c *ReportCache) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.items) > c.opts.MaxEntries && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
	}
}
