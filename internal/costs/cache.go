// Package costs resolves per-variant unit costs from a local store, falling back to
// one bounded call to the external pricing service.
package costs

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/salesops/salesops/internal/revenue"
)

const (
	// MaxLookupBatch caps the ids sent to the pricing service in a single call.
	MaxLookupBatch = 200
	// DefaultLookupTimeout bounds the pricing service call.
	DefaultLookupTimeout = 3 * time.Second
)

// Lookup outcomes reported to the observer.
const (
	OutcomeHit     = "hit"
	OutcomeFetched = "fetched"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// Store is the local variant cost cache.
type Store interface {
	Get(ctx context.Context, variantIDs []int64) (revenue.CostMap, error)
	Put(ctx context.Context, costs revenue.CostMap) error
}

// Lookup is the external pricing service.
type Lookup interface {
	FetchUnitCosts(ctx context.Context, variantIDs []int64) (revenue.CostMap, error)
}

// Observer receives cost resolution counters.
type Observer interface {
	ObserveCostLookup(outcome string, count int)
}

// Resolution is the outcome of one UnitCosts call.
type Resolution struct {
	// Costs holds every variant whose cost is known.
	Costs revenue.CostMap
	// Fetched holds the subset freshly returned by the pricing service; callers persist it.
	Fetched revenue.CostMap
	// Unresolved lists variants left without a cost.
	Unresolved []int64
}

// Config tunes the cache.
type Config struct {
	MaxBatch int
	Timeout  time.Duration
	Logger   *slog.Logger
	Observer Observer
}

// Cache combines the local store with the pricing service.
type Cache struct {
	store    Store
	lookup   Lookup
	maxBatch int
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
}

// NewCache wires a store and a lookup. Either may be nil.
func NewCache(store Store, lookup Lookup, cfg Config) *Cache {
	if cfg.MaxBatch <= 0 || cfg.MaxBatch > MaxLookupBatch {
		cfg.MaxBatch = MaxLookupBatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		store:    store,
		lookup:   lookup,
		maxBatch: cfg.MaxBatch,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
}

// Store exposes the backing store for write-back.
func (c *Cache) Store() Store {
	if c == nil || c.store == nil {
		return NoopStore{}
	}
	return c.store
}

// UnitCosts resolves the given variants. It never fails: store and pricing service
// errors leave the affected variants unresolved.
func (c *Cache) UnitCosts(ctx context.Context, variantIDs []int64) Resolution {
	res := Resolution{Costs: revenue.CostMap{}, Fetched: revenue.CostMap{}}
	ids := uniqueSorted(variantIDs)
	if c == nil || len(ids) == 0 {
		res.Unresolved = ids
		return res
	}

	if c.store != nil {
		cached, err := c.store.Get(ctx, ids)
		if err != nil {
			c.logger.Warn("cost store read", slog.Int("variants", len(ids)), slog.Any("error", err))
		}
		merge(res.Costs, cached, toSet(ids))
		c.observe(OutcomeHit, len(res.Costs))
	}

	missing := missingFrom(ids, res.Costs)
	if len(missing) == 0 || c.lookup == nil {
		res.Unresolved = missing
		return res
	}
	batch := missing
	if len(batch) > c.maxBatch {
		c.logger.Warn("cost lookup capped", slog.Int("missing", len(missing)), slog.Int("cap", c.maxBatch))
		batch = batch[:c.maxBatch]
	}

	fetched, err := c.fetch(ctx, batch)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.logger.Warn("cost lookup timed out", slog.Int("variants", len(batch)), slog.Duration("timeout", c.timeout))
		c.observe(OutcomeTimeout, len(batch))
	case err != nil:
		c.logger.Warn("cost lookup failed", slog.Int("variants", len(batch)), slog.Any("error", err))
		c.observe(OutcomeFailed, len(batch))
	}
	merge(res.Fetched, fetched, toSet(batch))
	merge(res.Costs, res.Fetched, nil)
	c.observe(OutcomeFetched, len(res.Fetched))

	res.Unresolved = missingFrom(missing, res.Costs)
	return res
}

// fetch runs the lookup under the cache timeout and stops waiting once it expires,
// even when the lookup ignores its context.
func (c *Cache) fetch(ctx context.Context, batch []int64) (revenue.CostMap, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		costs revenue.CostMap
		err   error
	}
	done := make(chan result, 1)
	go func() {
		costs, err := c.lookup.FetchUnitCosts(lookupCtx, batch)
		done <- result{costs: costs, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			return r.costs, context.DeadlineExceeded
		}
		return r.costs, r.err
	case <-lookupCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, context.DeadlineExceeded
	}
}

func (c *Cache) observe(outcome string, count int) {
	if c.observer != nil && count > 0 {
		c.observer.ObserveCostLookup(outcome, count)
	}
}

func merge(dst, src revenue.CostMap, allowed map[int64]struct{}) {
	for id, cost := range src {
		if allowed != nil {
			if _, ok := allowed[id]; !ok {
				continue
			}
		}
		if math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
			continue
		}
		dst[id] = cost
	}
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func missingFrom(ids []int64, known revenue.CostMap) []int64 {
	var missing []int64
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
