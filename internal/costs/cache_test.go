package costs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesops/salesops/internal/revenue"
)

type stubStore struct {
	costs revenue.CostMap
	err   error
	puts  []revenue.CostMap
}

func (s *stubStore) Get(_ context.Context, ids []int64) (revenue.CostMap, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := revenue.CostMap{}
	for _, id := range ids {
		if v, ok := s.costs[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (s *stubStore) Put(_ context.Context, costs revenue.CostMap) error {
	s.puts = append(s.puts, costs)
	return nil
}

type stubLookup struct {
	mu     sync.Mutex
	costs  revenue.CostMap
	err    error
	delay  time.Duration
	calls  int
	lastID []int64
}

func (s *stubLookup) FetchUnitCosts(_ context.Context, ids []int64) (revenue.CostMap, error) {
	s.mu.Lock()
	s.calls++
	s.lastID = append([]int64(nil), ids...)
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	out := revenue.CostMap{}
	for id, v := range s.costs {
		out[id] = v
	}
	return out, nil
}

type countingObserver struct {
	counts map[string]int
}

func (o *countingObserver) ObserveCostLookup(outcome string, count int) {
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[outcome] += count
}

func TestUnitCostsServesCachedEntriesWithoutLookup(t *testing.T) {
	store := &stubStore{costs: revenue.CostMap{1: 2.5, 2: 4}}
	lookup := &stubLookup{}
	cache := NewCache(store, lookup, Config{})

	res := cache.UnitCosts(context.Background(), []int64{2, 1, 2})
	assert.Equal(t, revenue.CostMap{1: 2.5, 2: 4}, res.Costs)
	assert.Empty(t, res.Fetched)
	assert.Empty(t, res.Unresolved)
	assert.Equal(t, 0, lookup.calls)
}

func TestUnitCostsFetchesMissingInOneBatch(t *testing.T) {
	store := &stubStore{costs: revenue.CostMap{1: 2.5}}
	lookup := &stubLookup{costs: revenue.CostMap{2: 3, 3: 7, 99: 1}}
	observer := &countingObserver{}
	cache := NewCache(store, lookup, Config{Observer: observer})

	res := cache.UnitCosts(context.Background(), []int64{3, 1, 2, 4})
	require.Equal(t, 1, lookup.calls)
	assert.Equal(t, []int64{2, 3, 4}, lookup.lastID)
	assert.Equal(t, revenue.CostMap{1: 2.5, 2: 3, 3: 7}, res.Costs)
	assert.Equal(t, revenue.CostMap{2: 3, 3: 7}, res.Fetched)
	assert.Equal(t, []int64{4}, res.Unresolved)
	assert.Equal(t, 1, observer.counts[OutcomeHit])
	assert.Equal(t, 2, observer.counts[OutcomeFetched])
	assert.Empty(t, store.puts, "write-back belongs to the caller")
}

func TestUnitCostsCapsLookupBatch(t *testing.T) {
	lookup := &stubLookup{costs: revenue.CostMap{}}
	cache := NewCache(NoopStore{}, lookup, Config{})

	ids := make([]int64, 0, 250)
	for i := 250; i >= 1; i-- {
		ids = append(ids, int64(i))
	}
	res := cache.UnitCosts(context.Background(), ids)
	require.Equal(t, 1, lookup.calls)
	require.Len(t, lookup.lastID, MaxLookupBatch)
	assert.Equal(t, int64(1), lookup.lastID[0])
	assert.Equal(t, int64(200), lookup.lastID[199])
	assert.Len(t, res.Unresolved, 250)
}

func TestUnitCostsToleratesLookupFailure(t *testing.T) {
	store := &stubStore{costs: revenue.CostMap{1: 1}}
	lookup := &stubLookup{err: errors.New("boom")}
	observer := &countingObserver{}
	cache := NewCache(store, lookup, Config{Observer: observer})

	res := cache.UnitCosts(context.Background(), []int64{1, 2})
	assert.Equal(t, revenue.CostMap{1: 1}, res.Costs)
	assert.Equal(t, []int64{2}, res.Unresolved)
	assert.Equal(t, 1, observer.counts[OutcomeFailed])
}

func TestUnitCostsToleratesStoreFailure(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	lookup := &stubLookup{costs: revenue.CostMap{5: 9}}
	cache := NewCache(store, lookup, Config{})

	res := cache.UnitCosts(context.Background(), []int64{5})
	assert.Equal(t, revenue.CostMap{5: 9}, res.Costs)
	assert.Equal(t, revenue.CostMap{5: 9}, res.Fetched)
}

func TestUnitCostsDoesNotWaitForSlowLookup(t *testing.T) {
	lookup := &stubLookup{costs: revenue.CostMap{1: 1}, delay: 500 * time.Millisecond}
	observer := &countingObserver{}
	cache := NewCache(nil, lookup, Config{Timeout: 20 * time.Millisecond, Observer: observer})

	start := time.Now()
	res := cache.UnitCosts(context.Background(), []int64{1})
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Empty(t, res.Costs)
	assert.Equal(t, []int64{1}, res.Unresolved)
	assert.Equal(t, 1, observer.counts[OutcomeTimeout])
}

func TestUnitCostsIgnoresInvalidCosts(t *testing.T) {
	lookup := &stubLookup{costs: revenue.CostMap{1: -3, 2: 0}}
	cache := NewCache(nil, lookup, Config{})

	res := cache.UnitCosts(context.Background(), []int64{1, 2})
	assert.Equal(t, revenue.CostMap{2: 0}, res.Costs)
	assert.Equal(t, []int64{1}, res.Unresolved)
}

func TestUnitCostsEmptyInput(t *testing.T) {
	lookup := &stubLookup{}
	res := NewCache(nil, lookup, Config{}).UnitCosts(context.Background(), nil)
	assert.Empty(t, res.Costs)
	assert.Equal(t, 0, lookup.calls)
}
