package reports

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesops/salesops/internal/attribution"
	"github.com/salesops/salesops/internal/costs"
	"github.com/salesops/salesops/internal/forecast"
	"github.com/salesops/salesops/internal/revenue"
	"github.com/salesops/salesops/internal/shared"
)

type stubStore struct {
	mu        sync.Mutex
	sets      map[string]OrderSet
	cohort    []attribution.CohortCustomer
	roster    []attribution.SalesRep
	err       error
	loadCalls int
	onLoad    func()
}

func (s *stubStore) LoadOrders(_ context.Context, rng shared.DateRange) (OrderSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadCalls++
	if s.onLoad != nil {
		s.onLoad()
	}
	if s.err != nil {
		return OrderSet{}, s.err
	}
	return s.sets[rng.FromKey()], nil
}

func (s *stubStore) CohortCustomers(context.Context, shared.DateRange) ([]attribution.CohortCustomer, error) {
	return s.cohort, nil
}

func (s *stubStore) SalesReps(context.Context) ([]attribution.SalesRep, error) {
	return s.roster, nil
}

type memoryCostStore struct {
	mu    sync.Mutex
	costs revenue.CostMap
	puts  int
}

func (m *memoryCostStore) Get(_ context.Context, ids []int64) (revenue.CostMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := revenue.CostMap{}
	for _, id := range ids {
		if v, ok := m.costs[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *memoryCostStore) Put(_ context.Context, in revenue.CostMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	for id, v := range in {
		m.costs[id] = v
	}
	return nil
}

type stubLookup struct {
	mu    sync.Mutex
	costs revenue.CostMap
	calls int
}

func (s *stubLookup) FetchUnitCosts(_ context.Context, ids []int64) (revenue.CostMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := revenue.CostMap{}
	for _, id := range ids {
		if v, ok := s.costs[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type faultCounter struct {
	reasons []string
}

func (f *faultCounter) ObserveReconcileFault(reason string) {
	f.reasons = append(f.reasons, reason)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func order(id, customer int64, at time.Time, subtotal float64, lines ...revenue.LineItem) OrderRecord {
	for i := range lines {
		lines[i].ID = id*10 + int64(i)
		lines[i].OrderID = id
	}
	return OrderRecord{
		Order: revenue.Order{ID: id, CustomerID: customer, ProcessedAt: at, Subtotal: revenue.Money(subtotal)},
		Lines: lines,
	}
}

func item(variant int64, vendor string, qty int, price float64) revenue.LineItem {
	return revenue.LineItem{VariantID: variant, Vendor: vendor, Quantity: qty, UnitPrice: price}
}

type fixture struct {
	store   *stubStore
	costs   *memoryCostStore
	lookup  *stubLookup
	faults  *faultCounter
	service *Service
}

func newFixture(t *testing.T, cache *Cache) *fixture {
	t.Helper()
	march := OrderSet{
		Orders: []OrderRecord{
			order(1, 10, date(2024, 3, 2).Add(9*time.Hour), 100, item(501, "Acme", 2, 50)),
			order(2, 20, date(2024, 3, 5).Add(9*time.Hour), 60, item(502, "Globex", 1, 60)),
			{Order: revenue.Order{ID: 3, CustomerID: 20, ProcessedAt: date(2024, 3, 6)}, Lines: []revenue.LineItem{{ID: 30, OrderID: 3, Quantity: -1, UnitPrice: 5}}},
		},
		Customers: map[int64]attribution.Customer{
			10: {ID: 10, SalesRepID: "r1"},
			20: {ID: 20, SalesRepName: "dana scully"},
		},
	}
	february := OrderSet{
		Orders: []OrderRecord{
			order(90, 10, date(2024, 2, 10), 50, item(501, "Acme", 1, 50)),
			order(91, 10, date(2024, 2, 11), 40, item(503, "Initech", 1, 40)),
		},
		Customers: map[int64]attribution.Customer{10: {ID: 10, SalesRepID: "r1"}},
	}
	f := &fixture{
		store: &stubStore{
			sets: map[string]OrderSet{"2024-03-01": march, "2024-01-30": february},
			cohort: []attribution.CohortCustomer{
				{Customer: attribution.Customer{ID: 20, CreatedAt: date(2024, 3, 1), SalesRepName: "Dana Scully"}, FirstOrder: &attribution.OrderRef{ID: 2, ProcessedAt: date(2024, 3, 5)}},
				{Customer: attribution.Customer{ID: 30, CreatedAt: date(2024, 3, 3)}},
			},
			roster: []attribution.SalesRep{{ID: "r1", Name: "Fox Mulder"}, {ID: "r2", Name: "Dana Scully"}},
		},
		costs:  &memoryCostStore{costs: revenue.CostMap{501: 20}},
		lookup: &stubLookup{costs: revenue.CostMap{502: 15, 503: 10}},
		faults: &faultCounter{},
	}
	costCache := costs.NewCache(f.costs, f.lookup, costs.Config{Logger: discardLogger()})
	f.service = NewService(f.store, costCache, cache, Config{
		Location:  time.UTC,
		Logger:    discardLogger(),
		Observer:  f.faults,
		Projector: forecast.NewProjectorAt(date(2024, 6, 1)),
	})
	return f
}

func marchRequest() Request {
	return Request{From: date(2024, 3, 1), To: date(2024, 3, 31)}
}

func TestOverviewPipeline(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.service.Overview(context.Background(), marchRequest())
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01", got.From)
	assert.Equal(t, 160.0, got.Company.SalesEx)
	assert.Equal(t, 105.0, got.Company.Profit)
	assert.Equal(t, 2, got.Company.OrderCount)
	assert.Equal(t, 65.63, got.MarginPct)
	assert.Equal(t, 160.0, got.Forecast.ProjectedSalesEx)
	assert.False(t, got.Forecast.Extrapolated)

	assert.Equal(t, 2, got.Cohort.NewCustomers)
	assert.Equal(t, 1, got.Cohort.FirstOrders)
	assert.Equal(t, 60.0, got.Cohort.FirstOrderAOV)
	assert.Equal(t, 1, got.Cohort.DropOffs)

	require.Len(t, got.Series, 1)
	assert.Equal(t, "2024-03", got.Series[0].Key)

	assert.Equal(t, 3, got.Quality.Orders)
	assert.Equal(t, 1, got.Quality.SkippedOrders)
	assert.Equal(t, []string{"malformed"}, f.faults.reasons)

	assert.Equal(t, 1, f.lookup.calls)
	assert.Equal(t, 1, f.costs.puts)
	assert.Equal(t, 15.0, f.costs.costs[502])
}

func TestRepScorecardSumsToCompany(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.service.RepScorecard(context.Background(), marchRequest())
	require.NoError(t, err)

	require.Len(t, got.Reps, 3)
	total := 0.0
	for _, rep := range got.Reps {
		total += rep.SalesEx
	}
	assert.InDelta(t, got.Company.SalesEx, total, 0.01)

	assert.Equal(t, "id:r1", got.Reps[0].Key)
	assert.Equal(t, "Fox Mulder", got.Reps[0].Label)
	assert.Equal(t, 60.0, got.Reps[0].MarginPct)
	assert.Equal(t, "id:r2", got.Reps[1].Key)
	assert.Equal(t, 1, got.Reps[1].Cohort.FirstOrders)
	assert.Equal(t, 60.0, got.Reps[1].Projection.ProjectedSalesExTotal)
	assert.Equal(t, attribution.UnassignedKey, got.Reps[2].Key)
	assert.Equal(t, 1, got.Reps[2].Cohort.DropOffs)
	assert.Nil(t, got.Forecast.Reps)
}

func TestRepScorecardFilter(t *testing.T) {
	f := newFixture(t, nil)
	req := marchRequest()
	req.RepKey = "id:r2"

	got, err := f.service.RepScorecard(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got.Reps, 1)
	assert.Equal(t, 60.0, got.Company.SalesEx)
	assert.Equal(t, 1, got.Quality.Excluded)
}

func TestVendorScorecardGrowth(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.service.VendorScorecard(context.Background(), marchRequest())
	require.NoError(t, err)

	assert.Equal(t, "2024-01-30", got.PreviousFrom)
	assert.Equal(t, "2024-02-29", got.PreviousTo)
	require.Len(t, got.Vendors, 3)

	acme := got.Vendors[0]
	assert.Equal(t, "acme", acme.Key)
	assert.Equal(t, 100.0, acme.SalesEx)
	assert.Equal(t, 50.0, acme.PreviousSalesEx)
	assert.Equal(t, 100.0, acme.GrowthPct)

	assert.Equal(t, "globex", got.Vendors[1].Key)
	assert.Equal(t, 100.0, got.Vendors[1].GrowthPct)

	initech := got.Vendors[2]
	assert.Equal(t, "initech", initech.Key)
	assert.Equal(t, 0.0, initech.SalesEx)
	assert.Equal(t, -100.0, initech.GrowthPct)

	assert.Equal(t, []string{"2024-03"}, got.Months)
	assert.Equal(t, 100.0, got.Matrix["acme"]["2024-03"])
	assert.Equal(t, 0.0, got.Matrix["initech"]["2024-03"])
	assert.Equal(t, 1, f.lookup.calls)
}

func TestVendorScorecardFilter(t *testing.T) {
	f := newFixture(t, nil)
	req := marchRequest()
	req.Vendor = " GLOBEX "

	got, err := f.service.VendorScorecard(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got.Vendors, 1)
	assert.Equal(t, "globex", got.Vendors[0].Key)
	require.Len(t, got.Matrix, 1)
}

func TestRangeValidation(t *testing.T) {
	f := newFixture(t, nil)
	negative := -5.0

	cases := map[string]struct {
		req  Request
		want error
	}{
		"missing from": {req: Request{To: date(2024, 3, 1)}, want: shared.ErrInvalidRequest},
		"inverted":     {req: Request{From: date(2024, 3, 2), To: date(2024, 3, 1)}, want: shared.ErrInvalidRange},
		"too long":     {req: Request{From: date(2022, 1, 1), To: date(2024, 3, 1)}, want: shared.ErrInvalidRange},
		"bad margin":   {req: Request{From: date(2024, 3, 1), To: date(2024, 3, 2), MarginPct: &negative}, want: shared.ErrInvalidRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.Overview(context.Background(), tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, f.store.loadCalls)
}

func TestStoreFailureSurfaces(t *testing.T) {
	f := newFixture(t, nil)
	f.store.err = errors.New("connection reset")

	_, err := f.service.Overview(context.Background(), marchRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestOverviewUsesExplicitMargin(t *testing.T) {
	f := newFixture(t, nil)
	req := marchRequest()
	margin := 10.0
	req.MarginPct = &margin

	got, err := f.service.Overview(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.MarginPct)
	assert.Equal(t, 16.0, got.Forecast.ProjectedProfit)
}

func TestOverviewIsCachedUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute, discardLogger())
	f := newFixture(t, cache)
	ctx := context.Background()

	first, err := f.service.Overview(ctx, marchRequest())
	require.NoError(t, err)
	second, err := f.service.Overview(ctx, marchRequest())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.store.loadCalls)

	require.NoError(t, cache.Bump(ctx))
	_, err = f.service.Overview(ctx, marchRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.loadCalls)
}

func TestOverviewSurvivesRedisOutageMidReport(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute, discardLogger())
	f := newFixture(t, cache)
	var once sync.Once
	f.store.onLoad = func() { once.Do(mr.Close) }

	got, err := f.service.Overview(context.Background(), marchRequest())
	require.NoError(t, err)
	assert.Equal(t, 160.0, got.Company.SalesEx)
	assert.Equal(t, 2, got.Company.OrderCount)
}
