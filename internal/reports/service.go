package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/salesops/salesops/internal/attribution"
	"github.com/salesops/salesops/internal/costs"
	"github.com/salesops/salesops/internal/forecast"
	"github.com/salesops/salesops/internal/revenue"
	"github.com/salesops/salesops/internal/shared"
)

// DefaultMaxSpanDays bounds the length of a report range.
const DefaultMaxSpanDays = 400

// Store is the read-only order, customer and roster source.
type Store interface {
	LoadOrders(ctx context.Context, rng shared.DateRange) (OrderSet, error)
	CohortCustomers(ctx context.Context, rng shared.DateRange) ([]attribution.CohortCustomer, error)
	SalesReps(ctx context.Context) ([]attribution.SalesRep, error)
}

// Observer is notified of orders skipped because they could not be reconciled.
type Observer interface {
	ObserveReconcileFault(reason string)
}

// Config tunes a Service.
type Config struct {
	Location    *time.Location
	MaxSpanDays int
	Logger      *slog.Logger
	Observer    Observer
	Projector   forecast.Projector
}

// Service assembles reports from the store, the cost cache and the engine.
type Service struct {
	store      Store
	costs      *costs.Cache
	cache      *Cache
	reconciler revenue.Reconciler
	projector  forecast.Projector
	validate   *validator.Validate
	loc        *time.Location
	maxSpan    int
	logger     *slog.Logger
	observer   Observer
}

// NewService wires the report pipeline. costCache and cache may be nil.
func NewService(store Store, costCache *costs.Cache, cache *Cache, cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	maxSpan := cfg.MaxSpanDays
	if maxSpan == 0 {
		maxSpan = DefaultMaxSpanDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		costs:      costCache,
		cache:      cache,
		reconciler: revenue.NewReconciler(),
		projector:  cfg.Projector,
		validate:   validator.New(),
		loc:        loc,
		maxSpan:    maxSpan,
		logger:     logger,
		observer:   cfg.Observer,
	}
}

// Cache exposes the report cache for invalidation.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Location returns the zone report dates are evaluated in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Range validates a request and returns its date range. Failures wrap
// shared.ErrInvalidRequest or shared.ErrInvalidRange.
func (s *Service) Range(req Request) (shared.DateRange, error) {
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Field() == "To" && fe.Tag() == "gtefield" {
					return shared.DateRange{}, fmt.Errorf("%w: to must not precede from", shared.ErrInvalidRange)
				}
			}
			return shared.DateRange{}, fmt.Errorf("%w: %s", shared.ErrInvalidRequest, describe(fieldErrs))
		}
		return shared.DateRange{}, fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err)
	}
	rng, err := shared.NewDateRange(req.From, req.To, s.loc)
	if err != nil {
		return shared.DateRange{}, err
	}
	if s.maxSpan > 0 && rng.Days() > s.maxSpan {
		return shared.DateRange{}, fmt.Errorf("%w: range spans %d days, limit is %d", shared.ErrInvalidRange, rng.Days(), s.maxSpan)
	}
	return rng, nil
}

func describe(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// Overview returns the company report, served from the cache when possible.
func (s *Service) Overview(ctx context.Context, req Request) (Overview, error) {
	rng, err := s.Range(req)
	if err != nil {
		return Overview{}, err
	}
	var out Overview
	err = s.cached(ctx, "overview", req, rng, &out, func(ctx context.Context) (any, error) {
		return s.buildOverview(ctx, req, rng)
	})
	return out, err
}

// RepScorecard returns the per-rep report, served from the cache when possible.
func (s *Service) RepScorecard(ctx context.Context, req Request) (RepScorecard, error) {
	rng, err := s.Range(req)
	if err != nil {
		return RepScorecard{}, err
	}
	var out RepScorecard
	err = s.cached(ctx, "reps", req, rng, &out, func(ctx context.Context) (any, error) {
		return s.buildRepScorecard(ctx, req, rng)
	})
	return out, err
}

// VendorScorecard returns the per-vendor report, served from the cache when possible.
func (s *Service) VendorScorecard(ctx context.Context, req Request) (VendorScorecard, error) {
	rng, err := s.Range(req)
	if err != nil {
		return VendorScorecard{}, err
	}
	var out VendorScorecard
	err = s.cached(ctx, "vendors", req, rng, &out, func(ctx context.Context) (any, error) {
		return s.buildVendorScorecard(ctx, req, rng)
	})
	return out, err
}

// Warm computes every report for req into the cache.
func (s *Service) Warm(ctx context.Context, req Request) error {
	if _, err := s.Overview(ctx, req); err != nil {
		return err
	}
	if _, err := s.RepScorecard(ctx, req); err != nil {
		return err
	}
	_, err := s.VendorScorecard(ctx, req)
	return err
}

func (s *Service) cached(ctx context.Context, kind string, req Request, rng shared.DateRange, dest any, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, reportKey(kind, req, rng, s.projector.Now())...)
	if err != nil {
		s.logger.Warn("reports: cache unavailable", slog.String("report", kind), slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func (s *Service) buildOverview(ctx context.Context, req Request, rng shared.DateRange) (Overview, error) {
	snap, err := s.load(ctx, rng)
	if err != nil {
		return Overview{}, err
	}
	res := s.resolveCosts(ctx, snap)
	run := s.fold(snap, 0, res, req.RepKey)
	summary := run.summary

	margin := marginFor(req, summary.Company)
	projection := s.projector.Project(forecast.Input{Range: rng, SalesEx: summary.Company.SalesEx, MarginPct: margin})

	reps := make([]attribution.RepSummary, 0, len(summary.Reps))
	for _, rep := range summary.Reps {
		rep.Bucket = roundBucket(rep.Bucket)
		rep.Cohort = roundCohort(rep.Cohort)
		reps = append(reps, rep)
	}
	return Overview{
		From:      rng.FromKey(),
		To:        rng.ToKey(),
		Company:   roundBucket(summary.Company),
		MarginPct: round2(margin),
		Cohort:    roundCohort(summary.Cohort),
		Forecast:  roundProjection(projection),
		Series:    roundBuckets(summary.Periods),
		Reps:      reps,
		Quality:   run.quality,
	}, nil
}

func (s *Service) buildRepScorecard(ctx context.Context, req Request, rng shared.DateRange) (RepScorecard, error) {
	snap, err := s.load(ctx, rng)
	if err != nil {
		return RepScorecard{}, err
	}
	res := s.resolveCosts(ctx, snap)
	run := s.fold(snap, 0, res, req.RepKey)
	summary := run.summary

	in := forecast.Input{
		Range:     rng,
		SalesEx:   summary.Company.SalesEx,
		MarginPct: marginFor(req, summary.Company),
	}
	for _, rep := range summary.Reps {
		in.Reps = append(in.Reps, forecast.RepInput{
			Key:           rep.Key,
			Label:         rep.Label,
			SalesEx:       rep.SalesEx,
			FirstOrders:   rep.Cohort.FirstOrders,
			FirstOrderAOV: rep.Cohort.FirstOrderAOV,
		})
	}
	projection := s.projector.Project(in)

	scores := make([]RepScore, 0, len(summary.Reps))
	for i, rep := range summary.Reps {
		score := RepScore{
			RepSummary: attribution.RepSummary{Bucket: roundBucket(rep.Bucket), Cohort: roundCohort(rep.Cohort)},
			MarginPct:  round2(forecast.MarginPct(rep.SalesEx, rep.Profit)),
			Projection: roundRepProjection(projection.Reps[i]),
		}
		scores = append(scores, score)
	}
	projection.Reps = nil
	return RepScorecard{
		From:     rng.FromKey(),
		To:       rng.ToKey(),
		Company:  roundBucket(summary.Company),
		Forecast: roundProjection(projection),
		Reps:     scores,
		Quality:  run.quality,
	}, nil
}

func (s *Service) buildVendorScorecard(ctx context.Context, req Request, rng shared.DateRange) (VendorScorecard, error) {
	prev := rng.Previous()
	snap, err := s.load(ctx, rng, prev)
	if err != nil {
		return VendorScorecard{}, err
	}
	res := s.resolveCosts(ctx, snap)
	current := s.fold(snap, 0, res, req.RepKey)
	previous := s.fold(snap, 1, res, req.RepKey)

	vendorKey := ""
	if strings.TrimSpace(req.Vendor) != "" {
		vendorKey = attribution.VendorKey(req.Vendor)
	}
	keep := func(key string) bool { return vendorKey == "" || key == vendorKey }

	prevByKey := make(map[string]attribution.Bucket, len(previous.summary.Vendors))
	for _, vendor := range previous.summary.Vendors {
		prevByKey[vendor.Key] = vendor
	}

	scores := make([]VendorScore, 0, len(current.summary.Vendors))
	seen := make(map[string]struct{}, len(current.summary.Vendors))
	for _, vendor := range current.summary.Vendors {
		if !keep(vendor.Key) {
			continue
		}
		seen[vendor.Key] = struct{}{}
		scores = append(scores, vendorScore(vendor, prevByKey[vendor.Key].SalesEx))
	}
	for _, vendor := range previous.summary.Vendors {
		if _, ok := seen[vendor.Key]; ok || !keep(vendor.Key) {
			continue
		}
		empty := attribution.Bucket{Key: vendor.Key, Label: vendor.Label}
		scores = append(scores, vendorScore(empty, vendor.SalesEx))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].SalesEx != scores[j].SalesEx {
			return scores[i].SalesEx > scores[j].SalesEx
		}
		return scores[i].Key < scores[j].Key
	})

	months := rng.Months()
	matrix := make(map[string]map[string]float64, len(scores))
	for _, score := range scores {
		row := make(map[string]float64, len(months))
		for _, month := range months {
			row[month] = round2(current.summary.VendorPeriods[score.Key][month])
		}
		matrix[score.Key] = row
	}

	return VendorScorecard{
		From:         rng.FromKey(),
		To:           rng.ToKey(),
		PreviousFrom: prev.FromKey(),
		PreviousTo:   prev.ToKey(),
		Company:      roundBucket(current.summary.Company),
		Vendors:      scores,
		Months:       months,
		Matrix:       matrix,
		Quality:      current.quality,
	}, nil
}

func vendorScore(vendor attribution.Bucket, previous float64) VendorScore {
	return VendorScore{
		Bucket:          roundBucket(vendor),
		MarginPct:       round2(forecast.MarginPct(vendor.SalesEx, vendor.Profit)),
		PreviousSalesEx: round2(previous),
		GrowthPct:       round2(variancePercent(previous, vendor.SalesEx)),
	}
}

// snapshot holds the raw inputs of one report. sets[i] belongs to ranges[i]; the
// cohort is loaded for the first range only.
type snapshot struct {
	ranges []shared.DateRange
	sets   []OrderSet
	cohort []attribution.CohortCustomer
	roster []attribution.SalesRep
}

func (s *Service) load(ctx context.Context, ranges ...shared.DateRange) (snapshot, error) {
	if s.store == nil {
		return snapshot{}, ErrStoreUnavailable
	}
	snap := snapshot{ranges: ranges, sets: make([]OrderSet, len(ranges))}
	g, gctx := errgroup.WithContext(ctx)
	for i, rng := range ranges {
		g.Go(func() error {
			set, err := s.store.LoadOrders(gctx, rng)
			if err != nil {
				return fmt.Errorf("reports: load orders %s..%s: %w", rng.FromKey(), rng.ToKey(), err)
			}
			snap.sets[i] = set
			return nil
		})
	}
	g.Go(func() error {
		cohort, err := s.store.CohortCustomers(gctx, ranges[0])
		if err != nil {
			return fmt.Errorf("reports: load cohort: %w", err)
		}
		snap.cohort = cohort
		return nil
	})
	g.Go(func() error {
		roster, err := s.store.SalesReps(gctx)
		if err != nil {
			return fmt.Errorf("reports: load sales reps: %w", err)
		}
		snap.roster = roster
		return nil
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

// resolveCosts issues the single cost resolution of a report and writes freshly
// fetched costs back to the cost store.
func (s *Service) resolveCosts(ctx context.Context, snap snapshot) costs.Resolution {
	if s.costs == nil {
		return costs.Resolution{Costs: revenue.CostMap{}}
	}
	var ids []int64
	for _, set := range snap.sets {
		for _, rec := range set.Orders {
			for _, line := range rec.Lines {
				if line.VariantID > 0 {
					ids = append(ids, line.VariantID)
				}
			}
		}
	}
	res := s.costs.UnitCosts(ctx, ids)
	if len(res.Fetched) > 0 {
		if err := s.costs.Store().Put(ctx, res.Fetched); err != nil {
			s.logger.Warn("reports: cost write-back failed", slog.Int("variants", len(res.Fetched)), slog.Any("error", err))
		}
	}
	return res
}

type folded struct {
	summary attribution.Summary
	quality Quality
}

// fold reconciles every order of snap.sets[idx] and aggregates the survivors. Orders
// that fail to reconcile are logged, counted and skipped.
func (s *Service) fold(snap snapshot, idx int, res costs.Resolution, repKey string) folded {
	rng := snap.ranges[idx]
	set := snap.sets[idx]
	logger := s.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("from", rng.FromKey()),
		slog.String("to", rng.ToKey()),
	)

	quality := Quality{
		Orders:          len(set.Orders),
		UnresolvedCosts: len(res.Unresolved),
		FetchedCosts:    len(res.Fetched),
	}
	reconciled := make([]attribution.Reconciled, 0, len(set.Orders))
	for _, rec := range set.Orders {
		result, err := s.reconciler.Reconcile(rec.Order, rec.Lines, res.Costs)
		if err != nil {
			quality.SkippedOrders++
			logger.Warn("reports: skipping order", slog.Int64("order_id", rec.Order.ID), slog.Any("error", err))
			if s.observer != nil {
				s.observer.ObserveReconcileFault(faultReason(err))
			}
			continue
		}
		reconciled = append(reconciled, attribution.Reconciled{Order: rec.Order, Lines: rec.Lines, Result: result})
	}

	in := attribution.Input{
		Range:     rng,
		Orders:    reconciled,
		Customers: set.Customers,
		Roster:    snap.roster,
		RepKey:    repKey,
	}
	if idx == 0 {
		in.Cohort = snap.cohort
	}
	summary := attribution.Aggregate(in)
	quality.Excluded = summary.Excluded
	quality.CohortGaps = summary.CohortGaps
	if quality.SkippedOrders > 0 {
		logger.Info("reports: folded with skipped orders", slog.Int("orders", quality.Orders), slog.Int("skipped", quality.SkippedOrders))
	}
	return folded{summary: summary, quality: quality}
}

func faultReason(err error) string {
	if errors.Is(err, revenue.ErrMalformedOrder) {
		return "malformed"
	}
	return "other"
}

func marginFor(req Request, company attribution.Bucket) float64 {
	if req.MarginPct != nil {
		return *req.MarginPct
	}
	return forecast.MarginPct(company.SalesEx, company.Profit)
}
