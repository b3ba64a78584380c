package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/salesops/salesops/internal/costs"
	jobmetrics "github.com/salesops/salesops/internal/jobs"
	"github.com/salesops/salesops/internal/revenue"
)

// DefaultCostLookback is the sales window scanned for variants to refresh.
const DefaultCostLookback = 7 * 24 * time.Hour

// VariantSource lists variants sold since a point in time.
type VariantSource interface {
	RecentVariantIDs(ctx context.Context, since time.Time) ([]int64, error)
}

// CacheBumper invalidates cached reports.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// CostRefreshJob re-fetches unit costs for recently sold variants and writes them to
// the local store, so reports stop depending on the pricing service for them.
type CostRefreshJob struct {
	Variants VariantSource
	Lookup   costs.Lookup
	Store    costs.Store
	Reports  CacheBumper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Lookback time.Duration
	Timeout  time.Duration
	clock    func() time.Time
}

// NewCostRefreshJob wires dependencies for the refresh handler.
func NewCostRefreshJob(variants VariantSource, lookup costs.Lookup, store costs.Store, reports CacheBumper, logger *slog.Logger, metrics *jobmetrics.Metrics) *CostRefreshJob {
	return &CostRefreshJob{
		Variants: variants,
		Lookup:   lookup,
		Store:    store,
		Reports:  reports,
		Logger:   logger,
		Metrics:  metrics,
		Lookback: DefaultCostLookback,
		Timeout:  costs.DefaultLookupTimeout,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes cost refresh tasks.
func (j *CostRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Lookup == nil || j.Store == nil {
		return errors.New("cost refresh: handler not configured")
	}
	var payload CostRefreshPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := j.Metrics.Track(TaskCostRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	ids := payload.VariantIDs
	if len(ids) == 0 {
		if j.Variants == nil {
			return errors.New("cost refresh: no variant source")
		}
		lookback := j.Lookback
		if payload.LookbackHours > 0 {
			lookback = time.Duration(payload.LookbackHours) * time.Hour
		}
		ids, err = j.Variants.RecentVariantIDs(ctx, j.now().Add(-lookback))
		if err != nil {
			return fmt.Errorf("cost refresh: list variants: %w", err)
		}
	}
	logger := j.logger().With(slog.Int("variants", len(ids)))
	if len(ids) == 0 {
		logger.Info("no variants to refresh")
		return nil
	}

	refreshed, failed := 0, 0
	for start := 0; start < len(ids); start += costs.MaxLookupBatch {
		end := min(start+costs.MaxLookupBatch, len(ids))
		got, fetchErr := j.fetch(ctx, ids[start:end])
		if fetchErr != nil {
			failed += end - start
			logger.Warn("cost refresh batch failed", slog.Int("offset", start), slog.Any("error", fetchErr))
			j.Metrics.ObserveCostLookup(costs.OutcomeFailed, end-start)
			continue
		}
		if err := j.Store.Put(ctx, got); err != nil {
			return fmt.Errorf("cost refresh: store costs: %w", err)
		}
		j.Metrics.ObserveCostLookup(costs.OutcomeFetched, len(got))
		refreshed += len(got)
	}

	if refreshed > 0 && j.Reports != nil {
		if err := j.Reports.Bump(ctx); err != nil {
			logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
	logger.Info("cost refresh completed", slog.Int("refreshed", refreshed), slog.Int("failed", failed))
	if refreshed == 0 {
		return fmt.Errorf("cost refresh: all %d lookups failed", failed)
	}
	return nil
}

func (j *CostRefreshJob) fetch(ctx context.Context, batch []int64) (revenue.CostMap, error) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = costs.DefaultLookupTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return j.Lookup.FetchUnitCosts(callCtx, batch)
}

func (j *CostRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *CostRefreshJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
