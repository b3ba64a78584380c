package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/salesops/salesops/internal/costs"
	jobmetrics "github.com/salesops/salesops/internal/jobs"
	"github.com/salesops/salesops/internal/platform/cache"
	"github.com/salesops/salesops/internal/platform/db"
	"github.com/salesops/salesops/internal/reports"
)

// Runtime holds the connections and services shared by the binaries.
type Runtime struct {
	Config     *Config
	Logger     *slog.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	CostStore  costs.Store
	CostLookup costs.Lookup
	Costs      *costs.Cache
	Repository *reports.Repository
	Reports    *reports.Service
	JobMetrics *jobmetrics.Metrics
}

// Bootstrap connects to Postgres and Redis and wires the report pipeline. Job and
// pipeline metrics register against registerer; nil uses the default registerer.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger, registerer prometheus.Registerer) (*Runtime, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	backend, err := costs.ParseBackend(cfg.CostStore)
	if err != nil {
		return nil, err
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, fmt.Errorf("app: connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		// Reports and Redis-backed costs degrade to uncached without Redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
	}

	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Redis:      redisClient,
		JobMetrics: jobmetrics.NewMetrics(registerer),
	}

	switch backend {
	case "redis":
		if redisClient == nil {
			rt.CostStore = costs.NoopStore{}
		} else {
			rt.CostStore = costs.NewRedisStore(redisClient, cfg.CostCacheTTL)
		}
	case "none":
		rt.CostStore = costs.NoopStore{}
	default:
		rt.CostStore = costs.NewPostgresStore(pool)
	}

	if cfg.CostServiceURL != "" {
		rt.CostLookup = &costs.HTTPLookup{
			Endpoint: cfg.CostServiceURL,
			Token:    cfg.CostServiceToken,
			Client:   &http.Client{Timeout: cfg.CostLookupTimeout},
		}
	} else {
		logger.Warn("COST_SERVICE_URL not set, unknown costs stay unresolved")
		rt.CostLookup = costs.NoopLookup{}
	}
	rt.Costs = costs.NewCache(rt.CostStore, rt.CostLookup, costs.Config{
		Timeout:  cfg.CostLookupTimeout,
		Logger:   logger,
		Observer: rt.JobMetrics,
	})

	var reportCache *reports.Cache
	if redisClient != nil {
		reportCache = reports.NewCache(redisClient, cfg.ReportCacheTTL, logger)
	}
	rt.Repository = reports.NewRepository(pool)
	rt.Reports = reports.NewService(rt.Repository, rt.Costs, reportCache, reports.Config{
		Location:    loc,
		MaxSpanDays: cfg.ReportMaxSpanDays,
		Logger:      logger,
		Observer:    rt.JobMetrics,
	})
	return rt, nil
}

// RedisClientOpt returns the asynq connection settings for the configured Redis.
func (c *Config) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Close releases the runtime connections.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}
