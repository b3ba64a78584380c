package costs

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/salesops/salesops/internal/platform/db"
	"github.com/salesops/salesops/internal/revenue"
)

// NoopStore caches nothing.
type NoopStore struct{}

// Get implements Store.
func (NoopStore) Get(context.Context, []int64) (revenue.CostMap, error) { return nil, nil }

// Put implements Store.
func (NoopStore) Put(context.Context, revenue.CostMap) error { return nil }

// PostgresStore keeps costs in the variant_costs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, variantIDs []int64) (revenue.CostMap, error) {
	if len(variantIDs) == 0 {
		return revenue.CostMap{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT variant_id, unit_cost::float8 FROM variant_costs WHERE variant_id = ANY($1) AND unit_cost IS NOT NULL`, variantIDs)
	if err != nil {
		return nil, fmt.Errorf("costs: query variant costs: %w", err)
	}
	defer rows.Close()

	out := make(revenue.CostMap, len(variantIDs))
	for rows.Next() {
		var id int64
		var cost float64
		if err := rows.Scan(&id, &cost); err != nil {
			return nil, fmt.Errorf("costs: scan variant cost: %w", err)
		}
		out[id] = cost
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("costs: iterate variant costs: %w", err)
	}
	return out, nil
}

const upsertCostSQL = `INSERT INTO variant_costs (variant_id, unit_cost, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (variant_id) DO UPDATE SET unit_cost = EXCLUDED.unit_cost, updated_at = NOW()`

// Put implements Store with one upsert per variant sent as a single batch inside a
// transaction, so a partial write never lands.
func (s *PostgresStore) Put(ctx context.Context, costs revenue.CostMap) error {
	if len(costs) == 0 {
		return nil
	}
	batch := upsertBatch(costs)
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return sendUpserts(ctx, tx, batch)
	})
}

// upsertBatch queues the upserts in variant order so concurrent writers lock rows
// in the same sequence.
func upsertBatch(costs revenue.CostMap) *pgx.Batch {
	ids := make([]int64, 0, len(costs))
	for id := range costs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(upsertCostSQL, id, costs[id])
	}
	return batch
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func sendUpserts(ctx context.Context, tx batchSender, batch *pgx.Batch) error {
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("costs: upsert variant cost: %w", err)
		}
	}
	return results.Close()
}

const redisKeyPrefix = "costs:variant:"

// RedisStore keeps one key per variant holding the cost as a decimal string.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. A zero ttl keeps entries forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, variantIDs []int64) (revenue.CostMap, error) {
	if len(variantIDs) == 0 {
		return revenue.CostMap{}, nil
	}
	keys := make([]string, len(variantIDs))
	for i, id := range variantIDs {
		keys[i] = redisKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("costs: mget: %w", err)
	}
	out := make(revenue.CostMap, len(variantIDs))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok || str == "" {
			continue
		}
		d, err := decimal.NewFromString(str)
		if err != nil {
			continue
		}
		out[variantIDs[i]] = d.InexactFloat64()
	}
	return out, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, costs revenue.CostMap) error {
	if len(costs) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, cost := range costs {
			pipe.Set(ctx, redisKey(id), decimal.NewFromFloat(cost).StringFixed(4), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("costs: pipeline set: %w", err)
	}
	return nil
}

func redisKey(id int64) string {
	return redisKeyPrefix + strconv.FormatInt(id, 10)
}

// ParseBackend normalises the COST_STORE setting.
func ParseBackend(value string) (string, error) {
	switch backend := strings.ToLower(strings.TrimSpace(value)); backend {
	case "", "postgres":
		return "postgres", nil
	case "redis", "none":
		return backend, nil
	default:
		return "", fmt.Errorf("costs: unknown store backend %q", value)
	}
}
