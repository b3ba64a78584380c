package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salesops/salesops/internal/attribution"
	"github.com/salesops/salesops/internal/platform/db"
	"github.com/salesops/salesops/internal/revenue"
	"github.com/salesops/salesops/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository reads orders, customers and the rep roster from Postgres. It never writes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ordersInRangeSQL = `
SELECT o.id, o.processed_at, o.currency, COALESCE(o.customer_id, 0),
       o.subtotal::float8, o.total_discounts::float8, o.total_tax::float8,
       o.refunded_net::float8, o.refunded_tax::float8,
       o.current_subtotal::float8, o.current_discounts::float8, o.current_tax::float8,
       c.id, c.created_at, COALESCE(c.sales_rep_id, ''), COALESCE(c.sales_rep_name, '')
FROM orders o
LEFT JOIN customers c ON c.id = o.customer_id
WHERE o.processed_at >= $1 AND o.processed_at < $2
ORDER BY o.processed_at, o.id`

const lineItemsSQL = `
SELECT id, order_id, COALESCE(variant_id, 0), COALESCE(vendor, ''), quantity,
       COALESCE(refunded_quantity, 0), unit_price::float8, line_total::float8
FROM order_line_items
WHERE order_id = ANY($1)
ORDER BY order_id, id`

const refundsSQL = `
SELECT id, order_id, COALESCE(amount_net, 0)::float8, COALESCE(amount_tax, 0)::float8
FROM order_refunds
WHERE order_id = ANY($1)
ORDER BY order_id, id`

// LoadOrders implements Store. Orders, line items and refunds are read from one snapshot.
func (r *Repository) LoadOrders(ctx context.Context, rng shared.DateRange) (OrderSet, error) {
	var set OrderSet
	err := db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		set, err = loadOrders(ctx, tx, rng)
		return err
	})
	if err != nil {
		return OrderSet{}, err
	}
	return set, nil
}

func loadOrders(ctx context.Context, q dbtx, rng shared.DateRange) (OrderSet, error) {
	rows, err := q.Query(ctx, ordersInRangeSQL, rng.Start(), rng.End())
	if err != nil {
		return OrderSet{}, fmt.Errorf("reports: query orders: %w", err)
	}
	set := OrderSet{Customers: make(map[int64]attribution.Customer)}
	index := make(map[int64]int)
	var ids []int64
	for rows.Next() {
		var o revenue.Order
		var customerID *int64
		var createdAt *time.Time
		var repID, repName string
		if err := rows.Scan(
			&o.ID, &o.ProcessedAt, &o.Currency, &o.CustomerID,
			&o.Subtotal, &o.Discounts, &o.Taxes,
			&o.RefundedNet, &o.RefundedTax,
			&o.CurrentSubtotal, &o.CurrentDiscounts, &o.CurrentTaxes,
			&customerID, &createdAt, &repID, &repName,
		); err != nil {
			rows.Close()
			return OrderSet{}, fmt.Errorf("reports: scan order: %w", err)
		}
		if customerID != nil {
			c := attribution.Customer{ID: *customerID, SalesRepID: repID, SalesRepName: repName}
			if createdAt != nil {
				c.CreatedAt = *createdAt
			}
			set.Customers[c.ID] = c
		}
		index[o.ID] = len(set.Orders)
		ids = append(ids, o.ID)
		set.Orders = append(set.Orders, OrderRecord{Order: o})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return OrderSet{}, fmt.Errorf("reports: iterate orders: %w", err)
	}
	if len(ids) == 0 {
		return set, nil
	}

	if err := scanLines(ctx, q, ids, func(line revenue.LineItem) {
		if i, ok := index[line.OrderID]; ok {
			set.Orders[i].Lines = append(set.Orders[i].Lines, line)
		}
	}); err != nil {
		return OrderSet{}, err
	}

	refundRows, err := q.Query(ctx, refundsSQL, ids)
	if err != nil {
		return OrderSet{}, fmt.Errorf("reports: query refunds: %w", err)
	}
	defer refundRows.Close()
	for refundRows.Next() {
		var refund revenue.Refund
		var orderID int64
		if err := refundRows.Scan(&refund.ID, &orderID, &refund.AmountNet, &refund.AmountTax); err != nil {
			return OrderSet{}, fmt.Errorf("reports: scan refund: %w", err)
		}
		if i, ok := index[orderID]; ok {
			set.Orders[i].Order.Refunds = append(set.Orders[i].Order.Refunds, refund)
		}
	}
	if err := refundRows.Err(); err != nil {
		return OrderSet{}, fmt.Errorf("reports: iterate refunds: %w", err)
	}
	return set, nil
}

func scanLines(ctx context.Context, q dbtx, orderIDs []int64, fn func(revenue.LineItem)) error {
	rows, err := q.Query(ctx, lineItemsSQL, orderIDs)
	if err != nil {
		return fmt.Errorf("reports: query line items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line revenue.LineItem
		if err := rows.Scan(
			&line.ID, &line.OrderID, &line.VariantID, &line.Vendor, &line.Quantity,
			&line.RefundedQuantity, &line.UnitPrice, &line.LineTotal,
		); err != nil {
			return fmt.Errorf("reports: scan line item: %w", err)
		}
		fn(line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reports: iterate line items: %w", err)
	}
	return nil
}

const cohortCustomersSQL = `
SELECT id, created_at, COALESCE(sales_rep_id, ''), COALESCE(sales_rep_name, '')
FROM customers
WHERE created_at >= $1 AND created_at < $2
ORDER BY id`

const cohortOrdersSQL = `
SELECT customer_id, id, processed_at
FROM orders
WHERE customer_id = ANY($1) AND processed_at < $2`

// CohortCustomers implements Store: customers created in the range, each with the
// earliest order placed before the range ended.
func (r *Repository) CohortCustomers(ctx context.Context, rng shared.DateRange) ([]attribution.CohortCustomer, error) {
	var cohort []attribution.CohortCustomer
	err := db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		cohort, err = loadCohort(ctx, tx, rng)
		return err
	})
	return cohort, err
}

func loadCohort(ctx context.Context, q dbtx, rng shared.DateRange) ([]attribution.CohortCustomer, error) {
	rows, err := q.Query(ctx, cohortCustomersSQL, rng.Start(), rng.End())
	if err != nil {
		return nil, fmt.Errorf("reports: query cohort customers: %w", err)
	}
	var cohort []attribution.CohortCustomer
	var ids []int64
	for rows.Next() {
		var c attribution.Customer
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.SalesRepID, &c.SalesRepName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("reports: scan cohort customer: %w", err)
		}
		cohort = append(cohort, attribution.CohortCustomer{Customer: c})
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: iterate cohort customers: %w", err)
	}
	if len(ids) == 0 {
		return cohort, nil
	}

	orderRows, err := q.Query(ctx, cohortOrdersSQL, ids, rng.End())
	if err != nil {
		return nil, fmt.Errorf("reports: query cohort orders: %w", err)
	}
	defer orderRows.Close()
	byCustomer := make(map[int64][]attribution.OrderRef)
	for orderRows.Next() {
		var customerID int64
		var ref attribution.OrderRef
		if err := orderRows.Scan(&customerID, &ref.ID, &ref.ProcessedAt); err != nil {
			return nil, fmt.Errorf("reports: scan cohort order: %w", err)
		}
		byCustomer[customerID] = append(byCustomer[customerID], ref)
	}
	if err := orderRows.Err(); err != nil {
		return nil, fmt.Errorf("reports: iterate cohort orders: %w", err)
	}
	for i := range cohort {
		if first, ok := attribution.EarliestOrder(byCustomer[cohort[i].ID]); ok {
			cohort[i].FirstOrder = &first
		}
	}
	return cohort, nil
}

// SalesReps implements Store.
func (r *Repository) SalesReps(ctx context.Context) ([]attribution.SalesRep, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, COALESCE(name, '') FROM sales_reps WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("reports: query sales reps: %w", err)
	}
	defer rows.Close()
	var reps []attribution.SalesRep
	for rows.Next() {
		var rep attribution.SalesRep
		if err := rows.Scan(&rep.ID, &rep.Name); err != nil {
			return nil, fmt.Errorf("reports: scan sales rep: %w", err)
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}

// RecentVariantIDs lists the variants sold since the given time, for cost refreshes.
func (r *Repository) RecentVariantIDs(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT li.variant_id
FROM order_line_items li
JOIN orders o ON o.id = li.order_id
WHERE o.processed_at >= $1 AND li.variant_id IS NOT NULL
ORDER BY 1`, since)
	if err != nil {
		return nil, fmt.Errorf("reports: query recent variants: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("reports: scan variant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
