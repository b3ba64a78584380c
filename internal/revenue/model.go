package revenue

import (
	"errors"
	"time"
)

// Order is the snapshot of a storefront order as recorded upstream. Money fields are
// ex-tax; nil means the upstream record did not carry the field.
type Order struct {
	ID          int64
	ProcessedAt time.Time
	Currency    string
	CustomerID  int64

	Subtotal    *float64
	Discounts   *float64
	Taxes       *float64
	RefundedNet *float64
	RefundedTax *float64

	// Current* reflect the order after post-purchase edits.
	CurrentSubtotal  *float64
	CurrentDiscounts *float64
	CurrentTaxes     *float64

	Refunds []Refund
}

// Refund is one detailed refund record of an order.
type Refund struct {
	ID        int64
	AmountNet float64
	AmountTax float64
}

// LineItem belongs to exactly one order.
type LineItem struct {
	ID               int64
	OrderID          int64
	VariantID        int64
	Vendor           string
	Quantity         int
	RefundedQuantity int
	UnitPrice        float64
	LineTotal        *float64
}

// CostMap resolves variant ids to unit cost. Absent keys mean the cost is unknown.
type CostMap map[int64]float64

// Result carries the reconciled figures of one order.
type Result struct {
	NetEx         float64 `json:"net_ex"`
	GrossEx       float64 `json:"gross_ex"`
	DiscountsUsed float64 `json:"discounts_used"`
	Cost          float64 `json:"cost"`
	Profit        float64 `json:"profit"`
}

// ErrMalformedOrder marks an order whose record cannot be reconciled.
var ErrMalformedOrder = errors.New("revenue: malformed order")
