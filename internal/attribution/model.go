package attribution

import (
	"time"

	"github.com/salesops/salesops/internal/revenue"
	"github.com/salesops/salesops/internal/shared"
)

const (
	// UnassignedKey is the bucket key for orders and customers without a rep or vendor.
	UnassignedKey = "unassigned"
	// UnassignedLabel is its display label.
	UnassignedLabel = "Unassigned"
	// CompanyKey is the key of the company-wide bucket.
	CompanyKey = "company"
	// countEpsilon is the net revenue an order needs to count as an order.
	countEpsilon = 0.0001
)

// Customer is the attribution view of a storefront customer.
type Customer struct {
	ID           int64
	CreatedAt    time.Time
	SalesRepID   string
	SalesRepName string
}

// SalesRep is a roster entry used to canonicalise rep attribution.
type SalesRep struct {
	ID   string
	Name string
}

// OrderRef identifies one order of a customer.
type OrderRef struct {
	ID          int64
	ProcessedAt time.Time
}

// CohortCustomer is a customer with the earliest order they ever placed, if any.
type CohortCustomer struct {
	Customer
	FirstOrder *OrderRef
}

// Reconciled pairs an order with its reconciled figures.
type Reconciled struct {
	Order  revenue.Order
	Lines  []revenue.LineItem
	Result revenue.Result
}

// Input is everything one aggregation run folds.
type Input struct {
	Range     shared.DateRange
	Orders    []Reconciled
	Customers map[int64]Customer
	Cohort    []CohortCustomer
	Roster    []SalesRep
	// RepKey restricts the run to one rep bucket when set.
	RepKey string
}

// Bucket accumulates revenue for one attribution key.
type Bucket struct {
	Key             string  `json:"key"`
	Label           string  `json:"label"`
	SalesEx         float64 `json:"sales_ex"`
	Profit          float64 `json:"profit"`
	OrderCount      int     `json:"order_count"`
	ActiveCustomers int     `json:"active_customers"`

	customers map[int64]struct{}
}

// Cohort carries new-customer acquisition metrics.
type Cohort struct {
	NewCustomers    int     `json:"new_customers"`
	FirstOrders     int     `json:"first_orders"`
	FirstOrderNetEx float64 `json:"first_order_net_ex"`
	FirstOrderAOV   float64 `json:"first_order_aov"`
	DropOffs        int     `json:"drop_offs"`

	// pricedFirstOrders excludes first orders without reconciled figures from the AOV.
	pricedFirstOrders int
}

// RepSummary is a rep bucket together with the rep's cohort.
type RepSummary struct {
	Bucket
	Cohort Cohort `json:"cohort"`
}

// Summary is the result of one aggregation run.
type Summary struct {
	Company Bucket       `json:"company"`
	Cohort  Cohort       `json:"cohort"`
	Reps    []RepSummary `json:"reps"`
	Vendors []Bucket     `json:"vendors"`
	Periods []Bucket     `json:"periods"`
	// VendorPeriods maps vendor key to month to net sales.
	VendorPeriods map[string]map[string]float64 `json:"vendor_periods"`
	// Excluded counts orders outside the range or the rep filter.
	Excluded int `json:"excluded"`
	// CohortGaps counts first orders in range that had no reconciled figures. They
	// still count as first orders but stay out of the first-order AOV.
	CohortGaps int `json:"cohort_gaps"`
}

// EarliestOrder picks the first order by processing time, then by id.
func EarliestOrder(refs []OrderRef) (OrderRef, bool) {
	if len(refs) == 0 {
		return OrderRef{}, false
	}
	best := refs[0]
	for _, ref := range refs[1:] {
		if ref.ProcessedAt.Before(best.ProcessedAt) || (ref.ProcessedAt.Equal(best.ProcessedAt) && ref.ID < best.ID) {
			best = ref
		}
	}
	return best, true
}
