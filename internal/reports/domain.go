package reports

import (
	"errors"
	"time"

	"github.com/salesops/salesops/internal/attribution"
	"github.com/salesops/salesops/internal/forecast"
	"github.com/salesops/salesops/internal/revenue"
)

// ErrStoreUnavailable is returned when the service has no order store wired.
var ErrStoreUnavailable = errors.New("reports: store not configured")

// Request selects the orders and filters of one report.
type Request struct {
	From      time.Time `validate:"required"`
	To        time.Time `validate:"required,gtefield=From"`
	RepKey    string    `validate:"omitempty,max=128"`
	Vendor    string    `validate:"omitempty,max=256"`
	MarginPct *float64  `validate:"omitempty,gte=0,lte=100"`
}

// OrderRecord is an order with its line items as read from the store.
type OrderRecord struct {
	Order revenue.Order
	Lines []revenue.LineItem
}

// OrderSet is the range query result together with the customers of its orders.
type OrderSet struct {
	Orders    []OrderRecord
	Customers map[int64]attribution.Customer
}

// Overview is the company-level report.
type Overview struct {
	From      string                   `json:"from"`
	To        string                   `json:"to"`
	Company   attribution.Bucket       `json:"company"`
	MarginPct float64                  `json:"margin_pct"`
	Cohort    attribution.Cohort       `json:"cohort"`
	Forecast  forecast.Projection      `json:"forecast"`
	Series    []attribution.Bucket     `json:"series"`
	Reps      []attribution.RepSummary `json:"reps"`
	Quality   Quality                  `json:"quality"`
}

// RepScorecard ranks reps by revenue with their acquisition projections.
type RepScorecard struct {
	From     string              `json:"from"`
	To       string              `json:"to"`
	Company  attribution.Bucket  `json:"company"`
	Forecast forecast.Projection `json:"forecast"`
	Reps     []RepScore          `json:"reps"`
	Quality  Quality             `json:"quality"`
}

// RepScore is one row of the rep scorecard.
type RepScore struct {
	attribution.RepSummary
	MarginPct  float64                `json:"margin_pct"`
	Projection forecast.RepProjection `json:"projection"`
}

// VendorScorecard compares vendors with the preceding range of equal length.
type VendorScorecard struct {
	From         string                        `json:"from"`
	To           string                        `json:"to"`
	PreviousFrom string                        `json:"previous_from"`
	PreviousTo   string                        `json:"previous_to"`
	Company      attribution.Bucket            `json:"company"`
	Vendors      []VendorScore                 `json:"vendors"`
	Months       []string                      `json:"months"`
	Matrix       map[string]map[string]float64 `json:"matrix"`
	Quality      Quality                       `json:"quality"`
}

// VendorScore is one row of the vendor scorecard.
type VendorScore struct {
	attribution.Bucket
	MarginPct       float64 `json:"margin_pct"`
	PreviousSalesEx float64 `json:"previous_sales_ex"`
	GrowthPct       float64 `json:"growth_pct"`
}

// Quality reports the data gaps a report was computed through.
type Quality struct {
	Orders          int `json:"orders"`
	SkippedOrders   int `json:"skipped_orders"`
	Excluded        int `json:"excluded"`
	CohortGaps      int `json:"cohort_gaps"`
	UnresolvedCosts int `json:"unresolved_costs"`
	FetchedCosts    int `json:"fetched_costs"`
}
