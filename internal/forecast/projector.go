package forecast

import (
	"time"

	"github.com/salesops/salesops/internal/shared"
)

// Input carries the aggregated history a projection is derived from.
type Input struct {
	Range     shared.DateRange
	SalesEx   float64
	MarginPct float64
	Reps      []RepInput
}

// RepInput is the acquisition history of one rep bucket.
type RepInput struct {
	Key           string
	Label         string
	SalesEx       float64
	FirstOrders   int
	FirstOrderAOV float64
}

// Projection is the forward view of a period.
type Projection struct {
	TotalDays        int     `json:"total_days"`
	ElapsedDays      int     `json:"elapsed_days"`
	RemainingDays    int     `json:"remaining_days"`
	RunRatePerDay    float64 `json:"run_rate_per_day"`
	ProjectedSalesEx float64 `json:"projected_sales_ex"`
	ProjectedProfit  float64 `json:"projected_profit"`
	MarginPct        float64 `json:"margin_pct"`
	// Extrapolated is false when the period has fully elapsed and the projection equals actuals.
	Extrapolated bool            `json:"extrapolated"`
	Reps         []RepProjection `json:"reps,omitempty"`
}

// RepProjection projects a rep forward from its observed rate of new first orders.
type RepProjection struct {
	Key                         string  `json:"key"`
	Label                       string  `json:"label"`
	SalesEx                     float64 `json:"sales_ex"`
	AcqRunRatePerDay            float64 `json:"acq_run_rate_per_day"`
	ProjectedNewFirstOrders     float64 `json:"projected_new_first_orders"`
	ProjectedIncrementalSalesEx float64 `json:"projected_incremental_sales_ex"`
	ProjectedSalesExTotal       float64 `json:"projected_sales_ex_total"`
}

// Projector computes run-rate projections relative to its clock.
type Projector struct {
	now func() time.Time
}

// NewProjector returns a Projector on the wall clock.
func NewProjector() Projector {
	return Projector{now: time.Now}
}

// Now returns the current time on the projector's clock.
func (p Projector) Now() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// NewProjectorAt returns a Projector whose clock is fixed, for tests and backfills.
func NewProjectorAt(now time.Time) Projector {
	return Projector{now: func() time.Time { return now }}
}

// Project derives the run rate from the elapsed part of the range. Only ranges ending
// after today are extrapolated; otherwise the projection equals the actual figures.
func (p Projector) Project(in Input) Projection {
	today := p.Now()
	r := in.Range
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}

	total := r.Days()
	if total < 1 {
		total = 1
	}
	last := r.To
	if r.EndsAfter(today) {
		last = today
	}
	elapsed := shared.DaysInclusive(r.From, last, loc)
	if elapsed < 1 {
		elapsed = 1
	}
	if elapsed > total {
		elapsed = total
	}
	remaining := total - elapsed

	out := Projection{
		TotalDays:     total,
		ElapsedDays:   elapsed,
		RemainingDays: remaining,
		RunRatePerDay: in.SalesEx / float64(elapsed),
		MarginPct:     in.MarginPct,
	}
	out.ProjectedSalesEx = in.SalesEx
	if r.EndsAfter(today) {
		out.ProjectedSalesEx = out.RunRatePerDay * float64(total)
		out.Extrapolated = true
	}
	out.ProjectedProfit = out.ProjectedSalesEx * (in.MarginPct / 100)

	for _, rep := range in.Reps {
		proj := RepProjection{
			Key:              rep.Key,
			Label:            rep.Label,
			SalesEx:          rep.SalesEx,
			AcqRunRatePerDay: float64(rep.FirstOrders) / float64(elapsed),
		}
		proj.ProjectedNewFirstOrders = proj.AcqRunRatePerDay * float64(remaining)
		proj.ProjectedIncrementalSalesEx = proj.ProjectedNewFirstOrders * rep.FirstOrderAOV
		proj.ProjectedSalesExTotal = rep.SalesEx + proj.ProjectedIncrementalSalesEx
		out.Reps = append(out.Reps, proj)
	}
	return out
}

// MarginPct is profit as a percentage of sales, zero when there are no sales.
func MarginPct(salesEx, profit float64) float64 {
	if salesEx > -0.0001 && salesEx < 0.0001 {
		return 0
	}
	return profit / salesEx * 100
}
