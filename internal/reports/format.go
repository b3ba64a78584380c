package reports

import (
	"math"

	"github.com/salesops/salesops/internal/attribution"
	"github.com/salesops/salesops/internal/forecast"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundBucket(b attribution.Bucket) attribution.Bucket {
	b.SalesEx = round2(b.SalesEx)
	b.Profit = round2(b.Profit)
	return b
}

func roundBuckets(in []attribution.Bucket) []attribution.Bucket {
	out := make([]attribution.Bucket, 0, len(in))
	for _, b := range in {
		out = append(out, roundBucket(b))
	}
	return out
}

func roundCohort(c attribution.Cohort) attribution.Cohort {
	c.FirstOrderNetEx = round2(c.FirstOrderNetEx)
	c.FirstOrderAOV = round2(c.FirstOrderAOV)
	return c
}

func roundProjection(p forecast.Projection) forecast.Projection {
	p.RunRatePerDay = round2(p.RunRatePerDay)
	p.ProjectedSalesEx = round2(p.ProjectedSalesEx)
	p.ProjectedProfit = round2(p.ProjectedProfit)
	p.MarginPct = round2(p.MarginPct)
	for i := range p.Reps {
		p.Reps[i] = roundRepProjection(p.Reps[i])
	}
	return p
}

func roundRepProjection(p forecast.RepProjection) forecast.RepProjection {
	p.SalesEx = round2(p.SalesEx)
	p.AcqRunRatePerDay = math.Round(p.AcqRunRatePerDay*10000) / 10000
	p.ProjectedNewFirstOrders = round2(p.ProjectedNewFirstOrders)
	p.ProjectedIncrementalSalesEx = round2(p.ProjectedIncrementalSalesEx)
	p.ProjectedSalesExTotal = round2(p.ProjectedSalesExTotal)
	return p
}

// variancePercent is the growth from base to current. Growth from nothing is 100%.
func variancePercent(base, current float64) float64 {
	if almostZero(base) {
		if almostZero(current) {
			return 0
		}
		return 100
	}
	return (current - base) / base * 100
}

func almostZero(v float64) bool {
	return v > -0.0001 && v < 0.0001
}
