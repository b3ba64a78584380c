package forecast

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesops/salesops/internal/shared"
)

func marchRange(loc *time.Location) shared.DateRange {
	return shared.DateRange{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, loc),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, loc),
		Location: loc,
	}
}

func TestProjectPastRangeIsNotExtrapolated(t *testing.T) {
	p := NewProjectorAt(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	got := p.Project(Input{Range: marchRange(time.UTC), SalesEx: 1234.56, MarginPct: 25})

	assert.False(t, got.Extrapolated)
	assert.Equal(t, 1234.56, got.ProjectedSalesEx)
	assert.Equal(t, 31, got.TotalDays)
	assert.Equal(t, 31, got.ElapsedDays)
	assert.Equal(t, 0, got.RemainingDays)
	assert.InDelta(t, 308.64, got.ProjectedProfit, 1e-9)
}

func TestProjectEndingTodayIsNotExtrapolated(t *testing.T) {
	p := NewProjectorAt(time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC))
	got := p.Project(Input{Range: marchRange(time.UTC), SalesEx: 500})

	assert.False(t, got.Extrapolated)
	assert.Equal(t, 500.0, got.ProjectedSalesEx)
}

func TestProjectPartialRange(t *testing.T) {
	p := NewProjectorAt(time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC))
	got := p.Project(Input{
		Range:     marchRange(time.UTC),
		SalesEx:   1000,
		MarginPct: 40,
		Reps: []RepInput{
			{Key: "id:r1", Label: "Fox", SalesEx: 600, FirstOrders: 5, FirstOrderAOV: 80},
			{Key: "unassigned", Label: "Unassigned", SalesEx: 400},
		},
	})

	assert.True(t, got.Extrapolated)
	assert.Equal(t, 10, got.ElapsedDays)
	assert.Equal(t, 21, got.RemainingDays)
	assert.Equal(t, 100.0, got.RunRatePerDay)
	assert.InDelta(t, 3100, got.ProjectedSalesEx, 1e-9)
	assert.InDelta(t, 1240, got.ProjectedProfit, 1e-9)

	require.Len(t, got.Reps, 2)
	fox := got.Reps[0]
	assert.InDelta(t, 0.5, fox.AcqRunRatePerDay, 1e-9)
	assert.InDelta(t, 10.5, fox.ProjectedNewFirstOrders, 1e-9)
	assert.InDelta(t, 840, fox.ProjectedIncrementalSalesEx, 1e-9)
	assert.InDelta(t, 1440, fox.ProjectedSalesExTotal, 1e-9)
	assert.Equal(t, 400.0, got.Reps[1].ProjectedSalesExTotal)
}

func TestProjectFutureRangeUsesOneElapsedDay(t *testing.T) {
	p := NewProjectorAt(time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))
	got := p.Project(Input{Range: marchRange(time.UTC), SalesEx: 0})

	assert.Equal(t, 1, got.ElapsedDays)
	assert.Equal(t, 30, got.RemainingDays)
	assert.True(t, got.Extrapolated)
	assert.Equal(t, 0.0, got.ProjectedSalesEx)
}

func TestProjectCountsCivilDaysAcrossDST(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	p := NewProjectorAt(time.Date(2024, 3, 31, 8, 0, 0, 0, london))
	r := shared.DateRange{
		From:     time.Date(2024, 3, 25, 0, 0, 0, 0, london),
		To:       time.Date(2024, 4, 3, 0, 0, 0, 0, london),
		Location: london,
	}
	got := p.Project(Input{Range: r, SalesEx: 700})

	assert.Equal(t, 10, got.TotalDays)
	assert.Equal(t, 7, got.ElapsedDays)
	assert.Equal(t, 3, got.RemainingDays)
	assert.InDelta(t, 1000, got.ProjectedSalesEx, 1e-9)
}

func TestMarginPct(t *testing.T) {
	assert.Equal(t, 25.0, MarginPct(200, 50))
	assert.Equal(t, 0.0, MarginPct(0, 50))
}
