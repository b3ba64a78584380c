package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/salesops/salesops/internal/jobs"
	"github.com/salesops/salesops/internal/reports"
)

// ReportWarmer computes every report for a request into the cache.
type ReportWarmer interface {
	Warm(ctx context.Context, req reports.Request) error
}

// ReportWarmupJob pre-populates report caches for the month to date and the
// previous calendar month.
type ReportWarmupJob struct {
	Reports  ReportWarmer
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(warmer ReportWarmer, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportWarmupJob{
		Reports:  warmer,
		Location: loc,
		Logger:   logger,
		Metrics:  metrics,
		clock:    time.Now,
	}
}

// Handle processes report warmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := j.Metrics.Track(TaskReportWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger()
	if payload.RepKey != "" {
		logger = logger.With(slog.String("rep", payload.RepKey))
	}
	logger.Info("starting report warmup")

	warmed := 0
	for _, req := range j.requests(payload) {
		if err := j.Reports.Warm(ctx, req); err != nil {
			logger.Error("warm reports", slog.Time("from", req.From), slog.Time("to", req.To), slog.Any("error", err))
			return fmt.Errorf("report warmup: %w", err)
		}
		warmed++
	}
	logger.Info("report warmup completed", slog.Int("ranges", warmed))
	return nil
}

// requests returns the month to date, then the previous calendar month. On the
// first of the month the month to date is a single day.
func (j *ReportWarmupJob) requests(payload ReportWarmupPayload) []reports.Request {
	loc := j.Location
	if loc == nil {
		loc = time.UTC
	}
	now := j.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	out := []reports.Request{{From: monthStart, To: today, RepKey: payload.RepKey}}
	if !payload.SkipPrevious {
		prevStart := monthStart.AddDate(0, -1, 0)
		prevEnd := monthStart.AddDate(0, 0, -1)
		out = append(out, reports.Request{From: prevStart, To: prevEnd, RepKey: payload.RepKey})
	}
	return out
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
