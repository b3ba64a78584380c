// Package reporthttp serves the report endpoints as JSON.
package reporthttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/salesops/salesops/internal/platform/httpx"
	"github.com/salesops/salesops/internal/reports"
	"github.com/salesops/salesops/internal/shared"
)

const defaultRequestTimeout = 20 * time.Second

// ReportService defines the report contract used by the handler.
type ReportService interface {
	Overview(ctx context.Context, req reports.Request) (reports.Overview, error)
	RepScorecard(ctx context.Context, req reports.Request) (reports.RepScorecard, error)
	VendorScorecard(ctx context.Context, req reports.Request) (reports.VendorScorecard, error)
	Location() *time.Location
}

// Options tunes the handler.
type Options struct {
	// RateLimit is the per-client request budget per minute. Zero disables limiting.
	RateLimit int
	Timeout   time.Duration
}

// Handler coordinates HTTP requests for the report endpoints.
type Handler struct {
	logger  *slog.Logger
	service ReportService
	opts    Options
}

// NewHandler constructs the report HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	return &Handler{logger: logger, service: service, opts: opts}
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "overview", h.service.Overview)
}

func (h *Handler) handleReps(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "reps", h.service.RepScorecard)
}

func (h *Handler) handleVendors(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "vendors", h.service.VendorScorecard)
}

func serve[T any](h *Handler, w http.ResponseWriter, r *http.Request, name string, fn func(context.Context, reports.Request) (T, error)) {
	req, err := parseRequest(r.URL.Query(), h.service.Location())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.Timeout)
	defer cancel()

	out, err := fn(ctx, req)
	if err != nil {
		h.respondServiceError(w, name, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidRange), errors.Is(err, shared.ErrInvalidRequest):
		// client error, not logged
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("report timed out", slog.String("report", name))
	default:
		h.logger.Error("build report", slog.String("report", name), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// parseRequest reads from, to, rep, vendor and margin from the query string.
func parseRequest(q url.Values, loc *time.Location) (reports.Request, error) {
	var req reports.Request
	var err error
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if req.From, err = shared.ParseDate(v, loc); err != nil {
			return reports.Request{}, fmt.Errorf("from: %w", err)
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if req.To, err = shared.ParseDate(v, loc); err != nil {
			return reports.Request{}, fmt.Errorf("to: %w", err)
		}
	}
	req.RepKey = strings.TrimSpace(q.Get("rep"))
	req.Vendor = strings.TrimSpace(q.Get("vendor"))
	if v := strings.TrimSpace(q.Get("margin")); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return reports.Request{}, fmt.Errorf("%w: margin must be a number", shared.ErrInvalidRequest)
		}
		req.MarginPct = &pct
	}
	return req, nil
}
