// Package cli implements the salesopsctl commands.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesops/salesops/internal/app"
	"github.com/salesops/salesops/internal/reports"
)

// ReportRunner computes reports.
type ReportRunner interface {
	Overview(ctx context.Context, req reports.Request) (reports.Overview, error)
	RepScorecard(ctx context.Context, req reports.Request) (reports.RepScorecard, error)
	VendorScorecard(ctx context.Context, req reports.Request) (reports.VendorScorecard, error)
	Location() *time.Location
}

// Env supplies the command dependencies. Constructors run lazily so that help and
// flag errors never touch Postgres or Redis.
type Env struct {
	Reports func(ctx context.Context) (ReportRunner, func(), error)
	Jobs    func() (*JobsCLI, error)
}

// DefaultEnv wires commands against the configured Postgres and Redis.
func DefaultEnv() *Env {
	return &Env{
		Reports: func(ctx context.Context) (ReportRunner, func(), error) {
			cfg, err := app.LoadConfig()
			if err != nil {
				return nil, nil, err
			}
			// Logs go to stderr so stdout stays parseable JSON.
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			rt, err := app.Bootstrap(ctx, cfg, logger, nil)
			if err != nil {
				return nil, nil, err
			}
			return rt.Reports, rt.Close, nil
		},
		Jobs: func() (*JobsCLI, error) {
			cfg, err := app.LoadConfig()
			if err != nil {
				return nil, err
			}
			return NewJobsCLI(cfg.RedisClientOpt()), nil
		},
	}
}

// NewRootCommand builds the salesopsctl command tree.
func NewRootCommand(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "salesopsctl",
		Short: "Operate the sales-ops revenue engine",
		Long: `salesopsctl computes revenue reports from the command line and manages the
background jobs that keep unit costs and report caches fresh.

Configuration is read from the environment and an optional .env file, the same
way the server and worker read it.`,
		SilenceUsage: true,
	}
	root.AddCommand(newReportCommand(env), newJobsCommand(env))
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
