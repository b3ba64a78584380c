package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/salesops/salesops/internal/reports"
	"github.com/salesops/salesops/internal/shared"
)

type reportFlags struct {
	from   string
	to     string
	rep    string
	vendor string
	margin float64
}

func newReportCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute a report and print it as JSON",
		Example: `  salesopsctl report overview --from 2024-03-01 --to 2024-03-31
  salesopsctl report reps --from 2024-03-01 --to 2024-03-31 --rep "Jane Doe"
  salesopsctl report vendors --from 2024-03-01 --to 2024-03-31 --vendor acme`,
	}

	cmd.AddCommand(
		reportSubcommand(env, "overview", "Company totals, cohort, forecast and rep summaries",
			func(ctx context.Context, r ReportRunner, req reports.Request) (any, error) {
				return r.Overview(ctx, req)
			}),
		reportSubcommand(env, "reps", "Rep scorecard with acquisition projections",
			func(ctx context.Context, r ReportRunner, req reports.Request) (any, error) {
				return r.RepScorecard(ctx, req)
			}),
		reportSubcommand(env, "vendors", "Vendor scorecard with growth against the previous period",
			func(ctx context.Context, r ReportRunner, req reports.Request) (any, error) {
				return r.VendorScorecard(ctx, req)
			}),
	)
	return cmd
}

func reportSubcommand(env *Env, use, short string, run func(context.Context, ReportRunner, reports.Request) (any, error)) *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner, closeFn, err := env.Reports(ctx)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			req, err := flags.request(cmd, runner)
			if err != nil {
				return err
			}
			out, err := run(ctx, runner, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&flags.from, "from", "", "First day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.to, "to", "", "Last day of the range, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.rep, "rep", "", "Restrict to one sales rep")
	cmd.Flags().StringVar(&flags.vendor, "vendor", "", "Restrict to one vendor")
	cmd.Flags().Float64Var(&flags.margin, "margin", 0, "Margin percent to report instead of the computed one")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (f reportFlags) request(cmd *cobra.Command, runner ReportRunner) (reports.Request, error) {
	loc := runner.Location()
	from, err := shared.ParseDate(strings.TrimSpace(f.from), loc)
	if err != nil {
		return reports.Request{}, fmt.Errorf("--from: %w", err)
	}
	to, err := shared.ParseDate(strings.TrimSpace(f.to), loc)
	if err != nil {
		return reports.Request{}, fmt.Errorf("--to: %w", err)
	}
	req := reports.Request{From: from, To: to, RepKey: f.rep, Vendor: f.vendor}
	if cmd.Flags().Changed("margin") {
		margin := f.margin
		req.MarginPct = &margin
	}
	return req, nil
}
