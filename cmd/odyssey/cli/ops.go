package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-budget/internal/app"
	"github.com/odyssey-erp/odyssey-budget/jobs"
)

// ExitError carries a process exit code chosen by a subcommand.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}

	var payload jobs.ConsolidateRefreshPayload
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Enqueue a consolidated report cache refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			task, err := taskFor(jobs.TaskConsolidateRefresh, payload)
			if err != nil {
				return err
			}
			return withQueue(func(q *queueOps) error {
				return q.enqueue(cmd.Context(), cmd.OutOrStdout(), task)
			})
		},
	}
	refresh.Flags().StringVar(&payload.Company, "company", "all", "root company or all")
	refresh.Flags().StringVar(&payload.FiscalYear, "fiscal-year", "active", "fiscal year or active")
	refresh.Flags().StringSliceVar(&payload.Kinds, "kind", nil, "statements to warm, default all")
	refresh.Flags().BoolVar(&payload.Bump, "bump", false, "invalidate cached reports first")

	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a task with its default payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := taskFor(args[0], jobs.ConsolidateRefreshPayload{})
			if err != nil {
				return err
			}
			return withQueue(func(q *queueOps) error {
				return q.enqueue(cmd.Context(), cmd.OutOrStdout(), task)
			})
		},
	}

	var size int
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters and upcoming scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(func(q *queueOps) error {
				return q.stats(cmd.OutOrStdout(), size)
			})
		},
	}
	stats.Flags().IntVar(&size, "size", 10, "scheduled tasks to list")

	cmd.AddCommand(refresh, trigger, stats)
	return cmd
}

func withQueue(fn func(q *queueOps) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	q, err := newQueueOps(app.RedisOpts(cfg))
	if err != nil {
		return err
	}
	defer q.Close()
	return fn(q)
}

func newFXCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fx",
		Short: "Check and backfill exchange rates",
	}

	var vopts FXValidateOptions
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Report missing average and closing rates for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vopts.Stdout, vopts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return withFXOps(cmd.Context(), func(ctx context.Context, ops *FXOpsCLI) error {
				return exitCode(ops.ValidateCommand(ctx, vopts))
			})
		},
	}
	validate.Flags().StringVar(&vopts.Company, "company", "", "root company whose members are checked")
	validate.Flags().StringVar(&vopts.Currency, "currency", "", "reporting currency, defaults to the root company's")
	validate.Flags().StringVar(&vopts.Period, "period", time.Now().UTC().Format("2006-01"), "period (YYYY-MM)")
	validate.Flags().StringSliceVar(&vopts.Pairs, "pair", nil, "extra pairs to check")
	validate.Flags().BoolVar(&vopts.JSONOutput, "json", false, "emit JSON")

	var bopts FXBackfillOptions
	var mode string
	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "Fill missing monthly rates from a CSV source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bopts.Mode = FXBackfillMode(mode)
			bopts.Stdout, bopts.Stderr, bopts.Stdin = cmd.OutOrStdout(), cmd.ErrOrStderr(), cmd.InOrStdin()
			return withFXOps(cmd.Context(), func(ctx context.Context, ops *FXOpsCLI) error {
				return exitCode(ops.BackfillCommand(ctx, bopts))
			})
		},
	}
	backfill.Flags().StringVar(&bopts.Pair, "pair", "", "currency pair, for example USDIDR")
	backfill.Flags().StringVar(&bopts.From, "from", "", "first period (YYYY-MM)")
	backfill.Flags().StringVar(&bopts.To, "to", "", "last period (YYYY-MM)")
	backfill.Flags().StringVar(&mode, "mode", string(FXBackfillModeDry), "dry or apply")
	backfill.Flags().StringVar(&bopts.Source, "source", "", "CSV with period,pair,average,closing; - for stdin")
	backfill.Flags().BoolVar(&bopts.JSONOutput, "json", false, "emit JSON")

	cmd.AddCommand(validate, backfill)
	return cmd
}

func withFXOps(ctx context.Context, fn func(ctx context.Context, ops *FXOpsCLI) error) error {
	return withServices(ctx, func(ctx context.Context, s *app.Services) error {
		ops, err := NewFXOpsCLI(s.Quotes, s.Companies)
		if err != nil {
			return err
		}
		return fn(ctx, ops)
	})
}
