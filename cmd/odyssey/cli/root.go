package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-budget/internal/app"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "odyssey",
		Short: "Budget control and consolidated reporting",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newBudgetCommand(),
		newReportCommand(),
		newJobsCommand(),
		newFXCommand(),
	)

	return rootCmd
}

// withServices loads configuration, wires the engines and runs fn.
func withServices(ctx context.Context, fn func(ctx context.Context, s *app.Services) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	services, err := app.NewServices(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		return err
	}
	defer services.Close()
	return fn(ctx, services)
}
