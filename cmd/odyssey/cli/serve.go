package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-budget/internal/app"
	"github.com/odyssey-erp/odyssey-budget/jobs"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), runServe)
		},
	}
}

func runServe(ctx context.Context, s *app.Services) error {
	logger := s.Logger

	if err := s.ReportCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("report cache invalidation", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(s.RedisOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	client := jobs.NewClient(s.RedisOpts())
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	server := &http.Server{
		Addr:         s.Config.AppAddr,
		Handler:      app.NewServerRouter(s, jobs.NewHandler(inspector, client, logger)),
		ReadTimeout:  s.Config.AppReadTimeout,
		WriteTimeout: s.Config.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", s.Config.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
