package commands

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dqsync/internal/config"
	"github.com/dwsmith1983/dqsync/internal/telemetry"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation loop against the change stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve expvar counters at /debug/vars on this address")
	return cmd
}

func runServe(metricsAddr string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	ctx := context.Background()
	logger := newLogger()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, "dqsync")
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	feed, err := newStreamFeed(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	loop, err := newLoop(ctx, cfg, store, feed, logger)
	if err != nil {
		return err
	}

	var srv *http.Server
	errCh := make(chan error, 1)
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/debug/vars", expvar.Handler())
		srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	loop.Start(ctx)
	color.Cyan("Reconciling %s from %s", cfg.DynamoDB.TableName, cfg.Stream.ARN)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errCh:
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	loop.Stop(shutdownCtx)
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("metrics server: %w", runErr)
	}
	color.Green("Stopped gracefully")
	return nil
}
