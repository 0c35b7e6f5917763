// =============================================================================
// SERVE COMMAND - RUN THE ADMIN API
// =============================================================================
//
// USAGE:
//   fetchq serve --config fetchq.yaml
//
// STARTUP:
//   1. Load and validate the config file
//   2. Build the metrics registry and fetch session
//   3. Install the configured assignment (if any)
//   4. Serve HTTP until SIGINT/SIGTERM, then shut down gracefully
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fetchq/internal/api"
	"fetchq/internal/config"
	"fetchq/internal/fetcher"
	"fetchq/internal/metrics"
)

var (
	serveConfigFlag string
	serveAddrFlag   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API server",
	Long: `Run the fetchq admin API server.

Examples:
  fetchq serve --config fetchq.yaml
  fetchq serve --addr :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigFlag, "config", "c", "fetchq.yaml", "Config file path")
	serveCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "Listen address (overrides api.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigFlag)
	if err != nil {
		return handleError(err)
	}
	if serveAddrFlag != "" {
		cfg.API.Addr = serveAddrFlag
	}
	if err := cfg.Validate(); err != nil {
		return handleError(err)
	}

	reg := metrics.NewRegistry(cfg.Metrics, logger)

	session, err := fetcher.NewSession(fetcher.Config{
		Logger:                  logger,
		Metrics:                 reg.Fetch,
		MaxPartitionsPerRequest: cfg.Fetcher.MaxPartitionsPerRequest,
	})
	if err != nil {
		return handleError(err)
	}

	if len(cfg.Assignment) > 0 {
		if err := session.Assign(cfg.PartitionAssignment()); err != nil {
			return handleError(fmt.Errorf("initial assignment: %w", err))
		}
	}

	server := api.NewServer(session, reg, api.ServerConfig{
		Addr:         cfg.API.Addr,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
		Logger:       logger,
	})

	server.Health().SetReady(true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			return handleError(err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return handleError(fmt.Errorf("shutdown: %w", err))
	}
	return nil
}
