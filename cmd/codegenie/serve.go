package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TanviPoddar/CodeGenie/internal/api"
)

// pipelineDrainTimeout bounds how long serve waits for running builds on
// shutdown before canceling them.
const pipelineDrainTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the CodeGenie HTTP server.

Examples:
  codegenie serve
  codegenie serve --addr :9090 --config codegenie.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	logger.Infow("codegenie: starting",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store.Driver,
		"db_path", cfg.Store.DBPath,
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(cfg.ListenAddr, a.pipeline, a.registry, cfg.Sandbox.Isolation, a.assistant, logger)
	serveErr := srv.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), pipelineDrainTimeout)
	defer cancel()
	if err := a.pipeline.Shutdown(drainCtx); err != nil {
		logger.Warnw("pipeline shutdown", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("server: %w", serveErr)
	}
	logger.Infow("codegenie: stopped")
	return nil
}
