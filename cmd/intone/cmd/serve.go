package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/intonelabs/intone/internal/config"
	"github.com/intonelabs/intone/internal/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the render daemon",
	Long: `Starts the long-running render service: an embedded or external NATS
bus for render requests, a SQLite run ledger, and an HTTP endpoint with
health checks and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stdout)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		return err
	}

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", "error", err.Error())
		time.Sleep(1 * time.Second)
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
