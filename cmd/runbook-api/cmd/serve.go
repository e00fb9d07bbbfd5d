package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/runbook-engine/internal/version"
	"github.com/ethpandaops/runbook-engine/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the runbook execution engine HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfigOrDefaults()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	builder := server.NewBuilder(log, cfg, version.Version)
	svc, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	return svc.Stop(shutdownCtx)
}
