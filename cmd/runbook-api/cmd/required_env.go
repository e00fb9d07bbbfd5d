package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

var requiredEnvCmd = &cobra.Command{
	Use:   "required-env <file>",
	Short: "Print a runbook's declared environment requirements",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequiredEnv,
}

func init() {
	rootCmd.AddCommand(requiredEnvCmd)
}

func runRequiredEnv(_ *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefaults()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	svc := buildRunbookService(cfg)

	reqs, err := svc.RequiredEnv(context.Background(), args[0], &runbook.TokenContext{Subject: "cli"})
	if err != nil {
		return err
	}

	return outputJSON(reqs)
}
