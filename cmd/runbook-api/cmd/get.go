package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

var getCmd = &cobra.Command{
	Use:   "get <file>",
	Short: "Print a runbook's raw markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(_ *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefaults()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	svc := buildRunbookService(cfg)

	text, err := svc.Get(context.Background(), args[0], &runbook.TokenContext{Subject: "cli"})
	if err != nil {
		return err
	}

	fmt.Print(text)
	return nil
}
