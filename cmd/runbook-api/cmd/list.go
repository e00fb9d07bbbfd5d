package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available runbooks",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfigOrDefaults()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	svc := buildRunbookService(cfg)

	names, err := svc.List(context.Background(), &runbook.TokenContext{Subject: "cli"})
	if err != nil {
		return err
	}

	return outputJSON(names)
}
