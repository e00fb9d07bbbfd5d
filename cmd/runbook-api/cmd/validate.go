package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a runbook without executing its script",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefaults()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	svc := buildRunbookService(cfg)

	tok := &runbook.TokenContext{Subject: "cli"}
	bc := &runbook.Breadcrumb{AtTime: time.Now().UTC(), ByUser: tok.Subject}

	rec, err := svc.Validate(context.Background(), args[0], tok, bc)
	if err != nil {
		return err
	}

	return outputJSON(rec)
}
