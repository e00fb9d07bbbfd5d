package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

var executeEnvFlags []string

var executeCmd = &cobra.Command{
	Use:   "execute <file>",
	Short: "Execute a runbook's script in an isolated workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecute,
}

func init() {
	executeCmd.Flags().StringArrayVar(&executeEnvFlags, "env", nil, "KEY=VALUE environment override, repeatable")
	rootCmd.AddCommand(executeCmd)
}

func runExecute(_ *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefaults()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	envVars, err := parseEnvFlags(executeEnvFlags)
	if err != nil {
		return err
	}

	svc := buildRunbookService(cfg)

	tok := &runbook.TokenContext{Subject: "cli"}
	bc := &runbook.Breadcrumb{AtTime: time.Now().UTC(), ByUser: tok.Subject}

	rec, err := svc.Execute(context.Background(), args[0], tok, bc, envVars)
	if err != nil {
		return err
	}

	return outputJSON(rec)
}

func parseEnvFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --env value %q, expected KEY=VALUE", f)
		}
		out[name] = value
	}
	return out, nil
}
