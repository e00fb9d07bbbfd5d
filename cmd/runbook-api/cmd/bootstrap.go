package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethpandaops/runbook-engine/pkg/config"
	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

// loadConfigOrDefaults loads config from --config / $CONFIG_PATH / ./config.yaml
// if present, otherwise returns a minimal config with a ./runbooks directory,
// matching the teacher's CLI fallback so local operators don't need a config
// file just to list or validate runbooks.
func loadConfigOrDefaults() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return config.Load(envPath)
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return config.Load("config.yaml")
	}

	cfg := &config.Config{Runbooks: config.RunbooksConfig{Dir: "./runbooks"}}
	config.ApplyDefaults(cfg)
	return cfg, nil
}

// buildRunbookService constructs the core Service from the loaded config.
func buildRunbookService(cfg *config.Config) *runbook.Service {
	return runbook.NewService(runbook.ServiceConfig{
		RunbooksDir:       cfg.Runbooks.Dir,
		Shell:             cfg.Runbooks.Shell,
		ScriptTimeoutSecs: cfg.Execution.ScriptTimeoutSeconds,
		MaxOutputBytes:    cfg.Execution.MaxOutputBytes,
		MaxRecursionDepth: cfg.Execution.MaxRecursionDepth,
		APIBaseURL:        cfg.API.BaseURL(),
	}, log)
}

// outputJSON marshals v to indented JSON on stdout.
func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
