// Package cmd implements the runbook-api command-line interface. Every
// subcommand drives the same pkg/runbook.Service the HTTP layer uses, so
// local operators get identical semantics without a running server.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/runbook-engine/pkg/config"
	"github.com/ethpandaops/runbook-engine/pkg/observability"
)

var (
	cfgFile  string
	logLevel string
	log      = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "runbook-api",
	Short: "Runbook execution engine",
	Long: `A network service that validates and executes human-authored operational
procedures ("runbooks") written in a structured markdown dialect. This CLI
drives the same core Service the HTTP API uses: list, get, required-env,
validate, and execute runbooks directly against a runbooks directory.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			level, perr := logrus.ParseLevel(logLevel)
			if perr != nil {
				return perr
			}
			log.SetLevel(level)
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			return nil
		}

		loggerCfg := observability.LoggerConfig{
			Level:      observability.LogLevel(cfg.Observability.Logging.Level),
			Format:     observability.LogFormat(cfg.Observability.Logging.Format),
			OutputPath: cfg.Observability.Logging.OutputPath,
		}

		if logLevel != "" && logLevel != "info" {
			loggerCfg.Level = observability.LogLevel(logLevel)
		}

		configuredLog, err := observability.ConfigureLogger(loggerCfg)
		if err != nil {
			level, _ := logrus.ParseLevel(logLevel)
			log.SetLevel(level)
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			return nil
		}

		log.SetLevel(configuredLog.Level)
		log.SetFormatter(configuredLog.Formatter)
		log.SetOutput(configuredLog.Out)

		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml or $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
