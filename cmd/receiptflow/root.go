package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/receiptflow/internal/config"
)

var (
	cfgFile  string
	logLevel string

	loader *config.Loader
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "receiptflow",
	Short: "Idempotent receipt ingestion pipeline",
	Long: `receiptflow discovers scanned receipts in watched folders, extracts their
text, structures it with a language model, and keeps per-month ledgers and
aggregates without double counting.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.receiptflow.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newAllCmd(),
		newPollCmd(),
		newAggregateCmd(),
		newExportCmd(),
		newTokenCmd(),
		newHashKeyCmd(),
	)
}

// loadConfig reads the config file and environment, then installs the
// process logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	loader, err = config.NewLoader(cfgFile)
	if err != nil {
		return err
	}
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger = newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if file := loader.ConfigFile(); file != "" {
		logger.Debug("loaded config file", "path", file)
	}
	return nil
}
