package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dramosoft/tabula-sync/internal/config"
	"github.com/dramosoft/tabula-sync/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "tabula-sync",
	Short: "Synchronize local fiscal documents with Tabula Cloud",
	Long: `tabula-sync reconciles invoices, credit and debit notes, self-billed
invoices and shipment notes held in the local database with the Tabula
Cloud API and, through it, the national tax authority (SET).

Configuration is read from the environment (or a .env file):
  TABULA_TOKEN           API token (required)
  TABULA_URL             API base URL (required)
  DATABASE_DSN           PostgreSQL connection string (required)
  SYNC_INTERVAL_MINUTES  polling interval, whole minutes (default 10)
  TABULA_TIMEOUT_SECONDS per-call HTTP timeout (default 20)
  SYNC_MAX_RETRIES       resubmission attempts per document (default 5)
  STATUS_ADDR            status endpoint listen address (default :8900)

Examples:
  # Run the daemon
  tabula-sync run

  # Run exactly one cycle and exit
  tabula-sync sync`,
	Version: version,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the snapshot and wires the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
