package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dramosoft/tabula-sync/internal/api"
	"github.com/dramosoft/tabula-sync/internal/config"
	"github.com/dramosoft/tabula-sync/internal/logger"
	"github.com/dramosoft/tabula-sync/internal/server"
	"github.com/dramosoft/tabula-sync/internal/store"
	"github.com/dramosoft/tabula-sync/internal/syncer"
)

var serverDebug bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the synchronization daemon",
	Long: `Run the polling loop on the configured interval and serve the status
endpoints (GET /healthz, GET /status).

SIGINT or SIGTERM interrupts the inter-cycle sleep; an in-flight cycle
finishes before the process exits.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable HTTP debug logging")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator := newOrchestrator(cfg)

	statusServer := server.New(&server.Config{
		Address: cfg.StatusAddr,
		Debug:   serverDebug,
	}, orchestrator.Status())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- statusServer.Start(ctx)
	}()

	err = orchestrator.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if serveErr := <-serverErr; serveErr != nil && err == nil {
		err = serveErr
	}
	return err
}

// newOrchestrator wires the sync engine from the config snapshot. A
// fresh store connection is opened at the start of each cycle.
func newOrchestrator(cfg *config.Config) *syncer.Orchestrator {
	client := api.NewClient(cfg.BaseURL, cfg.Token, api.WithTimeout(cfg.Timeout))

	opener := func(ctx context.Context) (syncer.Store, error) {
		return store.Open(ctx, cfg.DatabaseDSN)
	}

	return syncer.New(opener, client, syncer.Config{
		Interval:   cfg.Interval,
		MaxRetries: cfg.MaxRetries,
	}, logger.WithComponent("syncer"))
}
