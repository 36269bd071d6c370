package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single synchronization cycle and exit",
	Long: `Run one cycle (permit check, status reconciliation, pending
submission, error resubmission) and print the cycle report.`,
	RunE: runSyncOnce,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSyncOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator := newOrchestrator(cfg)
	report, err := orchestrator.RunCycle(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("checked=%d submitted=%d failed=%d pending=%d skipped=%d resubmitted=%d\n",
		report.StatusChecked, report.Submitted, report.SubmitFailed,
		report.LeftPending, report.SkippedPermit, report.Resubmitted)
	return nil
}
