package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-reconciler/internal/payment"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that keep payment status in step with the gateway.`,
}

var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Start the stale payment sweeper",
	Long:  `Periodically force-verifies payments stuck in pending or processing, covering lost callbacks and webhooks.`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

var (
	maxWorkers   int
	jobQueueSize int
	runOnce      bool
)

func newSweeper(deps *Dependencies) *payment.Sweeper {
	cfg := deps.Config.Reconcile
	return payment.NewSweeper(deps.PaymentService, payment.SweeperConfig{
		Interval:      cfg.Interval,
		StaleAfter:    cfg.StaleAfter,
		BatchSize:     cfg.BatchSize,
		MaxWorkers:    getIntFlag(maxWorkers, cfg.MaxWorkers),
		JobQueueSize:  getIntFlag(jobQueueSize, cfg.JobQueueSize),
		VerifyTimeout: deps.Config.Gateway.Timeout,
	}, deps.Logger)
}

func startReconcileWorker() {
	ctx := context.Background()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	log := deps.Logger

	sweeper := newSweeper(deps)

	if runOnce {
		runSingleSweep(ctx, deps, sweeper)
		return
	}

	sweeper.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("reconcile worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Info("received signal, shutting down reconcile worker", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		sweeper.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info("reconcile worker shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn("shutdown timeout reached, forcing exit")
	}

	deps.Close(shutdownCtx)
}

// runSingleSweep enqueues one batch, lets the workers drain it and exits.
// Suitable for cron-style scheduling.
func runSingleSweep(ctx context.Context, deps *Dependencies, sweeper *payment.Sweeper) {
	log := deps.Logger
	sweeper.StartWorkers()

	count, err := sweeper.SweepOnce(ctx)
	if err != nil {
		log.Error("stale payment sweep failed", "error", err)
	}

	sweeper.Drain()
	sweeper.Shutdown()
	log.Info("single sweep finished", "enqueued", count)

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	deps.Close(closeCtx)
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	reconcileWorkerCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single sweep and exit")

	workerCmd.AddCommand(reconcileWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
