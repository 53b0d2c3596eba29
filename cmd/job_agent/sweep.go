package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/workflow"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire approvals older than 24h and move their workflows on",
	Long: `Finds every workflow whose pending approval has passed its expiry and resumes it
with a timeout: the job is recorded as expired and the next match is tailored.

With --interval the sweep repeats until interrupted.`,
	RunE: runSweep,
}

var sweepInterval time.Duration

func init() {
	sweepCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Repeat the sweep at this interval (e.g. 5m); 0 runs once")
	rootCmd.AddCommand(sweepCmd)
}

// sweeper is the part of the engine the sweep loop needs.
type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

var _ sweeper = (*workflow.Engine)(nil)

// sweepLoop sweeps once, then every interval until ctx is done. Failed sweeps
// are logged and retried on the next tick.
func sweepLoop(ctx context.Context, s sweeper, interval time.Duration) error {
	sweepOnce := func() error {
		n, err := s.Sweep(ctx)
		if n > 0 {
			log.Printf("[SWEEP] expired %d approval(s)", n)
		}
		return err
	}

	err := sweepOnce()
	if interval <= 0 {
		return err
	}
	if err != nil {
		log.Printf("[SWEEP] failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sweepOnce(); err != nil {
				log.Printf("[SWEEP] failed: %v", err)
			}
		}
	}
}

func runSweep(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if sweepInterval > 0 {
		fmt.Printf("Sweeping expired approvals every %s\n", sweepInterval)
	}
	return sweepLoop(ctx, rt.engine, sweepInterval)
}
