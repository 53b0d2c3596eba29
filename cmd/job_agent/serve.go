package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-agent/internal/server"
	"github.com/jonathan/job-agent/internal/server/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the approval expiry sweeper",
	Long: `Serves the workflow API and the approval callback links, and sweeps expired
approvals every workflow.sweep_interval.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (defaults to server.addr in the config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	rt, err := newRuntime(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := server.Options{
		Addr:             cfg.Server.Addr,
		Engine:           rt.engine,
		Issuer:           rt.issuer,
		Outcomes:         rt.stores.learning,
		Limiter:          ratelimit.NewLimiter(ratelimit.LoadConfig()),
		APIToken:         cfg.Server.APIToken,
		DefaultThreshold: cfg.Matching.Threshold,
	}
	if rt.stores.db != nil {
		opts.Health = rt.stores.db.Ping
	}
	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return sweepLoop(gctx, rt.engine, cfg.Workflow.SweepInterval)
	})
	return g.Wait()
}
