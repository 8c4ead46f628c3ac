package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobcatalog/internal/api"
	"github.com/amishk599/jobcatalog/internal/indexer"
	"github.com/amishk599/jobcatalog/internal/scheduler"
)

var noAPI bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pipeline daemon",
	Long:  "Runs the scheduler, the vector index worker and the HTTP API; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&noAPI, "no-api", false, "do not serve the HTTP API")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("config loaded",
		"sources", len(cfg.EnabledSources()),
		"queries", len(cfg.Queries),
		"schedule", cfg.Orchestrator.Schedule,
		"interval", cfg.Orchestrator.Interval.String(),
		"storage", cfg.Storage.Driver,
		"embedding_model", cfg.Embedding.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer a.Close()

	sched, err := scheduler.NewScheduler(a.orch, cfg.Orchestrator.Schedule, cfg.Orchestrator.Interval, a.clock, logger)
	if err != nil {
		return err
	}
	worker := indexer.New(a.store, a.vectors, indexer.Config{
		PollInterval: cfg.Index.PollInterval,
		BatchSize:    cfg.Index.BatchSize,
		MaxAttempts:  cfg.Index.MaxAttempts,
		BaseDelay:    cfg.Index.BaseDelay,
	}, a.clock, a.metrics, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	if !noAPI {
		srv := a.apiServer()
		g.Go(func() error { return srv.Run(gctx, cfg.API.Addr) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("daemon stopped with error", "error", err)
		return err
	}
	logger.Info("goodbye")
	return nil
}

func (a *app) apiServer() *api.Server {
	return api.NewServer(api.Deps{
		Search:   a.searcher,
		Queue:    a.store.Queries(),
		Resolver: a.loader,
		Runs:     a.orch,
		Health:   a.store,
		Registry: a.metrics.Registry(),
	}, a.logger)
}
