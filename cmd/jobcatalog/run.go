package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobcatalog/internal/indexer"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/orchestrator"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and exit",
	Long:  "Collects, processes and loads once, syncs the vector index, prints the run report and exits.",
	RunE:  runOnce,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch from every enabled source and store the raw payloads",
	Long:  "Runs only the collection stage. The payloads are processed by the next run.",
	RunE:  runCollect,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report, runErr := a.orch.Run(ctx)
	if report == nil {
		return runErr
	}

	worker := indexer.New(a.store, a.vectors, indexer.Config{
		BatchSize:   cfg.Index.BatchSize,
		MaxAttempts: cfg.Index.MaxAttempts,
		BaseDelay:   cfg.Index.BaseDelay,
	}, a.clock, a.metrics, logger)
	if res, err := worker.Drain(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("vector index sync failed", "error", err)
	} else {
		logger.Info("vector index synced", "delivered", res.Delivered, "failed", res.Failed)
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}
	return runErr
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.collector.Run(ctx, orchestrator.Targets(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("%-20s %-10s %-8s %s\n", "Source", "Status", "Bytes", "ID")
	for _, rc := range sum.Collections {
		fmt.Printf("%-20s %-10s %-8d %s\n", rc.Source, rc.Status, len(rc.Payload), rc.ID)
	}
	fmt.Printf("\n%d succeeded, %d failed\n", sum.Succeeded, sum.Failed)
	return nil
}

func printReport(r *model.RunReport) {
	fmt.Printf("Run %s: %s", r.ID, r.State)
	if r.Cancelled {
		fmt.Print(" (cancelled)")
	}
	fmt.Printf(" in %s\n", r.Duration().Round(time.Millisecond))
	for _, s := range r.Stages {
		var took time.Duration
		if s.FinishedAt != nil {
			took = s.FinishedAt.Sub(s.StartedAt)
		}
		fmt.Printf("  %-11s %6d items %4d failed  %s\n", s.Name, s.Items, s.Failed, took.Round(time.Millisecond))
	}
	fmt.Printf("collected %d, processed %d, new %d, duplicates %d, review %d, failed %d, backfilled %d\n",
		r.Collected, r.Processed, r.Loaded, r.Duplicates, r.Review, r.Failed, r.Backfilled)
	if r.Error != "" {
		fmt.Printf("error: %s\n", r.Error)
	}
}
