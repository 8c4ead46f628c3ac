package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobcatalog/internal/rawstore"
)

var (
	rawSource string
	rawLimit  int
)

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "List stored raw collections",
	RunE:  runRawList,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <raw-collection-id>...",
	Short: "Process stored raw collections again",
	Long:  "Creates a fresh processing record for each collection, processes it and loads the staged jobs.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReprocess,
}

func init() {
	rawCmd.Flags().StringVar(&rawSource, "source", "", "only this source")
	rawCmd.Flags().IntVar(&rawLimit, "limit", 50, "maximum collections to list")
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(reprocessCmd)
}

func runRawList(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.raw.List(ctx, rawstore.ListOptions{Source: rawSource, Limit: rawLimit})
	if err != nil {
		return err
	}
	fmt.Printf("%-38s %-20s %-10s %-6s %s\n", "ID", "Source", "Status", "HTTP", "Collected")
	for _, rc := range list {
		fmt.Printf("%-38s %-20s %-10s %-6d %s\n",
			rc.ID, rc.Source, rc.Status, rc.HTTPStatus, rc.CollectedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
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

	for _, id := range args {
		rec, err := a.processor.Reprocess(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s, %d of %d items, %d failed\n", id, rec.Status, rec.Succeeded, rec.TotalItems, rec.Failed)
	}

	sum, err := a.loader.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("loaded: %d new, %d merged, %d for review\n", sum.Inserted, sum.Merged, sum.Review)
	return nil
}
