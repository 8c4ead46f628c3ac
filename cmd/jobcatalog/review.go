package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/review"
)

var reviewLimit int

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work through the duplicate-review queue (TUI)",
	Long:  "Shows the queue picker, then a side-by-side comparison where each pair is merged or kept apart.",
	RunE:  runReviewCmd,
}

func init() {
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 200, "maximum links to load")
	rootCmd.AddCommand(reviewCmd)
}

func runReviewCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// The TUI owns the terminal; any log output corrupts the display.
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(cmd.Context(), reviewConfig(cfg), silent)
	if err != nil {
		return err
	}
	defer a.Close()

	approved, rejected := 0, 0
	defer func() {
		fmt.Printf("Merged %d, kept apart %d.\n", approved, rejected)
	}()

	for {
		items, err := review.RunLoader(func(ctx context.Context) ([]review.Item, error) {
			return review.LoadQueue(ctx, a.store.Queries(), reviewLimit)
		})
		if err != nil {
			return fmt.Errorf("load review queue: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("Review queue is empty.")
			return nil
		}

		groups := review.Groups(items)
		choice, err := review.RunGroupPicker(groups)
		if err != nil {
			return fmt.Errorf("picker: %w", err)
		}
		if choice < 0 {
			return nil
		}

		res, err := review.RunReviewTUI(review.Select(items, groups[choice]), a.loader)
		if err != nil {
			return fmt.Errorf("review: %w", err)
		}
		approved += res.Approved
		rejected += res.Rejected
		if res.WantQuit {
			return nil
		}
		// else: loop → reload and back to picker
	}
}

// reviewConfig drops remote notification so a review session never dials a broker.
func reviewConfig(cfg *config.Config) *config.Config {
	c := *cfg
	c.Notification = config.NotificationConfig{Type: "log"}
	return &c
}
