package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long:  "Sends a test alert using the configured notifier.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	n, closeN, err := notifier.New(cfg.Notification, &http.Client{Timeout: 30 * time.Second}, logger)
	if err != nil {
		logger.Error("failed to build notifier", "error", err)
		return err
	}
	defer closeN()

	if err := n.Alert(cmd.Context(), model.Alert{
		Message: "test notification from jobcatalog",
		Time:    time.Now(),
	}); err != nil {
		logger.Error("test notification failed", "error", err)
		return err
	}
	logger.Info("test notification sent successfully", "type", cfg.Notification.Type)
	return nil
}
