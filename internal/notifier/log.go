package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobcatalog/internal/model"
)

// Ensure LogNotifier implements Notifier.
var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes run summaries and alerts to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// RunFinished logs the run counts. Failed runs log at warn level.
// Returns nil (logging does not fail).
func (n *LogNotifier) RunFinished(ctx context.Context, r model.RunReport) error {
	args := []any{
		"run_id", r.ID,
		"state", r.State,
		"duration", r.Duration(),
		"collected", r.Collected,
		"processed", r.Processed,
		"loaded", r.Loaded,
		"duplicates", r.Duplicates,
		"review", r.Review,
		"failed", r.Failed,
	}
	if r.Cancelled {
		args = append(args, "cancelled", true)
	}
	if r.Error != "" {
		args = append(args, "error", r.Error)
	}
	level := slog.LevelInfo
	if r.State == model.RunFailed {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "run finished", args...)
	return nil
}

// Alert logs the alert at error level.
func (n *LogNotifier) Alert(ctx context.Context, a model.Alert) error {
	n.logger.ErrorContext(ctx, "pipeline alert", "run_id", a.RunID, "stage", a.Stage, "message", a.Message, "error", a.Err)
	return nil
}
