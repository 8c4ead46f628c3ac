// Package notifier delivers run summaries and storage alerts to operators.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/model"
)

// Notifier receives the end-of-run report and out-of-band alerts.
type Notifier interface {
	RunFinished(ctx context.Context, r model.RunReport) error
	Alert(ctx context.Context, a model.Alert) error
}

// New builds the notifier selected by cfg. The returned close func releases
// any broker connection.
func New(cfg config.NotificationConfig, client *http.Client, logger *slog.Logger) (Notifier, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Type {
	case "", "log":
		return NewLogNotifier(logger), nop, nil
	case "slack":
		return NewSlackNotifier(cfg.WebhookURL, client, clock.Real{}, logger), nop, nil
	case "amqp":
		n, err := DialAMQP(cfg.AMQP, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown notification type %q", cfg.Type)
	}
}
