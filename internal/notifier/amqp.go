package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/model"
)

// Ensure AMQPNotifier implements Notifier.
var _ Notifier = (*AMQPNotifier)(nil)

const (
	eventRunFinished = "run.finished"
	eventAlert       = "run.alert"

	defaultRoutingKey = "jobcatalog"
)

// publisher is the part of *amqp.Channel the notifier uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// event is the message body published for every notification.
type event struct {
	Type  string           `json:"type"`
	Run   *model.RunReport `json:"run,omitempty"`
	Alert *model.Alert     `json:"alert,omitempty"`
}

// AMQPNotifier publishes run events to a topic exchange. The routing key is
// the configured prefix plus the event type, e.g. jobcatalog.run.alert.
type AMQPNotifier struct {
	ch       publisher
	conn     *amqp.Connection
	exchange string
	prefix   string
	logger   *slog.Logger
}

// DialAMQP connects to the broker and declares the exchange as a durable topic.
func DialAMQP(cfg config.AMQPConfig, logger *slog.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Heartbeat: 10 * time.Second, Locale: "en_US"})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	n := newAMQPNotifier(ch, cfg.Exchange, cfg.RoutingKey, logger)
	n.conn = conn
	logger.Info("amqp notifier connected", "exchange", cfg.Exchange)
	return n, nil
}

func newAMQPNotifier(ch publisher, exchange, prefix string, logger *slog.Logger) *AMQPNotifier {
	if prefix == "" {
		prefix = defaultRoutingKey
	}
	return &AMQPNotifier{ch: ch, exchange: exchange, prefix: prefix, logger: logger}
}

// RunFinished publishes the report as a run.finished event.
func (n *AMQPNotifier) RunFinished(ctx context.Context, r model.RunReport) error {
	return n.publish(ctx, event{Type: eventRunFinished, Run: &r})
}

// Alert publishes a run.alert event.
func (n *AMQPNotifier) Alert(ctx context.Context, a model.Alert) error {
	return n.publish(ctx, event{Type: eventAlert, Alert: &a})
}

func (n *AMQPNotifier) publish(ctx context.Context, e event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	key := n.prefix + "." + e.Type
	err = n.ch.PublishWithContext(ctx,
		n.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         e.Type,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	n.logger.Debug("event published", "routing_key", key, "body_size", len(body))
	return nil
}

// Close closes the channel and the connection.
func (n *AMQPNotifier) Close() error {
	if err := n.ch.Close(); err != nil {
		n.logger.Warn("close amqp channel", "error", err)
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
