package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/model"
)

// Ensure SlackNotifier implements Notifier.
var _ Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts run summaries and alerts to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, clk clock.Clock, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		clock:      clk,
		logger:     logger,
	}
}

// RunFinished sends one Block Kit message with the run counts.
func (s *SlackNotifier) RunFinished(ctx context.Context, r model.RunReport) error {
	return s.send(ctx, buildRunPayload(r))
}

// Alert sends one Block Kit message describing the failure.
func (s *SlackNotifier) Alert(ctx context.Context, a model.Alert) error {
	return s.send(ctx, buildAlertPayload(a))
}

// send posts the payload, retrying once when Slack rate limits.
func (s *SlackNotifier) send(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
		if err := s.clock.Sleep(ctx, retryAfter); err != nil {
			return err
		}
		status, _, err = s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		s.logger.Info("slack message sent", "retried", true)
		return nil
	}

	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	s.logger.Debug("slack message sent")
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	if secs <= 0 {
		secs = 1
	}
	return resp.StatusCode, time.Duration(secs) * time.Second, nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func buildRunPayload(r model.RunReport) slackPayload {
	icon := "✅"
	switch {
	case r.Cancelled:
		icon = "⏹"
	case r.State == model.RunFailed:
		icon = "❌"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("%s Run %s: %s", icon, shortID(r.ID), r.State)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Collected:*\n" + strconv.Itoa(r.Collected)},
				{Type: "mrkdwn", Text: "*Processed:*\n" + strconv.Itoa(r.Processed)},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*New jobs:*\n" + strconv.Itoa(r.Loaded)},
				{Type: "mrkdwn", Text: "*Duplicates:*\n" + strconv.Itoa(r.Duplicates)},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Needs review:*\n" + strconv.Itoa(r.Review)},
				{Type: "mrkdwn", Text: "*Failed:*\n" + strconv.Itoa(r.Failed)},
			},
		},
	}
	if r.Error != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Error:* " + r.Error},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}

func buildAlertPayload(a model.Alert) slackPayload {
	text := "*" + a.Message + "*"
	if a.Stage != "" {
		text += "\nStage: " + string(a.Stage)
	}
	if a.Err != "" {
		text += "\n```" + a.Err + "```"
	}
	return slackPayload{Blocks: []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "🚨 Pipeline alert"},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: text},
		},
		{Type: "divider"},
	}}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
