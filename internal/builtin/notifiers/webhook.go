// Package notifiers implements the Notifier plugin slot: webhook (HTTP POST
// with retry), desktop (best-effort OS notification), and logonly (writes
// into the logbook). Each receives only the priorities a project's
// notificationRouting lists it under.
package notifiers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ao-project/ao/internal/model"
)

// WebhookConfig configures the HTTP webhook notifier.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// Webhook posts each event as a JSON body to a configured URL, retrying
// transient failures the same way githubscm.SCM retries GitHub calls.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhook constructs a webhook notifier.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Webhook{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type webhookPayload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	ProjectID string          `json:"projectId"`
	Priority  model.Priority  `json:"priority"`
	At        time.Time       `json:"at"`
	Detail    string          `json:"detail"`
}

func (w *Webhook) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 20 * time.Second
	b.RandomizationFactor = 0.3
	return backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx)
}

// Notify posts event to the configured webhook URL, retrying on transport
// errors and 5xx responses.
func (w *Webhook) Notify(ctx context.Context, event model.Event) error {
	if w.cfg.URL == "" {
		return errors.New("notifiers: webhook URL not configured")
	}
	body, err := json.Marshal(webhookPayload{
		ID:        event.ID,
		Type:      event.Type,
		SessionID: event.SessionID,
		ProjectID: event.ProjectID,
		Priority:  event.Priority,
		At:        event.At,
		Detail:    event.Detail,
	})
	if err != nil {
		return fmt.Errorf("notifiers: marshal event: %w", err)
	}

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range w.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("notifiers: webhook returned %s", resp.Status)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("notifiers: webhook returned %s", resp.Status))
		}
		return nil
	}, w.retryPolicy(ctx))
}
