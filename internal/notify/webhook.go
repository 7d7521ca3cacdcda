package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

// WebhookOptions configures WebhookSink.
type WebhookOptions struct {
	URL string
	// Timeout bounds a single POST.
	Timeout time.Duration
	// MaxElapsed bounds all retries of one delivery.
	MaxElapsed time.Duration
}

// WebhookSink POSTs each notification as JSON, retrying transient failures
// with exponential backoff. 4xx responses are not retried.
type WebhookSink struct {
	client     *resty.Client
	url        string
	maxElapsed time.Duration
}

// NewWebhookSink builds a sink for opts.URL.
func NewWebhookSink(opts WebhookOptions) (*WebhookSink, error) {
	if opts.URL == "" {
		return nil, errors.New("notify: webhook URL is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = time.Minute
	}
	return &WebhookSink{
		client:     resty.New().SetTimeout(opts.Timeout),
		url:        opts.URL,
		maxElapsed: opts.MaxElapsed,
	}, nil
}

// Deliver POSTs n as JSON. 4xx responses are not retried.
func (w *WebhookSink) Deliver(ctx context.Context, n model.Notification) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = w.maxElapsed

	attempt := 0
	op := func() error {
		attempt++
		resp, err := w.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(n).
			Post(w.url)
		if err != nil {
			return err
		}
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			return backoff.Permanent(fmt.Errorf("notify: webhook rejected notification: %s", resp.Status()))
		}
		if resp.IsError() {
			return fmt.Errorf("notify: webhook failed: %s", resp.Status())
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		appLog.Error("webhook delivery failed", err, "event_id", n.EventID, "attempts", attempt)
		return err
	}
	appLog.Debug("webhook delivered", "event_id", n.EventID, "attempts", attempt)
	return nil
}
