package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// EventStageTransition is the payload event name.
const EventStageTransition = "stage-transition"

// Payload is the JSON body posted for each transition.
type Payload struct {
	Event   string    `json:"event"`
	StoryID string    `json:"story_id"`
	Stage   string    `json:"stage"`
	Label   string    `json:"label"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// NewPayload converts a transition into its wire form.
func NewPayload(t Transition) Payload {
	return Payload{
		Event:   EventStageTransition,
		StoryID: t.StoryID,
		Stage:   string(t.Stage),
		Label:   t.Label,
		From:    string(t.From),
		To:      string(t.To),
		Detail:  t.Detail,
		At:      t.At.UTC(),
	}
}

// WebhookNotifier posts transitions as JSON to a URL.
//
// 5xx responses and transport errors are retried with exponential backoff up
// to MaxRetries times; 4xx responses fail immediately.
type WebhookNotifier struct {
	URL        string
	MaxRetries int
	Client     *http.Client

	// InitialInterval is the first retry delay. Zero uses the backoff default.
	InitialInterval time.Duration
}

// NewWebhookNotifier creates a [WebhookNotifier] whose attempts time out
// after timeout.
func NewWebhookNotifier(url string, maxRetries int, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		URL:        url,
		MaxRetries: maxRetries,
		Client:     &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) newBackoff(ctx context.Context) backoff.BackOff {
	// BackOff implementations are stateful; build one per delivery.
	bo := backoff.NewExponentialBackOff()
	if w.InitialInterval > 0 {
		bo.InitialInterval = w.InitialInterval
	}
	retries := w.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)
}

// Notify delivers one transition.
func (w *WebhookNotifier) Notify(ctx context.Context, t Transition) error {
	body, err := json.Marshal(NewPayload(t))
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	err = backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook returned %s", resp.Status)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("webhook returned %s", resp.Status))
		}
		return nil
	}, w.newBackoff(ctx))
	if err != nil {
		return fmt.Errorf("failed to deliver notification for %s/%s: %w", t.StoryID, t.Stage, err)
	}
	return nil
}
