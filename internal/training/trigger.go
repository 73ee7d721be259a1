// Package training notifies the downstream model-training job that a
// compiled session artifact is ready.
package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TriggerError reports a downstream trigger failure. It never invalidates
// the compiled artifact; callers surface it separately from compilation
// failures.
type TriggerError struct {
	StatusCode int
	Err        error
}

func (e *TriggerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("training trigger rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("training trigger failed: %v", e.Err)
}

func (e *TriggerError) Unwrap() error { return e.Err }

// Trigger posts artifact references to the training endpoint with
// exponential backoff. 4xx responses are permanent; everything else retries
// until the elapsed budget runs out.
type Trigger struct {
	endpoint      string
	client        *http.Client
	attemptBudget time.Duration
	maxElapsed    time.Duration
	retryInterval time.Duration
}

func New(endpoint string, attemptBudget, maxElapsed time.Duration) *Trigger {
	return &Trigger{
		endpoint:      endpoint,
		client:        &http.Client{},
		attemptBudget: attemptBudget,
		maxElapsed:    maxElapsed,
		retryInterval: 500 * time.Millisecond,
	}
}

type triggerRequest struct {
	FileURL string `json:"fileUrl"`
}

// Notify tells the downstream job where to fetch the compiled artifact.
func (t *Trigger) Notify(ctx context.Context, fileURL string) error {
	if t.endpoint == "" {
		return &TriggerError{Err: fmt.Errorf("training endpoint not configured")}
	}

	payload, err := json.Marshal(triggerRequest{FileURL: fileURL})
	if err != nil {
		return &TriggerError{Err: err}
	}

	var lastErr error
	op := func() error {
		actx, cancel := context.WithTimeout(ctx, t.attemptBudget)
		defer cancel()

		req, err := http.NewRequestWithContext(actx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = &TriggerError{Err: err}
			return lastErr
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			lastErr = nil
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// Client errors won't heal on retry.
			lastErr = &TriggerError{StatusCode: resp.StatusCode}
			return backoff.Permanent(lastErr)
		default:
			lastErr = &TriggerError{StatusCode: resp.StatusCode}
			return lastErr
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retryInterval
	b.MaxElapsedTime = t.maxElapsed

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return &TriggerError{Err: err}
	}
	return nil
}
