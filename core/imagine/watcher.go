package imagine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CardSorting/hana-relay/core/infra/logging"
)

var (
	// ErrPollTimeout reports that the attempt budget ran out before the job
	// reached a terminal status.
	ErrPollTimeout = errors.New("timeout waiting for image generation")
	// ErrUpstream reports that the provider marked the job failed.
	ErrUpstream = errors.New("image generation failed upstream")
)

const (
	defaultPollInterval = 10 * time.Second
	defaultMaxAttempts  = 30
	maxStatusBody       = 1 << 20
)

type statusResponse struct {
	Status  string   `json:"status"`
	Output  []string `json:"output"`
	Message string   `json:"message"`
}

// Watcher polls a provider's job-status URL until the job succeeds, fails, or
// the attempt budget is spent. Transport and parse failures are hard errors,
// not transient ones.
type Watcher struct {
	Client      *http.Client
	Interval    time.Duration
	MaxAttempts int
}

// Watch polls statusURL and returns the first output URL on success. It is a
// small state machine: polling, then exactly one of resolved, upstream error,
// transport error, parse error, or timeout.
func (w *Watcher) Watch(ctx context.Context, statusURL string) (string, error) {
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	interval := w.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := w.poll(ctx, client, statusURL)
		if err != nil {
			return "", err
		}
		switch {
		case status.Status == "success" && len(status.Output) > 0:
			logging.Debug("imagine", "job resolved", "url", statusURL, "attempts", attempt)
			return status.Output[0], nil
		case status.Status == "error":
			logging.Error("imagine", "job failed upstream", "url", statusURL, "message", status.Message)
			if status.Message != "" {
				return "", fmt.Errorf("%w: %s", ErrUpstream, status.Message)
			}
			return "", ErrUpstream
		}
		// Still pending; wait out the interval unless the budget is spent.
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	logging.Error("imagine", "poll attempts exhausted", "url", statusURL)
	return "", ErrPollTimeout
}

func (w *Watcher) poll(ctx context.Context, client *http.Client, statusURL string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return nil, fmt.Errorf("read poll response: %w", err)
	}
	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parse poll response: %w", err)
	}
	return &status, nil
}
