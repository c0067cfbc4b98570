package imagine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// HTTPProvider starts generation jobs against a provider's create endpoint.
// The endpoint takes a prompt and answers with the job's status URL; the
// Watcher takes it from there.
type HTTPProvider struct {
	CreateURL string
	Client    *http.Client
}

type createRequest struct {
	Prompt string `json:"prompt"`
}

type createResponse struct {
	StatusURL string `json:"statusUrl"`
}

func (p *HTTPProvider) CreateJob(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(createRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.CreateURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return "", fmt.Errorf("read create response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("create endpoint returned %d", resp.StatusCode)
	}

	var created createResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	if created.StatusURL == "" {
		return "", errors.New("create response missing status url")
	}
	return created.StatusURL, nil
}
