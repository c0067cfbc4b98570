package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/CardSorting/hana-relay/core/infra/logging"
)

// WebhookMessenger posts rendered notes to a delivery endpoint as JSON. The
// endpoint owns the chat-platform specifics; the relay only hands over the
// note and its destination channel.
type WebhookMessenger struct {
	URL    string
	Client *http.Client
}

type webhookPayload struct {
	ChannelID string `json:"channelId"`
	Title     string `json:"title"`
	UserID    string `json:"userId"`
	Query     string `json:"query"`
	Response  string `json:"response"`
}

func (m *WebhookMessenger) Deliver(ctx context.Context, channelID string, note Note) error {
	payload := webhookPayload{
		ChannelID: channelID,
		Title:     note.Title,
		UserID:    note.UserID,
		Query:     note.Query,
		Response:  note.Response,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LogMessenger writes deliveries to the log. It stands in when no delivery
// endpoint is configured.
type LogMessenger struct{}

func (LogMessenger) Deliver(ctx context.Context, channelID string, note Note) error {
	logging.Info("deliver", "note delivered to log",
		"channel_id", channelID, "user_id", note.UserID, "response_len", len(note.Response))
	return nil
}
