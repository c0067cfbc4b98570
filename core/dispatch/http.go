package dispatch

import (
	"encoding/json"
	"io"
	"net/http"
)

const maxSubmitBody = 64 << 10

type submitBody struct {
	UserID     string `json:"userId"`
	Query      string `json:"query"`
	ChannelID  string `json:"channelId"`
	OriginType string `json:"originType,omitempty"`
	GuildID    string `json:"guildId,omitempty"`
}

type submitResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// SubmitHandler exposes the dispatcher over HTTP. Rejections come back as 200
// with accepted=false; only transport-level problems produce error statuses.
func SubmitHandler(d *Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body submitBody
		if err := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBody)).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		receipt := d.Submit(r.Context(), SubmitRequest{
			UserID:     body.UserID,
			Query:      body.Query,
			ChannelID:  body.ChannelID,
			OriginType: body.OriginType,
			GuildID:    body.GuildID,
		})

		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		if receipt.Accepted {
			status = http.StatusAccepted
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(submitResponse{
			Accepted: receipt.Accepted,
			Reason:   receipt.Reason,
		})
	})
}
