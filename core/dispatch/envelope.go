package dispatch

import "time"

// Envelope is the work-queue message shape agreed with the worker side.
type Envelope struct {
	UserID      string    `json:"userId"`
	Query       string    `json:"query"`
	ChannelID   string    `json:"lastChannelId"`
	SubmittedAt time.Time `json:"submittedAt"`
}
