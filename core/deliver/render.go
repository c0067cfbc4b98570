package deliver

import (
	"strings"

	"github.com/CardSorting/hana-relay/core/correlation"
)

const (
	noteTitle       = "Hana Chats"
	missingQuery    = "No query provided"
	missingResponse = "No response provided"
)

// Note is the rendered reply artifact handed to the Messenger. How it is
// presented (embed, plain text, attachment) is the Messenger's concern.
type Note struct {
	Title    string
	UserID   string
	Query    string
	Response string
}

func renderNote(entry correlation.Entry, result ResultEnvelope) Note {
	query := strings.TrimSpace(entry.Query)
	if query == "" {
		query = missingQuery
	}
	response := strings.TrimSpace(result.Response)
	if response == "" {
		response = missingResponse
	}
	return Note{
		Title:    noteTitle,
		UserID:   result.UserID,
		Query:    query,
		Response: response,
	}
}
