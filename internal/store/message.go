package store

import (
	"fmt"
	"time"

	"notelm/internal/api"
)

// MessageID distinguishes locally authored provisional messages from ones
// confirmed by the backend. Exactly one of the two variants is set;
// reconciliation replaces Local ids with Confirmed ones wholesale.
type MessageID struct {
	local  string
	server string
}

// LocalMessageID derives a provisional id from the creation time. It is only
// unique within one client instance, which is all a provisional id needs.
func LocalMessageID(at time.Time) MessageID {
	return MessageID{local: fmt.Sprintf("local-%d", at.UnixNano())}
}

// ConfirmedMessageID wraps a server-assigned id.
func ConfirmedMessageID(id string) MessageID {
	return MessageID{server: id}
}

// IsLocal reports whether the message has not yet been confirmed.
func (id MessageID) IsLocal() bool {
	return id.server == ""
}

// Server returns the backend id, if confirmed.
func (id MessageID) Server() (string, bool) {
	return id.server, id.server != ""
}

func (id MessageID) String() string {
	if id.server != "" {
		return id.server
	}
	return id.local
}

// Message is one transcript entry as the client sees it. Optimistic entries
// carry Local ids until the post-exchange refetch supersedes them.
type Message struct {
	ID             MessageID
	ConversationID string
	Role           api.Role
	Content        string
	CreatedAt      time.Time
	Citations      []api.Citation
}

func confirmedMessage(m api.Message) Message {
	return Message{
		ID:             ConfirmedMessageID(m.ID),
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		Citations:      append([]api.Citation(nil), m.Citations...),
	}
}

func confirmedMessages(in []api.Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		out = append(out, confirmedMessage(m))
	}
	return out
}
