// Package push consumes the backend's server-initiated event channel and
// fans events out to registered handlers. It performs no state mutation of
// its own; everything here is dispatch.
package push

import "encoding/json"

// EventType names a family of server-pushed events.
type EventType string

const (
	// EventNotification carries transient UI notices.
	EventNotification EventType = "notification"
	// EventProcessingStatus reports terminal document-ingestion outcomes.
	EventProcessingStatus EventType = "processing:status"
)

// Event is one decoded frame off the push channel. Data holds the raw JSON
// payload; use the typed accessors to interpret it.
type Event struct {
	Type EventType
	Data json.RawMessage
}

// NotificationKind classifies a transient notice.
type NotificationKind string

const (
	NoticeSuccess NotificationKind = "success"
	NoticeError   NotificationKind = "error"
	NoticeInfo    NotificationKind = "info"
)

// Notification is the payload of an EventNotification frame.
type Notification struct {
	Kind    NotificationKind `json:"type"`
	Title   string           `json:"title,omitempty"`
	Message string           `json:"message"`
}

// ProcessingStatus is the payload of an EventProcessingStatus frame.
type ProcessingStatus struct {
	Status       string `json:"status"` // completed, failed
	DocumentName string `json:"document_name"`
	Error        string `json:"error,omitempty"`
}

const (
	// ProcessingCompleted and ProcessingFailed are the terminal statuses the
	// backend reports for ingestion work.
	ProcessingCompleted = "completed"
	ProcessingFailed    = "failed"
)

// Notification decodes the event payload as a Notification.
func (e Event) Notification() (Notification, error) {
	var n Notification
	err := json.Unmarshal(e.Data, &n)
	return n, err
}

// ProcessingStatus decodes the event payload as a ProcessingStatus.
func (e Event) ProcessingStatus() (ProcessingStatus, error) {
	var s ProcessingStatus
	err := json.Unmarshal(e.Data, &s)
	return s, err
}
