package api

import "time"

// DocumentType identifies how a document entered the project.
type DocumentType string

const (
	DocumentPDF     DocumentType = "pdf"
	DocumentURL     DocumentType = "url"
	DocumentYouTube DocumentType = "youtube"
	DocumentText    DocumentType = "text"
)

// DocumentStatus tracks ingestion progress on the backend.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Role distinguishes who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Project groups documents and conversations on the backend.
type Project struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	DocumentCount     int       `json:"document_count"`
	ConversationCount int       `json:"conversation_count"`
}

// Document is a single ingested source owned by exactly one project.
type Document struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name"`
	Type      DocumentType   `json:"type"`
	Content   string         `json:"content,omitempty"`
	URL       string         `json:"url,omitempty"`
	Status    DocumentStatus `json:"status"`
	Error     string         `json:"error_message,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Conversation is a thread of messages inside a project.
type Conversation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Citation points back into the source material an answer drew from.
type Citation struct {
	DocID   string `json:"doc_id"`
	ChunkID string `json:"chunk_id,omitempty"`
	Page    int    `json:"page_num,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"text_snippet,omitempty"`
}

// Message is the backend's durable record of one transcript entry.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	Citations      []Citation `json:"citations,omitempty"`
}

// QueryRequest carries a question against a project's documents.
type QueryRequest struct {
	ProjectID      string `json:"project_id"`
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

// QueryResponse is the blocking answer to a QueryRequest.
type QueryResponse struct {
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
}

// StreamChunk is one newline-delimited frame of a streaming answer.
type StreamChunk struct {
	Type    string `json:"type"` // content, done, error
	Content string `json:"content,omitempty"`
}

const (
	chunkTypeContent = "content"
	chunkTypeDone    = "done"
	chunkTypeError   = "error"
)

// ExportFormat selects the serialization of an exported conversation or
// project.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportText     ExportFormat = "txt"
)

// Valid reports whether the format is one the backend understands.
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportJSON, ExportMarkdown, ExportText:
		return true
	}
	return false
}

// ValidForProject reports whether the format is accepted for whole-project
// exports; the backend renders those as json or markdown only.
func (f ExportFormat) ValidForProject() bool {
	return f == ExportJSON || f == ExportMarkdown
}
