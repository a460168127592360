// Package store owns the canonical client-side state for the knowledge
// assistant: projects, documents, conversations, and messages. All mutation
// goes through named action methods; subscribers are notified synchronously
// after each mutation. The store is a cache of the backend, never the source
// of truth, for entity data.
package store

import (
	"context"
	"errors"

	"notelm/internal/api"
)

// Backend is the collaborator surface the store consumes. *api.Client
// satisfies it; tests inject fakes.
type Backend interface {
	CreateProject(ctx context.Context, name, description string) (api.Project, error)
	ListProjects(ctx context.Context) ([]api.Project, error)
	DeleteProject(ctx context.Context, id string) error

	ListDocuments(ctx context.Context, projectID string) ([]api.Document, error)
	UploadDocument(ctx context.Context, projectID, path string) (api.Document, error)
	AddDocumentByReference(ctx context.Context, projectID string, kind api.DocumentType, name, ref string) (api.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	CreateConversation(ctx context.Context, projectID, title string) (api.Conversation, error)
	ListConversations(ctx context.Context, projectID string) ([]api.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	ListMessages(ctx context.Context, conversationID string) ([]api.Message, error)

	Query(ctx context.Context, req api.QueryRequest) (api.QueryResponse, error)
	StreamQuery(ctx context.Context, req api.QueryRequest, onChunk api.ChunkHandler) error

	ExportConversation(ctx context.Context, id string, format api.ExportFormat) ([]byte, error)
	ExportProject(ctx context.Context, id string, format api.ExportFormat) ([]byte, error)
}

var (
	// ErrNoProject is returned by actions that need a current project.
	ErrNoProject = errors.New("no project selected")
	// ErrQueryInFlight rejects a second query for a conversation that already
	// has one running.
	ErrQueryInFlight = errors.New("a query is already in flight for this conversation")
	// ErrConversationMismatch rejects selecting a conversation owned by a
	// project other than the current one.
	ErrConversationMismatch = errors.New("conversation belongs to a different project")
)
