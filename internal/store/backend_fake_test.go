package store

import (
	"context"
	"errors"

	"notelm/internal/api"
)

// fakeBackend implements Backend with overridable function fields. Methods
// without an override fail loudly so tests only exercise what they wire.
type fakeBackend struct {
	// store lets hooks inspect client state mid-call, e.g. between the last
	// stream chunk and reconciliation.
	store *Store

	createProjectFn      func(ctx context.Context, name, description string) (api.Project, error)
	listProjectsFn       func(ctx context.Context) ([]api.Project, error)
	deleteProjectFn      func(ctx context.Context, id string) error
	listDocumentsFn      func(ctx context.Context, projectID string) ([]api.Document, error)
	uploadDocumentFn     func(ctx context.Context, projectID, path string) (api.Document, error)
	addByReferenceFn     func(ctx context.Context, projectID string, kind api.DocumentType, name, ref string) (api.Document, error)
	deleteDocumentFn     func(ctx context.Context, id string) error
	createConversationFn func(ctx context.Context, projectID, title string) (api.Conversation, error)
	listConversationsFn  func(ctx context.Context, projectID string) ([]api.Conversation, error)
	deleteConversationFn func(ctx context.Context, id string) error
	listMessagesFn       func(ctx context.Context, conversationID string) ([]api.Message, error)
	queryFn              func(ctx context.Context, req api.QueryRequest) (api.QueryResponse, error)
	streamQueryFn        func(ctx context.Context, req api.QueryRequest, onChunk api.ChunkHandler) error
	exportFn             func(ctx context.Context, id string, format api.ExportFormat) ([]byte, error)
	exportProjectFn      func(ctx context.Context, id string, format api.ExportFormat) ([]byte, error)
}

var errNotWired = errors.New("fake backend: method not wired")

func (f *fakeBackend) CreateProject(ctx context.Context, name, description string) (api.Project, error) {
	if f.createProjectFn == nil {
		return api.Project{}, errNotWired
	}
	return f.createProjectFn(ctx, name, description)
}

func (f *fakeBackend) ListProjects(ctx context.Context) ([]api.Project, error) {
	if f.listProjectsFn == nil {
		return nil, errNotWired
	}
	return f.listProjectsFn(ctx)
}

func (f *fakeBackend) DeleteProject(ctx context.Context, id string) error {
	if f.deleteProjectFn == nil {
		return errNotWired
	}
	return f.deleteProjectFn(ctx, id)
}

func (f *fakeBackend) ListDocuments(ctx context.Context, projectID string) ([]api.Document, error) {
	if f.listDocumentsFn == nil {
		return nil, errNotWired
	}
	return f.listDocumentsFn(ctx, projectID)
}

func (f *fakeBackend) UploadDocument(ctx context.Context, projectID, path string) (api.Document, error) {
	if f.uploadDocumentFn == nil {
		return api.Document{}, errNotWired
	}
	return f.uploadDocumentFn(ctx, projectID, path)
}

func (f *fakeBackend) AddDocumentByReference(ctx context.Context, projectID string, kind api.DocumentType, name, ref string) (api.Document, error) {
	if f.addByReferenceFn == nil {
		return api.Document{}, errNotWired
	}
	return f.addByReferenceFn(ctx, projectID, kind, name, ref)
}

func (f *fakeBackend) DeleteDocument(ctx context.Context, id string) error {
	if f.deleteDocumentFn == nil {
		return errNotWired
	}
	return f.deleteDocumentFn(ctx, id)
}

func (f *fakeBackend) CreateConversation(ctx context.Context, projectID, title string) (api.Conversation, error) {
	if f.createConversationFn == nil {
		return api.Conversation{}, errNotWired
	}
	return f.createConversationFn(ctx, projectID, title)
}

func (f *fakeBackend) ListConversations(ctx context.Context, projectID string) ([]api.Conversation, error) {
	if f.listConversationsFn == nil {
		return nil, errNotWired
	}
	return f.listConversationsFn(ctx, projectID)
}

func (f *fakeBackend) DeleteConversation(ctx context.Context, id string) error {
	if f.deleteConversationFn == nil {
		return errNotWired
	}
	return f.deleteConversationFn(ctx, id)
}

func (f *fakeBackend) ListMessages(ctx context.Context, conversationID string) ([]api.Message, error) {
	if f.listMessagesFn == nil {
		return nil, errNotWired
	}
	return f.listMessagesFn(ctx, conversationID)
}

func (f *fakeBackend) Query(ctx context.Context, req api.QueryRequest) (api.QueryResponse, error) {
	if f.queryFn == nil {
		return api.QueryResponse{}, errNotWired
	}
	return f.queryFn(ctx, req)
}

func (f *fakeBackend) StreamQuery(ctx context.Context, req api.QueryRequest, onChunk api.ChunkHandler) error {
	if f.streamQueryFn == nil {
		return errNotWired
	}
	return f.streamQueryFn(ctx, req, onChunk)
}

func (f *fakeBackend) ExportConversation(ctx context.Context, id string, format api.ExportFormat) ([]byte, error) {
	if f.exportFn == nil {
		return nil, errNotWired
	}
	return f.exportFn(ctx, id, format)
}

func (f *fakeBackend) ExportProject(ctx context.Context, id string, format api.ExportFormat) ([]byte, error) {
	if f.exportProjectFn == nil {
		return nil, errNotWired
	}
	return f.exportProjectFn(ctx, id, format)
}
