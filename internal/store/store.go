package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"notelm/internal/api"
)

const (
	defaultProgressTick = 200 * time.Millisecond
	defaultProgressStep = 10
	defaultRemovalDelay = time.Second
	progressHold        = 90
)

// Config wires a Store. Only Backend is required; the progress knobs exist so
// tests can run the upload tracker fast.
type Config struct {
	Backend      Backend
	ProgressTick time.Duration
	ProgressStep int
	RemovalDelay time.Duration
}

// Store is the single source of truth for client state. Construct independent
// instances freely; nothing here is package-global.
type Store struct {
	backend Backend

	mu                  sync.Mutex
	projects            []api.Project
	currentProject      *api.Project
	documents           []api.Document
	conversations       []api.Conversation
	currentConversation *api.Conversation
	messages            []Message
	uploads             map[string]*UploadTask
	inflight            map[string]struct{}
	lastQueryError      string

	loadingProjects      bool
	loadingDocuments     bool
	loadingConversations bool
	loadingMessages      bool

	subMu       sync.Mutex
	subscribers map[string]func()

	progressTick time.Duration
	progressStep int
	removalDelay time.Duration
}

// New returns a Store bound to the given backend.
func New(cfg Config) *Store {
	s := &Store{
		backend:      cfg.Backend,
		uploads:      map[string]*UploadTask{},
		inflight:     map[string]struct{}{},
		subscribers:  map[string]func(){},
		progressTick: cfg.ProgressTick,
		progressStep: cfg.ProgressStep,
		removalDelay: cfg.RemovalDelay,
	}
	if s.progressTick <= 0 {
		s.progressTick = defaultProgressTick
	}
	if s.progressStep <= 0 {
		s.progressStep = defaultProgressStep
	}
	if s.removalDelay <= 0 {
		s.removalDelay = defaultRemovalDelay
	}
	return s
}

// Subscribe registers a callback invoked synchronously after every mutation.
// The returned func unsubscribes; calling it twice is harmless.
func (s *Store) Subscribe(fn func()) func() {
	id := uuid.NewString()
	s.subMu.Lock()
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// mutate runs fn under the state lock, then notifies subscribers. Every state
// write in this package goes through here, which is what makes mutations
// atomic with respect to observers.
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	s.subMu.Lock()
	callbacks := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		callbacks = append(callbacks, fn)
	}
	s.subMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Flags reports which fetches are outstanding.
type Flags struct {
	Projects      bool
	Documents     bool
	Conversations bool
	Messages      bool
}

// Loading returns the current loading flags.
func (s *Store) Loading() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Flags{
		Projects:      s.loadingProjects,
		Documents:     s.loadingDocuments,
		Conversations: s.loadingConversations,
		Messages:      s.loadingMessages,
	}
}

// Projects returns a copy of the known projects.
func (s *Store) Projects() []api.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Project(nil), s.projects...)
}

// CurrentProject reports the selected project, if any.
func (s *Store) CurrentProject() (api.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentProject == nil {
		return api.Project{}, false
	}
	return *s.currentProject, true
}

// Documents returns a copy of the current project's documents.
func (s *Store) Documents() []api.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Document(nil), s.documents...)
}

// Conversations returns a copy of the current project's conversations.
func (s *Store) Conversations() []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Conversation(nil), s.conversations...)
}

// CurrentConversation reports the selected conversation, if any.
func (s *Store) CurrentConversation() (api.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentConversation == nil {
		return api.Conversation{}, false
	}
	return *s.currentConversation, true
}

// Messages returns a copy of the current conversation's transcript.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// LastQueryError reports the most recent query failure, empty when the last
// query succeeded. A failed stream keeps its partial placeholder visible;
// this is the explicit marker a UI can render next to it.
func (s *Store) LastQueryError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQueryError
}

// FetchProjects refreshes the project list from the backend.
func (s *Store) FetchProjects(ctx context.Context) error {
	s.mutate(func() { s.loadingProjects = true })
	projects, err := s.backend.ListProjects(ctx)
	if err != nil {
		s.mutate(func() { s.loadingProjects = false })
		return fmt.Errorf("fetch projects: %w", err)
	}
	s.mutate(func() {
		s.loadingProjects = false
		s.projects = projects
	})
	return nil
}

// SelectProject makes p the current project and kicks off background fetches
// for its documents and conversations. It does not wait for them.
func (s *Store) SelectProject(ctx context.Context, p api.Project) {
	s.mutate(func() {
		selected := p
		s.currentProject = &selected
		s.currentConversation = nil
		s.documents = nil
		s.conversations = nil
		s.messages = nil
	})
	go func() {
		if err := s.FetchDocuments(ctx, p.ID); err != nil {
			log.Printf("[store] background document fetch: %v", err)
		}
	}()
	go func() {
		if err := s.FetchConversations(ctx, p.ID); err != nil {
			log.Printf("[store] background conversation fetch: %v", err)
		}
	}()
}

// CreateProject registers a project. Not optimistic: the local list changes
// only after the backend confirms.
func (s *Store) CreateProject(ctx context.Context, name, description string) (api.Project, error) {
	project, err := s.backend.CreateProject(ctx, name, description)
	if err != nil {
		return api.Project{}, err
	}
	s.mutate(func() { s.projects = append(s.projects, project) })
	return project, nil
}

// DeleteProject removes a project after backend confirmation. Deleting the
// current project clears the selection and everything hanging off it.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if err := s.backend.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.mutate(func() {
		for i, p := range s.projects {
			if p.ID == id {
				s.projects = append(s.projects[:i:i], s.projects[i+1:]...)
				break
			}
		}
		if s.currentProject != nil && s.currentProject.ID == id {
			s.currentProject = nil
			s.currentConversation = nil
			s.documents = nil
			s.conversations = nil
			s.messages = nil
		}
	})
	return nil
}

// FetchDocuments refreshes the document list for a project. Results arriving
// after the current project changed are dropped.
func (s *Store) FetchDocuments(ctx context.Context, projectID string) error {
	s.mutate(func() { s.loadingDocuments = true })
	documents, err := s.backend.ListDocuments(ctx, projectID)
	if err != nil {
		s.mutate(func() { s.loadingDocuments = false })
		return fmt.Errorf("fetch documents: %w", err)
	}
	s.mutate(func() {
		s.loadingDocuments = false
		if s.currentProject == nil || s.currentProject.ID != projectID {
			return
		}
		s.documents = documents
	})
	return nil
}

// FetchConversations refreshes the conversation list for a project, with the
// same stale-result guard as FetchDocuments.
func (s *Store) FetchConversations(ctx context.Context, projectID string) error {
	s.mutate(func() { s.loadingConversations = true })
	conversations, err := s.backend.ListConversations(ctx, projectID)
	if err != nil {
		s.mutate(func() { s.loadingConversations = false })
		return fmt.Errorf("fetch conversations: %w", err)
	}
	s.mutate(func() {
		s.loadingConversations = false
		if s.currentProject == nil || s.currentProject.ID != projectID {
			return
		}
		s.conversations = conversations
	})
	return nil
}

// SelectConversation makes c current and loads its transcript before
// returning, so callers can rely on Messages() reflecting c.
func (s *Store) SelectConversation(ctx context.Context, c api.Conversation) error {
	s.mu.Lock()
	if s.currentProject == nil {
		s.mu.Unlock()
		return ErrNoProject
	}
	if c.ProjectID != s.currentProject.ID {
		s.mu.Unlock()
		return ErrConversationMismatch
	}
	selected := c
	s.currentConversation = &selected
	s.messages = nil
	s.mu.Unlock()
	s.notify()
	return s.FetchMessages(ctx, c.ID)
}

// CreateConversation opens a conversation in the current project. Not
// optimistic.
func (s *Store) CreateConversation(ctx context.Context, title string) (api.Conversation, error) {
	project, ok := s.CurrentProject()
	if !ok {
		return api.Conversation{}, ErrNoProject
	}
	conversation, err := s.backend.CreateConversation(ctx, project.ID, title)
	if err != nil {
		return api.Conversation{}, err
	}
	s.mutate(func() {
		if s.currentProject != nil && s.currentProject.ID == project.ID {
			s.conversations = append(s.conversations, conversation)
		}
	})
	return conversation, nil
}

// DeleteConversation removes a conversation after backend confirmation,
// clearing the selection if it was current.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.backend.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.mutate(func() {
		for i, c := range s.conversations {
			if c.ID == id {
				s.conversations = append(s.conversations[:i:i], s.conversations[i+1:]...)
				break
			}
		}
		if s.currentConversation != nil && s.currentConversation.ID == id {
			s.currentConversation = nil
			s.messages = nil
		}
	})
	return nil
}

// FetchMessages refreshes the transcript of a conversation. Results for a
// conversation that is no longer current are dropped.
func (s *Store) FetchMessages(ctx context.Context, conversationID string) error {
	s.mutate(func() { s.loadingMessages = true })
	fetched, err := s.backend.ListMessages(ctx, conversationID)
	if err != nil {
		s.mutate(func() { s.loadingMessages = false })
		return fmt.Errorf("fetch messages: %w", err)
	}
	s.mutate(func() {
		s.loadingMessages = false
		if s.currentConversation == nil || s.currentConversation.ID != conversationID {
			return
		}
		s.messages = confirmedMessages(fetched)
	})
	return nil
}

// AddDocumentByReference registers a url, youtube, or text document in a
// project and appends the backend record if that project is still current.
func (s *Store) AddDocumentByReference(ctx context.Context, projectID string, kind api.DocumentType, name, ref string) (api.Document, error) {
	document, err := s.backend.AddDocumentByReference(ctx, projectID, kind, name, ref)
	if err != nil {
		return api.Document{}, err
	}
	s.appendDocument(projectID, document)
	return document, nil
}

// DeleteDocument removes a document after backend confirmation.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if err := s.backend.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.mutate(func() {
		for i, d := range s.documents {
			if d.ID == id {
				s.documents = append(s.documents[:i:i], s.documents[i+1:]...)
				break
			}
		}
	})
	return nil
}

// ApplyDocumentStatus records a server-pushed ingestion status transition.
// The push channel reports documents by name; unknown names are ignored.
func (s *Store) ApplyDocumentStatus(documentName string, status api.DocumentStatus, errorMessage string) {
	s.mutate(func() {
		for i := range s.documents {
			if s.documents[i].Name == documentName {
				s.documents[i].Status = status
				s.documents[i].Error = errorMessage
			}
		}
	})
}

// ExportConversation fetches the conversation serialized in the given format.
// Pure pass-through; the store mutates nothing.
func (s *Store) ExportConversation(ctx context.Context, id string, format api.ExportFormat) ([]byte, error) {
	return s.backend.ExportConversation(ctx, id, format)
}

// ExportProject fetches the whole project serialized in the given format.
// Pure pass-through; the store mutates nothing.
func (s *Store) ExportProject(ctx context.Context, id string, format api.ExportFormat) ([]byte, error) {
	return s.backend.ExportProject(ctx, id, format)
}

func (s *Store) appendDocument(projectID string, document api.Document) {
	s.mutate(func() {
		if s.currentProject == nil || s.currentProject.ID != projectID {
			return
		}
		s.documents = append(s.documents, document)
	})
}
