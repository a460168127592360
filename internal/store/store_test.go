package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/api"
)

const eventually = 5 * time.Second

func newTestStore(backend Backend) *Store {
	return New(Config{
		Backend:      backend,
		ProgressTick: time.Millisecond,
		RemovalDelay: 5 * time.Millisecond,
	})
}

func TestSelectProjectFetchesInBackground(t *testing.T) {
	backend := &fakeBackend{
		listDocumentsFn: func(_ context.Context, projectID string) ([]api.Document, error) {
			return []api.Document{{ID: "d1", ProjectID: projectID, Name: "doc.pdf", Status: api.StatusCompleted}}, nil
		},
		listConversationsFn: func(_ context.Context, projectID string) ([]api.Conversation, error) {
			return []api.Conversation{{ID: "c1", ProjectID: projectID, Title: "First"}}, nil
		},
	}
	s := newTestStore(backend)

	s.SelectProject(context.Background(), api.Project{ID: "p1", Name: "P1"})

	current, ok := s.CurrentProject()
	require.True(t, ok, "SelectProject must set the current project without waiting on fetches")
	assert.Equal(t, "p1", current.ID)

	require.Eventually(t, func() bool {
		return len(s.Documents()) == 1 && len(s.Conversations()) == 1
	}, eventually, time.Millisecond)
	assert.Equal(t, "d1", s.Documents()[0].ID)
	assert.Equal(t, "c1", s.Conversations()[0].ID)
}

func TestSelectProjectDropsStaleFetch(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		listDocumentsFn: func(_ context.Context, projectID string) ([]api.Document, error) {
			if projectID == "p1" {
				<-release // p1's fetch resolves after p2 was selected
				return []api.Document{{ID: "stale", ProjectID: "p1"}}, nil
			}
			return []api.Document{{ID: "fresh", ProjectID: "p2"}}, nil
		},
		listConversationsFn: func(_ context.Context, _ string) ([]api.Conversation, error) {
			return nil, nil
		},
	}
	s := newTestStore(backend)

	s.SelectProject(context.Background(), api.Project{ID: "p1"})
	s.SelectProject(context.Background(), api.Project{ID: "p2"})

	require.Eventually(t, func() bool {
		docs := s.Documents()
		return len(docs) == 1 && docs[0].ID == "fresh"
	}, eventually, time.Millisecond)

	close(release)
	// Give the stale result a chance to (incorrectly) land.
	time.Sleep(20 * time.Millisecond)
	docs := s.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "fresh", docs[0].ID, "a fetch for a no-longer-current project must be dropped")
}

func TestAtMostOneCurrentProject(t *testing.T) {
	backend := &fakeBackend{
		listDocumentsFn:     func(context.Context, string) ([]api.Document, error) { return nil, nil },
		listConversationsFn: func(context.Context, string) ([]api.Conversation, error) { return nil, nil },
	}
	s := newTestStore(backend)

	for _, id := range []string{"p1", "p2", "p3"} {
		s.SelectProject(context.Background(), api.Project{ID: id})
		current, ok := s.CurrentProject()
		require.True(t, ok)
		assert.Equal(t, id, current.ID)
	}
}

func TestCreateProjectIsNotOptimistic(t *testing.T) {
	boom := errors.New("backend down")
	backend := &fakeBackend{
		createProjectFn: func(context.Context, string, string) (api.Project, error) {
			return api.Project{}, boom
		},
	}
	s := newTestStore(backend)

	_, err := s.CreateProject(context.Background(), "P1", "")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, s.Projects(), "failed creation must leave state unchanged")

	backend.createProjectFn = func(context.Context, string, string) (api.Project, error) {
		return api.Project{ID: "p1", Name: "P1"}, nil
	}
	project, err := s.CreateProject(context.Background(), "P1", "")
	require.NoError(t, err)
	assert.Equal(t, "p1", project.ID)
	require.Len(t, s.Projects(), 1)
}

func TestDeleteCurrentProjectClearsSelection(t *testing.T) {
	backend := &fakeBackend{
		deleteProjectFn:     func(context.Context, string) error { return nil },
		listDocumentsFn:     func(context.Context, string) ([]api.Document, error) { return nil, nil },
		listConversationsFn: func(context.Context, string) ([]api.Conversation, error) { return nil, nil },
	}
	s := newTestStore(backend)
	s.SelectProject(context.Background(), api.Project{ID: "p1"})

	require.NoError(t, s.DeleteProject(context.Background(), "p1"))

	_, ok := s.CurrentProject()
	assert.False(t, ok, "deleting the current project clears the selection")
	_, ok = s.CurrentConversation()
	assert.False(t, ok)
	assert.Empty(t, s.Documents())
	assert.Empty(t, s.Messages())
}

func TestDeleteProjectFailureLeavesStateUntouched(t *testing.T) {
	boom := errors.New("forbidden")
	backend := &fakeBackend{
		createProjectFn: func(context.Context, string, string) (api.Project, error) {
			return api.Project{ID: "p1"}, nil
		},
		deleteProjectFn: func(context.Context, string) error { return boom },
	}
	s := newTestStore(backend)
	_, err := s.CreateProject(context.Background(), "P1", "")
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteProject(context.Background(), "p1"), boom)
	assert.Len(t, s.Projects(), 1)
}

func TestSelectConversationAwaitsMessages(t *testing.T) {
	backend := &fakeBackend{
		listDocumentsFn:     func(context.Context, string) ([]api.Document, error) { return nil, nil },
		listConversationsFn: func(context.Context, string) ([]api.Conversation, error) { return nil, nil },
		listMessagesFn: func(_ context.Context, conversationID string) ([]api.Message, error) {
			return []api.Message{
				{ID: "m1", ConversationID: conversationID, Role: api.RoleUser, Content: "hi"},
			}, nil
		},
	}
	s := newTestStore(backend)
	s.SelectProject(context.Background(), api.Project{ID: "p1"})

	err := s.SelectConversation(context.Background(), api.Conversation{ID: "c1", ProjectID: "p1"})
	require.NoError(t, err)

	messages := s.Messages()
	require.Len(t, messages, 1, "messages must be populated before SelectConversation returns")
	assert.Equal(t, "hi", messages[0].Content)
	assert.False(t, messages[0].ID.IsLocal())
}

func TestSelectConversationRejectsForeignProject(t *testing.T) {
	backend := &fakeBackend{
		listDocumentsFn:     func(context.Context, string) ([]api.Document, error) { return nil, nil },
		listConversationsFn: func(context.Context, string) ([]api.Conversation, error) { return nil, nil },
	}
	s := newTestStore(backend)

	err := s.SelectConversation(context.Background(), api.Conversation{ID: "c1", ProjectID: "p1"})
	require.ErrorIs(t, err, ErrNoProject)

	s.SelectProject(context.Background(), api.Project{ID: "p1"})
	err = s.SelectConversation(context.Background(), api.Conversation{ID: "c9", ProjectID: "other"})
	require.ErrorIs(t, err, ErrConversationMismatch)
	_, ok := s.CurrentConversation()
	assert.False(t, ok)
}

func TestLoadingFlagsResetOnFailure(t *testing.T) {
	boom := errors.New("timeout")
	backend := &fakeBackend{
		listProjectsFn:      func(context.Context) ([]api.Project, error) { return nil, boom },
		listDocumentsFn:     func(context.Context, string) ([]api.Document, error) { return nil, boom },
		listConversationsFn: func(context.Context, string) ([]api.Conversation, error) { return nil, boom },
		listMessagesFn:      func(context.Context, string) ([]api.Message, error) { return nil, boom },
	}
	s := newTestStore(backend)

	require.Error(t, s.FetchProjects(context.Background()))
	require.Error(t, s.FetchDocuments(context.Background(), "p1"))
	require.Error(t, s.FetchConversations(context.Background(), "p1"))
	require.Error(t, s.FetchMessages(context.Background(), "c1"))

	flags := s.Loading()
	assert.Equal(t, Flags{}, flags, "loading flags must never stay true after failure")
}

func TestUploadRoundTripListsDocumentOnce(t *testing.T) {
	uploaded := api.Document{ID: "d1", ProjectID: "p1", Name: "doc.pdf", Type: api.DocumentPDF, Status: api.StatusPending}
	var mu sync.Mutex
	var serverDocs []api.Document
	backend := &fakeBackend{
		listDocumentsFn: func(context.Context, string) ([]api.Document, error) {
			mu.Lock()
			defer mu.Unlock()
			return append([]api.Document(nil), serverDocs...), nil
		},
		listConversationsFn: func(context.Context, string) ([]api.Conversation, error) { return nil, nil },
		uploadDocumentFn: func(context.Context, string, string) (api.Document, error) {
			mu.Lock()
			defer mu.Unlock()
			serverDocs = append(serverDocs, uploaded)
			return uploaded, nil
		},
	}
	s := newTestStore(backend)
	s.SelectProject(context.Background(), api.Project{ID: "p1"})

	// The upload appends the confirmed record; the refetch must not
	// duplicate it.
	_, err := s.UploadDocument(context.Background(), "p1", "/tmp/doc.pdf")
	require.NoError(t, err)
	require.NoError(t, s.FetchDocuments(context.Background(), "p1"))

	count := 0
	for _, d := range s.Documents() {
		if d.ID == "d1" {
			count++
		}
	}
	assert.Equal(t, 1, count, "uploaded document must appear exactly once after refetch")
}

func TestApplyDocumentStatusTransitions(t *testing.T) {
	backend := &fakeBackend{
		listDocumentsFn: func(context.Context, string) ([]api.Document, error) {
			return []api.Document{{ID: "d1", ProjectID: "p1", Name: "doc.pdf", Status: api.StatusPending}}, nil
		},
		listConversationsFn: func(context.Context, string) ([]api.Conversation, error) { return nil, nil },
	}
	s := newTestStore(backend)
	s.SelectProject(context.Background(), api.Project{ID: "p1"})
	require.Eventually(t, func() bool { return len(s.Documents()) == 1 }, eventually, time.Millisecond)

	s.ApplyDocumentStatus("doc.pdf", api.StatusProcessing, "")
	assert.Equal(t, api.StatusProcessing, s.Documents()[0].Status)

	s.ApplyDocumentStatus("doc.pdf", api.StatusFailed, "parse error")
	assert.Equal(t, api.StatusFailed, s.Documents()[0].Status)
	assert.Equal(t, "parse error", s.Documents()[0].Error)

	// Unknown names are ignored, not an error.
	s.ApplyDocumentStatus("ghost.pdf", api.StatusCompleted, "")
}

func TestSubscribeNotifiesAndUnsubscribes(t *testing.T) {
	backend := &fakeBackend{
		createProjectFn: func(context.Context, string, string) (api.Project, error) {
			return api.Project{ID: "p1"}, nil
		},
	}
	s := newTestStore(backend)

	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })
	_, err := s.CreateProject(context.Background(), "P1", "")
	require.NoError(t, err)
	assert.Positive(t, calls, "subscriber must fire on mutation")

	seen := calls
	unsubscribe()
	unsubscribe() // second call is a no-op
	_, err = s.CreateProject(context.Background(), "P2", "")
	require.NoError(t, err)
	assert.Equal(t, seen, calls, "unsubscribed callbacks must not fire")
}

func TestDeleteConversationClearsCurrent(t *testing.T) {
	backend := &fakeBackend{
		listDocumentsFn:      func(context.Context, string) ([]api.Document, error) { return nil, nil },
		listConversationsFn:  func(context.Context, string) ([]api.Conversation, error) { return nil, nil },
		listMessagesFn:       func(context.Context, string) ([]api.Message, error) { return nil, nil },
		deleteConversationFn: func(context.Context, string) error { return nil },
	}
	s := newTestStore(backend)
	s.SelectProject(context.Background(), api.Project{ID: "p1"})
	require.NoError(t, s.SelectConversation(context.Background(), api.Conversation{ID: "c1", ProjectID: "p1"}))

	require.NoError(t, s.DeleteConversation(context.Background(), "c1"))
	_, ok := s.CurrentConversation()
	assert.False(t, ok)
	assert.Empty(t, s.Messages())
}

func TestExportConversationPassesThrough(t *testing.T) {
	backend := &fakeBackend{
		exportFn: func(_ context.Context, id string, format api.ExportFormat) ([]byte, error) {
			assert.Equal(t, "c1", id)
			assert.Equal(t, api.ExportJSON, format)
			return []byte(`{"messages":[]}`), nil
		},
	}
	s := newTestStore(backend)

	data, err := s.ExportConversation(context.Background(), "c1", api.ExportJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages":[]}`, string(data))
}

func TestExportProjectPassesThrough(t *testing.T) {
	backend := &fakeBackend{
		exportProjectFn: func(_ context.Context, id string, format api.ExportFormat) ([]byte, error) {
			assert.Equal(t, "p1", id)
			assert.Equal(t, api.ExportMarkdown, format)
			return []byte("# Project\n"), nil
		},
	}
	s := newTestStore(backend)

	data, err := s.ExportProject(context.Background(), "p1", api.ExportMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "# Project\n", string(data))
}
