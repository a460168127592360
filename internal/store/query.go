package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notelm/internal/api"
)

const conversationTitleLimit = 50

// SendQuery submits a question against the current project, creating a
// conversation first when none is selected. With streaming enabled the
// answer renders incrementally through an optimistic placeholder; either way
// the transcript is reconciled against the backend's durable record once the
// exchange completes. A failed exchange keeps its optimistic messages
// visible (no rollback, no refetch) and records the error in
// LastQueryError.
//
// Only one query may be in flight per conversation; a concurrent call
// returns ErrQueryInFlight.
func (s *Store) SendQuery(ctx context.Context, query string, streaming bool) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("send query: empty query")
	}

	s.mu.Lock()
	if s.currentProject == nil {
		s.mu.Unlock()
		return ErrNoProject
	}
	projectID := s.currentProject.ID
	var conversation *api.Conversation
	if s.currentConversation != nil {
		existing := *s.currentConversation
		conversation = &existing
	}
	s.mu.Unlock()

	if conversation == nil {
		created, err := s.backend.CreateConversation(ctx, projectID, conversationTitle(query))
		if err != nil {
			return fmt.Errorf("send query: create conversation: %w", err)
		}
		conversation = &created
		stale := false
		s.mutate(func() {
			if s.currentProject == nil || s.currentProject.ID != projectID {
				stale = true
				return
			}
			s.conversations = append(s.conversations, created)
			current := created
			s.currentConversation = &current
			s.messages = nil
		})
		if stale {
			return fmt.Errorf("send query: project changed while creating conversation")
		}
	}

	if err := s.acquireConversation(conversation.ID); err != nil {
		return err
	}
	defer s.releaseConversation(conversation.ID)

	req := api.QueryRequest{
		ProjectID:      projectID,
		Query:          query,
		ConversationID: conversation.ID,
	}
	if streaming {
		return s.sendStreaming(ctx, req)
	}
	return s.sendBlocking(ctx, req)
}

func (s *Store) sendStreaming(ctx context.Context, req api.QueryRequest) error {
	now := time.Now()
	userID := LocalMessageID(now)
	placeholderID := LocalMessageID(now.Add(time.Nanosecond))
	s.mutate(func() {
		s.lastQueryError = ""
		s.messages = append(s.messages,
			Message{ID: userID, ConversationID: req.ConversationID, Role: api.RoleUser, Content: req.Query, CreatedAt: now},
			Message{ID: placeholderID, ConversationID: req.ConversationID, Role: api.RoleAssistant, CreatedAt: now},
		)
	})

	// Chunks arrive strictly in order on one goroutine; the accumulator's
	// current value overwrites the placeholder on every chunk.
	var accumulator strings.Builder
	err := s.backend.StreamQuery(ctx, req, func(content string) error {
		accumulator.WriteString(content)
		rendered := accumulator.String()
		s.mutate(func() {
			for i := range s.messages {
				if s.messages[i].ID == placeholderID {
					s.messages[i].Content = rendered
					return
				}
			}
		})
		return nil
	})
	if err != nil {
		// Deliberate: already-rendered content stays visible rather than
		// flickering away, even though the backend may never have recorded it.
		s.mutate(func() { s.lastQueryError = err.Error() })
		return fmt.Errorf("send query: %w", err)
	}
	return s.reconcile(ctx, req.ConversationID)
}

func (s *Store) sendBlocking(ctx context.Context, req api.QueryRequest) error {
	now := time.Now()
	s.mutate(func() {
		s.lastQueryError = ""
		s.messages = append(s.messages, Message{
			ID:             LocalMessageID(now),
			ConversationID: req.ConversationID,
			Role:           api.RoleUser,
			Content:        req.Query,
			CreatedAt:      now,
		})
	})

	resp, err := s.backend.Query(ctx, req)
	if err != nil {
		s.mutate(func() { s.lastQueryError = err.Error() })
		return fmt.Errorf("send query: %w", err)
	}
	s.mutate(func() {
		s.messages = append(s.messages, Message{
			ID:             LocalMessageID(time.Now()),
			ConversationID: req.ConversationID,
			Role:           api.RoleAssistant,
			Content:        resp.Answer,
			CreatedAt:      time.Now(),
			Citations:      append([]api.Citation(nil), resp.Citations...),
		})
	})
	return s.reconcile(ctx, req.ConversationID)
}

// reconcile replaces the optimistic transcript with the backend's durable
// record. This is how Local ids become Confirmed ids and how server-side
// citation metadata becomes visible.
func (s *Store) reconcile(ctx context.Context, conversationID string) error {
	if err := s.FetchMessages(ctx, conversationID); err != nil {
		return fmt.Errorf("send query: reconcile: %w", err)
	}
	return nil
}

func (s *Store) acquireConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return ErrQueryInFlight
	}
	s.inflight[id] = struct{}{}
	return nil
}

func (s *Store) releaseConversation(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// conversationTitle derives a title from the leading characters of the query.
func conversationTitle(query string) string {
	runes := []rune(strings.TrimSpace(query))
	if len(runes) <= conversationTitleLimit {
		return string(runes)
	}
	return string(runes[:conversationTitleLimit])
}
