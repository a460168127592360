package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"notelm/internal/api"
	"notelm/internal/push"
	"notelm/internal/store"
)

const (
	actionTimeout = 35 * time.Second
	queryTimeout  = 3 * time.Minute
)

// waitForStoreCmd blocks until the store reports a mutation. The update loop
// re-arms it after every storeChangedMsg.
func waitForStoreCmd(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

// waitForPushCmd blocks until the push router delivers an event.
func waitForPushCmd(events <-chan push.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return pushEventMsg{event: event}
	}
}

func fetchProjectsCmd(s *store.Store) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return projectsResultMsg{err: s.FetchProjects(ctx)}
	}
}

func createProjectCmd(s *store.Store, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		project, err := s.CreateProject(ctx, name, "")
		return projectCreatedMsg{project: project, err: err}
	}
}

func deleteProjectCmd(s *store.Store, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return projectDeletedMsg{id: id, err: s.DeleteProject(ctx, id)}
	}
}

func selectConversationCmd(s *store.Store, c api.Conversation) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return conversationSelectedMsg{id: c.ID, err: s.SelectConversation(ctx, c)}
	}
}

func deleteConversationCmd(s *store.Store, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return conversationDeletedMsg{id: id, err: s.DeleteConversation(ctx, id)}
	}
}

func sendQueryCmd(s *store.Store, query string, streaming bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		err := s.SendQuery(ctx, query, streaming)
		conversationID := ""
		if c, ok := s.CurrentConversation(); ok {
			conversationID = c.ID
		}
		return queryResultMsg{conversationID: conversationID, err: err}
	}
}

func uploadDocumentCmd(s *store.Store, projectID, path string) tea.Cmd {
	filename := filepath.Base(path)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		document, err := s.UploadDocument(ctx, projectID, path)
		return uploadResultMsg{filename: filename, document: document, err: err}
	}
}

func addReferenceCmd(s *store.Store, projectID, ref string) tea.Cmd {
	kind := api.DocumentURL
	if isYouTubeURL(ref) {
		kind = api.DocumentYouTube
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		document, err := s.AddDocumentByReference(ctx, projectID, kind, ref, ref)
		return referenceAddedMsg{document: document, err: err}
	}
}

func deleteDocumentCmd(s *store.Store, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return documentDeletedMsg{id: id, err: s.DeleteDocument(ctx, id)}
	}
}

// exportConversationCmd fetches the rendered conversation and writes it into
// the export directory.
func exportConversationCmd(s *store.Store, conversation api.Conversation, format api.ExportFormat, dir string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		data, err := s.ExportConversation(ctx, conversation.ID, format)
		if err != nil {
			return exportResultMsg{err: err}
		}
		path := filepath.Join(dir, exportFilename(conversation.Title, conversation.ID, format))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return exportResultMsg{err: fmt.Errorf("write export: %w", err)}
		}
		return exportResultMsg{path: path}
	}
}

// exportProjectCmd fetches the rendered project, documents and conversations
// included, and writes it into the export directory.
func exportProjectCmd(s *store.Store, project api.Project, format api.ExportFormat, dir string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		data, err := s.ExportProject(ctx, project.ID, format)
		if err != nil {
			return exportResultMsg{err: err}
		}
		path := filepath.Join(dir, exportFilename(project.Name, project.ID, format))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return exportResultMsg{err: fmt.Errorf("write export: %w", err)}
		}
		return exportResultMsg{path: path}
	}
}

func exportFilename(title, fallbackID string, format api.ExportFormat) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, title)
	if slug == "" {
		slug = fallbackID
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	ext := string(format)
	if format == api.ExportMarkdown {
		ext = "md"
	}
	return fmt.Sprintf("%s-%s.%s", strings.ToLower(slug), time.Now().Format("20060102-150405"), ext)
}

func isYouTubeURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.Contains(lower, "youtube.com/") || strings.Contains(lower, "youtu.be/")
}
