package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"notelm/internal/api"
	"notelm/internal/push"
)

const heroTagline = "Ask your documents anything."

func (m *model) View() string {
	if m.stage == stageProjects {
		return m.viewProjects()
	}
	return m.viewWorkspace()
}

func (m *model) viewProjects() string {
	parts := []string{m.headerView("Projects")}

	projects := m.cfg.Store.Projects()
	if m.cfg.Store.Loading().Projects {
		parts = append(parts, helperStyle.Render(fmt.Sprintf("%s Loading projects…", m.spinner.View())))
	} else if len(projects) == 0 {
		parts = append(parts, helperStyle.Render("No projects yet. Press n to create one."))
	} else {
		rows := make([]string, 0, len(projects))
		for i, p := range projects {
			cursor := "  "
			if i == m.projectCursor {
				cursor = "> "
			}
			row := fmt.Sprintf("%s%s  (%d docs, %d chats)", cursor, p.Name, p.DocumentCount, p.ConversationCount)
			if i == m.projectCursor {
				row = selectedRowStyle.Render(row)
			}
			rows = append(rows, row)
		}
		parts = append(parts, strings.Join(rows, "\n"))
	}

	if m.composer != composerIdle {
		parts = append(parts, m.composerView())
	}
	parts = append(parts, m.noticesView(), m.messageLines())
	if m.helpVisible {
		parts = append(parts, m.projectsHelpView())
	} else {
		parts = append(parts, helperStyle.Render("enter open • n new • d delete • r refresh • ? help • q quit"))
	}
	return joinNonEmpty(parts)
}

func (m *model) viewWorkspace() string {
	m.refreshTranscriptIfDirty()

	project, _ := m.cfg.Store.CurrentProject()
	parts := []string{m.headerView(project.Name)}

	sidebar := lipgloss.JoinVertical(lipgloss.Left, m.documentsPane(), m.conversationsPane())
	transcript := m.transcriptPane()
	parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top, sidebar, transcript))

	if bar := m.statusBarView(); bar != "" {
		parts = append(parts, bar)
	}
	if m.composer != composerIdle {
		parts = append(parts, m.composerView())
	}
	parts = append(parts, m.noticesView(), m.messageLines())
	if m.helpVisible {
		parts = append(parts, m.workspaceHelpView())
	} else {
		parts = append(parts, helperStyle.Render("tab switch pane • a ask • e export • E export project • ? help • esc projects"))
	}
	return joinNonEmpty(parts)
}

func (m *model) headerView(context string) string {
	title := titleStyle.Render("NoteLM")
	if context != "" {
		title = lipgloss.JoinHorizontal(lipgloss.Top, title, helperStyle.Render("  ›  "+context))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, taglineStyle.Render(heroTagline))
}

func (m *model) documentsPane() string {
	header := "Documents"
	if m.pane == paneDocuments {
		header = activePaneHeaderStyle.Render(header)
	} else {
		header = paneHeaderStyle.Render(header)
	}
	lines := []string{header}

	documents := m.cfg.Store.Documents()
	switch {
	case m.cfg.Store.Loading().Documents:
		lines = append(lines, helperStyle.Render(fmt.Sprintf("%s loading…", m.spinner.View())))
	case len(documents) == 0:
		lines = append(lines, helperStyle.Render("empty: u upload, l add link"))
	default:
		for i, d := range documents {
			cursor := "  "
			if m.pane == paneDocuments && i == m.documentCursor {
				cursor = "> "
			}
			row := fmt.Sprintf("%s%s %s", cursor, statusGlyph(d.Status), truncate(d.Name, m.sidebarWidth-6))
			if m.pane == paneDocuments && i == m.documentCursor {
				row = selectedRowStyle.Render(row)
			} else if d.Status == api.StatusFailed {
				row = errorStyle.Render(row)
			}
			lines = append(lines, row)
		}
	}

	for _, task := range m.cfg.Store.Uploads() {
		bar := m.meter.ViewAs(float64(task.Progress) / 100)
		lines = append(lines, fmt.Sprintf("  ↑ %s %s", truncate(task.Filename, m.sidebarWidth-26), bar))
	}

	return sidebarBoxStyle.Width(m.sidebarWidth).Render(strings.Join(lines, "\n"))
}

func (m *model) conversationsPane() string {
	header := "Conversations"
	if m.pane == paneConversations {
		header = activePaneHeaderStyle.Render(header)
	} else {
		header = paneHeaderStyle.Render(header)
	}
	lines := []string{header}

	conversations := m.cfg.Store.Conversations()
	current, hasCurrent := m.cfg.Store.CurrentConversation()
	switch {
	case m.cfg.Store.Loading().Conversations:
		lines = append(lines, helperStyle.Render(fmt.Sprintf("%s loading…", m.spinner.View())))
	case len(conversations) == 0:
		lines = append(lines, helperStyle.Render("empty: a asks and starts one"))
	default:
		for i, c := range conversations {
			cursor := "  "
			if m.pane == paneConversations && i == m.conversationCursor {
				cursor = "> "
			}
			marker := " "
			if hasCurrent && c.ID == current.ID {
				marker = "•"
			}
			row := fmt.Sprintf("%s%s %s", cursor, marker, truncate(c.Title, m.sidebarWidth-6))
			if m.pane == paneConversations && i == m.conversationCursor {
				row = selectedRowStyle.Render(row)
			}
			lines = append(lines, row)
		}
	}

	return sidebarBoxStyle.Width(m.sidebarWidth).Render(strings.Join(lines, "\n"))
}

func (m *model) transcriptPane() string {
	header := "Transcript"
	if conversation, ok := m.cfg.Store.CurrentConversation(); ok {
		header = truncate(conversation.Title, m.viewport.Width-4)
	}
	if m.pane == paneTranscript {
		header = activePaneHeaderStyle.Render(header)
	} else {
		header = paneHeaderStyle.Render(header)
	}
	return lipgloss.JoinVertical(lipgloss.Left, " "+header, m.viewport.View())
}

// refreshTranscriptIfDirty rebuilds the viewport from the store's transcript.
// Called at render time so a burst of streaming chunks costs one rebuild.
func (m *model) refreshTranscriptIfDirty() {
	if !m.transcriptDirty {
		return
	}
	m.transcriptDirty = false

	wasAtBottom := m.viewport.AtBottom()
	wrap := m.viewport.Width - 2
	if wrap < 20 {
		wrap = 20
	}

	messages := m.cfg.Store.Messages()
	documents := m.cfg.Store.Documents()
	names := make(map[string]string, len(documents))
	for _, d := range documents {
		names[d.ID] = d.Name
	}

	var b strings.Builder
	if len(messages) == 0 {
		if _, ok := m.cfg.Store.CurrentConversation(); ok {
			b.WriteString(helperStyle.Render("No messages yet. Press a to ask."))
		} else {
			b.WriteString(helperStyle.Render("Press a to ask a question; a conversation opens automatically."))
		}
	}
	for i, message := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch message.Role {
		case api.RoleUser:
			b.WriteString(userLabelStyle.Render("You"))
		default:
			b.WriteString(assistantLabelStyle.Render("Assistant"))
		}
		b.WriteString("\n")
		if message.Role == api.RoleAssistant && message.Content == "" && message.ID.IsLocal() {
			b.WriteString(helperStyle.Render(fmt.Sprintf("%s thinking…", m.spinner.View())))
			continue
		}
		b.WriteString(wordwrap.String(message.Content, wrap))
		if m.showCitations && len(message.Citations) > 0 {
			b.WriteString("\n")
			for i, c := range message.Citations {
				b.WriteString(citationStyle.Render(formatCitation(i+1, c, names)))
				b.WriteString("\n")
			}
		}
	}
	if queryErr := m.cfg.Store.LastQueryError(); queryErr != "" {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render("⚠ " + queryErr))
	}

	m.viewport.SetContent(b.String())
	if wasAtBottom || m.sending {
		m.viewport.GotoBottom()
	}
}

func formatCitation(index int, c api.Citation, names map[string]string) string {
	source := names[c.DocID]
	if source == "" {
		source = c.DocID
	}
	line := fmt.Sprintf("  [%d] %s", index, source)
	if c.Page > 0 {
		line += fmt.Sprintf(" p.%d", c.Page)
	}
	if c.Snippet != "" {
		line += " · " + truncate(c.Snippet, 60)
	}
	return line
}

func (m *model) statusBarView() string {
	mode := "stream"
	if !m.streaming {
		mode = "blocking"
	}
	stats := []string{
		fmt.Sprintf("Mode %s", mode),
		fmt.Sprintf("Docs %d", len(m.cfg.Store.Documents())),
		fmt.Sprintf("Chats %d", len(m.cfg.Store.Conversations())),
	}
	if uploads := m.cfg.Store.Uploads(); len(uploads) > 0 {
		stats = append(stats, fmt.Sprintf("Uploading %d", len(uploads)))
	}
	if m.sending {
		stats = append(stats, "Answering…")
	}
	if !m.showCitations {
		stats = append(stats, "Citations hidden")
	}
	return statusBarStyle.Render(strings.Join(stats, "  •  "))
}

func (m *model) composerView() string {
	var label string
	switch m.composer {
	case composerNewProject:
		label = "New Project"
	case composerUploadPath:
		label = "Upload Document"
	case composerAddURL:
		label = "Add Source"
	case composerQuestion:
		label = "Ask"
	}
	return composerBoxStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		paneHeaderStyle.Render(label),
		m.input.View(),
		helperStyle.Render("Enter to submit, Esc to cancel."),
	))
}

func (m *model) noticesView() string {
	if len(m.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.notices))
	for _, n := range m.notices {
		line := fmt.Sprintf("%s %s", n.At.Format("15:04:05"), n.Title)
		if n.Message != "" {
			line += ": " + n.Message
		}
		switch n.Kind {
		case push.NoticeError:
			line = errorStyle.Render("✗ " + line)
		case push.NoticeSuccess:
			line = successStyle.Render("✓ " + line)
		default:
			line = helperStyle.Render("· " + line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *model) messageLines() string {
	var lines []string
	if m.errorMessage != "" {
		lines = append(lines, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		lines = append(lines, helperStyle.Render(m.infoMessage))
	}
	return strings.Join(lines, "\n")
}

func (m *model) projectsHelpView() string {
	lines := []string{
		paneHeaderStyle.Render("Projects"),
		helperStyle.Render("• ↑/↓ move, Enter opens the project workspace."),
		helperStyle.Render("• n creates a project, d deletes the highlighted one."),
		helperStyle.Render("• r refreshes the list from the server."),
		helperStyle.Render("• q or Ctrl+C quits."),
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}

func (m *model) workspaceHelpView() string {
	lines := []string{
		paneHeaderStyle.Render("Workspace"),
		helperStyle.Render("• Tab cycles documents, conversations, and transcript."),
		helperStyle.Render("• a asks a question; without an open conversation one is created for you."),
		helperStyle.Render("• Documents pane: u uploads a PDF, l adds a URL or YouTube link, d deletes."),
		helperStyle.Render("• Conversations pane: Enter opens, d deletes."),
		helperStyle.Render("• Transcript pane: e exports markdown, x exports json, arrows scroll."),
		helperStyle.Render("• S toggles streaming answers, c toggles citations."),
		helperStyle.Render("• E exports the whole project as markdown."),
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}

func statusGlyph(status api.DocumentStatus) string {
	switch status {
	case api.StatusCompleted:
		return "✓"
	case api.StatusFailed:
		return "✗"
	case api.StatusProcessing:
		return "◌"
	default:
		return "·"
	}
}

func truncate(s string, limit int) string {
	if limit < 4 {
		limit = 4
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

var (
	titleStyle            = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	taglineStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb347")).Italic(true)
	paneHeaderStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	activePaneHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("81")).Padding(0, 1)
	helperStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c"))
	selectedRowStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6"))
	userLabelStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	assistantLabelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff8c00"))
	citationStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	statusBarStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	sidebarBoxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 1)
	composerBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#ff8c00")).Padding(0, 1)
	helpBoxStyle          = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7f5af0")).Padding(1, 2)
)
