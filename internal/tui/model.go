package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"notelm/internal/api"
	"notelm/internal/config"
	"notelm/internal/push"
	"notelm/internal/store"
)

// Config wires runtime options into the TUI program.
type Config struct {
	Store     *store.Store
	Events    <-chan push.Event
	Prefs     *config.Config
	PrefsPath string
	ExportDir string
}

// New returns a tea.Model ready to be mounted into a Program.
func New(cfg Config) tea.Model {
	input := textinput.New()
	input.CharLimit = 500
	input.Width = 70

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	meter := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	meter.Width = 20

	// Coalescing: the store notifies synchronously on every mutation, but the
	// update loop only needs to know that something changed since last render.
	updates := make(chan struct{}, 1)
	cfg.Store.Subscribe(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	sidebarWidth := 32
	showCitations := true
	if cfg.Prefs != nil {
		sidebarWidth = cfg.Prefs.UI.SidebarWidth
		showCitations = cfg.Prefs.UI.ShowCitations
	}

	return &model{
		cfg:           cfg,
		updates:       updates,
		stage:         stageProjects,
		pane:          paneTranscript,
		composer:      composerIdle,
		input:         input,
		spinner:       spin,
		viewport:      vp,
		meter:         meter,
		streaming:     true,
		showCitations: showCitations,
		sidebarWidth:  sidebarWidth,
		infoMessage:   "Select a project to begin, or press n to create one.",
	}
}

type model struct {
	cfg     Config
	updates chan struct{}

	stage    stage
	pane     pane
	composer composerMode

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	meter    progress.Model

	projectCursor      int
	documentCursor     int
	conversationCursor int

	streaming     bool
	showCitations bool
	sidebarWidth  int
	sending       bool

	width  int
	height int

	transcriptDirty bool
	notices         []notice
	infoMessage     string
	errorMessage    string
	helpVisible     bool
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		fetchProjectsCmd(m.cfg.Store),
		waitForStoreCmd(m.updates),
		waitForPushCmd(m.cfg.Events),
	)
}

func (m *model) busy() bool {
	if m.sending {
		return true
	}
	flags := m.cfg.Store.Loading()
	if flags.Projects || flags.Documents || flags.Conversations || flags.Messages {
		return true
	}
	return len(m.cfg.Store.Uploads()) > 0
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		m.markTranscriptDirty()
		return m, nil

	case storeChangedMsg:
		m.markTranscriptDirty()
		m.clampCursors()
		// Mutations keep coming while a query streams; stay subscribed and
		// keep the spinner alive.
		return m, tea.Batch(waitForStoreCmd(m.updates), m.spinner.Tick)

	case pushEventMsg:
		m.applyPushEvent(msg.event)
		return m, waitForPushCmd(m.cfg.Events)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.stage == stageWorkspace {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil

	case projectsResultMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("%d project(s) loaded.", len(m.cfg.Store.Projects()))
		return m, nil

	case projectCreatedMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("Created project %q.", msg.project.Name)
		return m, m.openProject(msg.project)

	case projectDeletedMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = "Project deleted."
		m.clampCursors()
		return m, nil

	case conversationSelectedMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.pane = paneTranscript
		m.markTranscriptDirty()
		return m, nil

	case conversationDeletedMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = "Conversation deleted."
		m.clampCursors()
		m.markTranscriptDirty()
		return m, nil

	case queryResultMsg:
		m.sending = false
		if msg.err != nil {
			if errors.Is(msg.err, store.ErrQueryInFlight) {
				m.infoMessage = "An answer is still in progress for this conversation."
				return m, nil
			}
			m.errorMessage = msg.err.Error()
			m.pushNotice(push.NoticeError, "Query failed", msg.err.Error())
			m.markTranscriptDirty()
			return m, nil
		}
		m.errorMessage = ""
		// Only announce the answer if the user is still looking at the
		// conversation it belongs to.
		if c, ok := m.cfg.Store.CurrentConversation(); ok && c.ID == msg.conversationID {
			m.infoMessage = "Answer ready."
		}
		m.markTranscriptDirty()
		return m, nil

	case uploadResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("upload %s: %v", msg.filename, msg.err)
			m.pushNotice(push.NoticeError, "Upload failed", msg.err.Error())
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("Uploaded %s; processing on the server.", msg.filename)
		return m, nil

	case referenceAddedMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("Added %s; processing on the server.", msg.document.Name)
		return m, nil

	case documentDeletedMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = "Document removed."
		m.clampCursors()
		return m, nil

	case exportResultMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("Exported to %s", msg.path)
		return m, nil
	}
	return m, nil
}

// openProject selects the project and moves into the workspace. The store
// fetches documents and conversations in the background; renders catch up via
// the update channel.
func (m *model) openProject(p api.Project) tea.Cmd {
	m.cfg.Store.SelectProject(context.Background(), p)
	m.stage = stageWorkspace
	m.pane = paneTranscript
	m.documentCursor = 0
	m.conversationCursor = 0
	m.markTranscriptDirty()
	m.infoMessage = fmt.Sprintf("Project %q open. Press a to ask a question.", p.Name)
	return m.spinner.Tick
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.composer != composerIdle {
		return m.handleComposerKey(key)
	}
	switch m.stage {
	case stageProjects:
		return m.handleProjectsKey(key)
	case stageWorkspace:
		return m.handleWorkspaceKey(key)
	}
	return m, nil
}

func (m *model) handleComposerKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		m.closeComposer()
		m.infoMessage = "Canceled."
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		mode := m.composer
		m.closeComposer()
		if value == "" {
			m.infoMessage = "Nothing entered."
			return m, nil
		}
		return m.submitComposer(mode, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

func (m *model) submitComposer(mode composerMode, value string) (tea.Model, tea.Cmd) {
	switch mode {
	case composerNewProject:
		m.infoMessage = "Creating project…"
		return m, tea.Batch(m.spinner.Tick, createProjectCmd(m.cfg.Store, value))
	case composerUploadPath:
		project, ok := m.cfg.Store.CurrentProject()
		if !ok {
			m.errorMessage = "Open a project before uploading."
			return m, nil
		}
		m.infoMessage = "Uploading…"
		return m, tea.Batch(m.spinner.Tick, uploadDocumentCmd(m.cfg.Store, project.ID, value))
	case composerAddURL:
		project, ok := m.cfg.Store.CurrentProject()
		if !ok {
			m.errorMessage = "Open a project before adding sources."
			return m, nil
		}
		m.infoMessage = "Registering source…"
		return m, tea.Batch(m.spinner.Tick, addReferenceCmd(m.cfg.Store, project.ID, value))
	case composerQuestion:
		m.sending = true
		m.errorMessage = ""
		if m.streaming {
			m.infoMessage = "Streaming answer…"
		} else {
			m.infoMessage = "Waiting for answer…"
		}
		m.markTranscriptDirty()
		return m, tea.Batch(m.spinner.Tick, sendQueryCmd(m.cfg.Store, value, m.streaming))
	}
	return m, nil
}

func (m *model) handleProjectsKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	projects := m.cfg.Store.Projects()
	switch key.String() {
	case "up", "k":
		if m.projectCursor > 0 {
			m.projectCursor--
		}
	case "down", "j":
		if m.projectCursor < len(projects)-1 {
			m.projectCursor++
		}
	case "enter":
		if m.projectCursor < len(projects) {
			return m, m.openProject(projects[m.projectCursor])
		}
	case "n":
		m.openComposer(composerNewProject, composerProjectPlaceholder)
	case "d":
		if m.projectCursor < len(projects) {
			project := projects[m.projectCursor]
			m.infoMessage = fmt.Sprintf("Deleting %q…", project.Name)
			return m, tea.Batch(m.spinner.Tick, deleteProjectCmd(m.cfg.Store, project.ID))
		}
	case "r":
		m.infoMessage = "Refreshing projects…"
		return m, tea.Batch(m.spinner.Tick, fetchProjectsCmd(m.cfg.Store))
	case "?":
		m.helpVisible = !m.helpVisible
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) handleWorkspaceKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "tab":
		m.pane = (m.pane + 1) % 3
		return m, nil
	case "esc", "p":
		m.stage = stageProjects
		m.infoMessage = "Back to projects."
		return m, nil
	case "a":
		if _, ok := m.cfg.Store.CurrentProject(); ok {
			m.openComposer(composerQuestion, composerQuestionPlaceholder)
		}
		return m, nil
	case "S":
		m.streaming = !m.streaming
		if m.streaming {
			m.infoMessage = "Streaming answers enabled."
		} else {
			m.infoMessage = "Answers will arrive in one piece."
		}
		return m, nil
	case "c":
		m.showCitations = !m.showCitations
		m.persistPrefs()
		m.markTranscriptDirty()
		return m, nil
	case "E":
		project, ok := m.cfg.Store.CurrentProject()
		if !ok {
			return m, nil
		}
		m.infoMessage = fmt.Sprintf("Exporting project %q…", project.Name)
		return m, tea.Batch(m.spinner.Tick, exportProjectCmd(m.cfg.Store, project, api.ExportMarkdown, m.cfg.ExportDir))
	case "?":
		m.helpVisible = !m.helpVisible
		return m, nil
	}
	switch m.pane {
	case paneDocuments:
		return m.handleDocumentsKey(key)
	case paneConversations:
		return m.handleConversationsKey(key)
	default:
		return m.handleTranscriptKey(key)
	}
}

func (m *model) handleDocumentsKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	documents := m.cfg.Store.Documents()
	switch key.String() {
	case "up", "k":
		if m.documentCursor > 0 {
			m.documentCursor--
		}
	case "down", "j":
		if m.documentCursor < len(documents)-1 {
			m.documentCursor++
		}
	case "u":
		m.openComposer(composerUploadPath, composerUploadPlaceholder)
	case "l":
		m.openComposer(composerAddURL, composerURLPlaceholder)
	case "d":
		if m.documentCursor < len(documents) {
			document := documents[m.documentCursor]
			m.infoMessage = fmt.Sprintf("Removing %s…", document.Name)
			return m, tea.Batch(m.spinner.Tick, deleteDocumentCmd(m.cfg.Store, document.ID))
		}
	}
	return m, nil
}

func (m *model) handleConversationsKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	conversations := m.cfg.Store.Conversations()
	switch key.String() {
	case "up", "k":
		if m.conversationCursor > 0 {
			m.conversationCursor--
		}
	case "down", "j":
		if m.conversationCursor < len(conversations)-1 {
			m.conversationCursor++
		}
	case "enter":
		if m.conversationCursor < len(conversations) {
			conversation := conversations[m.conversationCursor]
			m.infoMessage = fmt.Sprintf("Opening %q…", conversation.Title)
			return m, tea.Batch(m.spinner.Tick, selectConversationCmd(m.cfg.Store, conversation))
		}
	case "d":
		if m.conversationCursor < len(conversations) {
			conversation := conversations[m.conversationCursor]
			m.infoMessage = fmt.Sprintf("Deleting %q…", conversation.Title)
			return m, tea.Batch(m.spinner.Tick, deleteConversationCmd(m.cfg.Store, conversation.ID))
		}
	}
	return m, nil
}

func (m *model) handleTranscriptKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "e":
		return m.exportCurrent(api.ExportMarkdown)
	case "x":
		return m.exportCurrent(api.ExportJSON)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(key)
	return m, cmd
}

func (m *model) exportCurrent(format api.ExportFormat) (tea.Model, tea.Cmd) {
	conversation, ok := m.cfg.Store.CurrentConversation()
	if !ok {
		m.infoMessage = "Open a conversation before exporting."
		return m, nil
	}
	m.infoMessage = fmt.Sprintf("Exporting as %s…", format)
	return m, tea.Batch(m.spinner.Tick, exportConversationCmd(m.cfg.Store, conversation, format, m.cfg.ExportDir))
}

func (m *model) openComposer(mode composerMode, placeholder string) {
	m.composer = mode
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	m.input.Focus()
}

func (m *model) closeComposer() {
	m.composer = composerIdle
	m.input.SetValue("")
	m.input.Blur()
}

// applyPushEvent surfaces a server event as a notice. The document status
// mutation itself happens in the router handler wired at startup; by the time
// this runs the store already reflects it.
func (m *model) applyPushEvent(event push.Event) {
	switch event.Type {
	case push.EventNotification:
		n, err := event.Notification()
		if err != nil {
			return
		}
		m.pushNotice(n.Kind, n.Title, n.Message)
	case push.EventProcessingStatus:
		p, err := event.ProcessingStatus()
		if err != nil {
			return
		}
		if p.Status == push.ProcessingFailed {
			m.pushNotice(push.NoticeError, "Processing failed", fmt.Sprintf("%s: %s", p.DocumentName, p.Error))
		} else {
			m.pushNotice(push.NoticeSuccess, "Document ready", p.DocumentName)
		}
	}
}

func (m *model) pushNotice(kind push.NotificationKind, title, message string) {
	m.notices = append(m.notices, notice{Kind: kind, Title: title, Message: message, At: time.Now()})
	if len(m.notices) > noticeLimit {
		m.notices = m.notices[len(m.notices)-noticeLimit:]
	}
}

func (m *model) persistPrefs() {
	if m.cfg.Prefs == nil || m.cfg.PrefsPath == "" {
		return
	}
	m.cfg.Prefs.UI.ShowCitations = m.showCitations
	m.cfg.Prefs.UI.SidebarWidth = m.sidebarWidth
	if err := m.cfg.Prefs.Save(m.cfg.PrefsPath); err != nil {
		m.errorMessage = fmt.Sprintf("save preferences: %v", err)
		return
	}
	if m.showCitations {
		m.infoMessage = "Citations shown."
	} else {
		m.infoMessage = "Citations hidden."
	}
}

func (m *model) clampCursors() {
	if n := len(m.cfg.Store.Projects()); m.projectCursor >= n {
		m.projectCursor = max(0, n-1)
	}
	if n := len(m.cfg.Store.Documents()); m.documentCursor >= n {
		m.documentCursor = max(0, n-1)
	}
	if n := len(m.cfg.Store.Conversations()); m.conversationCursor >= n {
		m.conversationCursor = max(0, n-1)
	}
}

func (m *model) resizeViewport() {
	width := m.width - m.sidebarWidth - viewportHorizontalPadding
	if width < minViewportWidth {
		width = minViewportWidth
	}
	m.viewport.Width = width
	height := m.height - 8
	if height < 5 {
		height = 5
	}
	m.viewport.Height = height
}

func (m *model) markTranscriptDirty() {
	m.transcriptDirty = true
}
