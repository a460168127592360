package tui

import (
	"time"

	"notelm/internal/api"
	"notelm/internal/push"
)

type stage int

const (
	stageProjects stage = iota
	stageWorkspace
)

// pane tracks which workspace column has keyboard focus.
type pane int

const (
	paneDocuments pane = iota
	paneConversations
	paneTranscript
)

type composerMode int

const (
	composerIdle composerMode = iota
	composerNewProject
	composerUploadPath
	composerAddURL
	composerQuestion
)

const (
	composerProjectPlaceholder  = "Name the new project…"
	composerUploadPlaceholder   = "Path to a local file (PDF)…"
	composerURLPlaceholder      = "https://example.com/article or a YouTube link…"
	composerQuestionPlaceholder = "Ask about this project's documents…"
)

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	noticeLimit               = 3
)

// notice is a transient surface fed by the push channel or local failures.
type notice struct {
	Kind    push.NotificationKind
	Title   string
	Message string
	At      time.Time
}

// storeChangedMsg re-renders after a store mutation; the channel coalesces
// bursts.
type storeChangedMsg struct{}

// pushEventMsg carries one event off the push channel into the update loop.
type pushEventMsg struct {
	event push.Event
}

type projectsResultMsg struct {
	err error
}

type projectCreatedMsg struct {
	project api.Project
	err     error
}

type projectDeletedMsg struct {
	id  string
	err error
}

type conversationSelectedMsg struct {
	id  string
	err error
}

type conversationDeletedMsg struct {
	id  string
	err error
}

type queryResultMsg struct {
	conversationID string
	err            error
}

type uploadResultMsg struct {
	filename string
	document api.Document
	err      error
}

type referenceAddedMsg struct {
	document api.Document
	err      error
}

type documentDeletedMsg struct {
	id  string
	err error
}

type exportResultMsg struct {
	path string
	err  error
}
