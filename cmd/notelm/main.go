package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"notelm/internal/api"
	"notelm/internal/config"
	"notelm/internal/push"
	"notelm/internal/store"
	"notelm/internal/tui"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the TOML config file")
	serverURL := flag.String("server", "", "backend base URL (overrides config)")
	exportDir := flag.String("export-dir", ".", "directory conversation exports are written to")
	noAltScreen := flag.Bool("no-alt-screen", false, "disable the alternate screen buffer")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("failed to load config:", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.BaseURL = *serverURL
	}

	client := api.New(api.Config{
		BaseURL:    cfg.Server.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Server.RequestTimeout()},
	})
	s := store.New(store.Config{Backend: client})

	// The router feeds two consumers: the store, which applies document status
	// transitions, and the TUI's event channel, which renders notices. A full
	// channel drops the notice rather than stalling the listener.
	router := push.NewRouter()
	events := make(chan push.Event, 16)
	forward := func(event push.Event) {
		select {
		case events <- event:
		default:
		}
	}
	router.On(push.EventProcessingStatus, func(event push.Event) {
		status, err := event.ProcessingStatus()
		if err != nil {
			log.Printf("[main] bad processing payload: %v", err)
			return
		}
		switch status.Status {
		case push.ProcessingCompleted:
			s.ApplyDocumentStatus(status.DocumentName, api.StatusCompleted, "")
		case push.ProcessingFailed:
			s.ApplyDocumentStatus(status.DocumentName, api.StatusFailed, status.Error)
		}
		forward(event)
	})
	router.On(push.EventNotification, forward)

	listener := push.NewListener(push.ListenerConfig{
		BaseURL:        cfg.Server.BaseURL,
		Router:         router,
		ReconnectDelay: cfg.Server.ReconnectDelay(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[main] event listener stopped: %v", err)
		}
	}()

	opts := []tea.ProgramOption{}
	if !*noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			Store:     s,
			Events:    events,
			Prefs:     cfg,
			PrefsPath: *configPath,
			ExportDir: *exportDir,
		}),
		opts...,
	)

	if _, err := program.Run(); err != nil {
		fmt.Println("program error:", err)
		os.Exit(1)
	}
}
