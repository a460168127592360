package push

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultReconnectDelay = 3 * time.Second
	maxEventBytes         = 1 << 20
)

// Listener holds a long-lived connection to the backend's event endpoint and
// feeds decoded frames into a Router. One Listener per running client.
type Listener struct {
	url            string
	client         *http.Client
	router         *Router
	reconnectDelay time.Duration
}

// ListenerConfig describes how to build a Listener.
type ListenerConfig struct {
	// BaseURL is the backend root; the listener connects to BaseURL/api/events.
	BaseURL string
	// HTTPClient must not carry a request timeout, the connection is held open
	// indefinitely. Nil gets a fresh timeout-free client.
	HTTPClient     *http.Client
	Router         *Router
	ReconnectDelay time.Duration
}

// NewListener returns a Listener bound to the given router.
func NewListener(cfg ListenerConfig) *Listener {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &Listener{
		url:            strings.TrimRight(cfg.BaseURL, "/") + "/api/events",
		client:         client,
		router:         cfg.Router,
		reconnectDelay: delay,
	}
}

// Run connects and consumes events until the context is cancelled,
// reconnecting after transport failures. It always returns ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := l.consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[push] connection lost: %v (reconnecting in %s)", err, l.reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Listener) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("event endpoint error: %s (%s)", resp.Status, string(body))
	}

	return l.consumeFrames(resp.Body)
}

// consumeFrames parses text/event-stream framing: "event:" names the type,
// "data:" lines accumulate the payload, a blank line dispatches.
func (l *Listener) consumeFrames(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 16*1024), maxEventBytes)

	var eventName string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			l.dispatch(eventName, data.String())
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// Comment / keepalive.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// A clean EOF still means the push channel went away.
	return errors.New("event stream closed")
}

func (l *Listener) dispatch(eventName, payload string) {
	if eventName == "" || payload == "" {
		return
	}
	raw := json.RawMessage(payload)
	if !json.Valid(raw) {
		log.Printf("[push] skipping malformed %s payload", eventName)
		return
	}
	l.router.Dispatch(Event{Type: EventType(eventName), Data: raw})
}
