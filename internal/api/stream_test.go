package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/query/stream" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if !req.Stream {
			t.Fatal("streaming endpoint expects stream:true")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			w.Write([]byte(frame + "\n"))
			flusher.Flush()
		}
	}))
}

func TestStreamQueryDeliversChunksInOrder(t *testing.T) {
	server := streamServer(t, []string{
		`{"type":"content","content":"Hel"}`,
		`{"type":"content","content":"lo, "}`,
		`{"type":"content","content":"world"}`,
		`{"type":"done"}`,
	})
	defer server.Close()

	client := New(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	var accumulated strings.Builder
	err := client.StreamQuery(context.Background(), QueryRequest{ProjectID: "p1", Query: "hi"}, func(content string) error {
		accumulated.WriteString(content)
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if got := accumulated.String(); got != "Hello, world" {
		t.Fatalf("chunks reordered or lost: %q", got)
	}
}

func TestStreamQuerySurfacesErrorFrame(t *testing.T) {
	server := streamServer(t, []string{
		`{"type":"content","content":"partial"}`,
		`{"type":"error","content":"model unavailable"}`,
	})
	defer server.Close()

	client := New(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	var seen []string
	err := client.StreamQuery(context.Background(), QueryRequest{Query: "hi"}, func(content string) error {
		seen = append(seen, content)
		return nil
	})
	if err == nil {
		t.Fatal("expected error frame to fail the stream")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("error should carry the backend message, got %v", err)
	}
	if len(seen) != 1 || seen[0] != "partial" {
		t.Fatalf("chunks before the error must still be delivered: %#v", seen)
	}
}

func TestStreamQueryFailsOnTruncatedStream(t *testing.T) {
	server := streamServer(t, []string{
		`{"type":"content","content":"never finished"}`,
	})
	defer server.Close()

	client := New(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	err := client.StreamQuery(context.Background(), QueryRequest{Query: "hi"}, func(string) error { return nil })
	if err == nil {
		t.Fatal("a stream without a done frame must not complete cleanly")
	}
}

func TestStreamQueryHandlerErrorAborts(t *testing.T) {
	server := streamServer(t, []string{
		`{"type":"content","content":"a"}`,
		`{"type":"content","content":"b"}`,
		`{"type":"done"}`,
	})
	defer server.Close()

	client := New(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	abort := errors.New("caller gave up")
	calls := 0
	err := client.StreamQuery(context.Background(), QueryRequest{Query: "hi"}, func(string) error {
		calls++
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("stream should stop after the handler errors, got %d calls", calls)
	}
}

func TestStreamQuerySkipsUnknownFrames(t *testing.T) {
	server := streamServer(t, []string{
		`{"type":"thinking","content":"..."}`,
		`{"type":"content","content":"answer"}`,
		`{"type":"done"}`,
	})
	defer server.Close()

	client := New(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	var got string
	err := client.StreamQuery(context.Background(), QueryRequest{Query: "hi"}, func(content string) error {
		got += content
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if got != "answer" {
		t.Fatalf("unknown frames should be ignored, got %q", got)
	}
}
