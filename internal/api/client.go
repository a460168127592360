package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const defaultHTTPTimeout = 90 * time.Second

// Config describes how to build a backend client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to the knowledge-assistant backend over HTTP.
type Client struct {
	base   string
	client *http.Client
}

// New returns a Client for the given backend base URL.
func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: client,
	}
}

// BaseURL reports the backend root this client is bound to.
func (c *Client) BaseURL() string {
	return c.base
}

// CreateProject registers a new project and returns the backend record.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	payload := map[string]string{"name": name}
	if description != "" {
		payload["description"] = description
	}
	var project Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", payload, &project); err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

// ListProjects fetches every project visible to this client.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var parsed struct {
		Projects []Project `json:"projects"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects", nil, &parsed); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return parsed.Projects, nil
}

// DeleteProject removes a project and everything it owns.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// ListDocuments fetches the documents owned by a project.
func (c *Client) ListDocuments(ctx context.Context, projectID string) ([]Document, error) {
	var parsed struct {
		Documents []Document `json:"documents"`
	}
	path := "/api/projects/" + url.PathEscape(projectID) + "/documents"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &parsed); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return parsed.Documents, nil
}

// UploadDocument sends a local file to the backend for ingestion.
// PDF payloads are opened locally first so an unreadable file fails before
// any bytes travel.
func (c *Client) UploadDocument(ctx context.Context, projectID, path string) (Document, error) {
	filename := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		if err := validatePDF(path); err != nil {
			return Document{}, fmt.Errorf("upload document: %w", err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}

	endpoint := c.base + "/api/projects/" + url.PathEscape(projectID) + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var document Document
	if err := c.do(req, &document); err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	return document, nil
}

func validatePDF(path string) error {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("unreadable pdf %q: %w", filepath.Base(path), err)
	}
	defer file.Close()
	if reader.NumPage() == 0 {
		return fmt.Errorf("pdf %q has no pages", filepath.Base(path))
	}
	return nil
}

// AddDocumentByReference registers a url, youtube, or text document without
// uploading a file.
func (c *Client) AddDocumentByReference(ctx context.Context, projectID string, kind DocumentType, name, ref string) (Document, error) {
	var path string
	payload := map[string]string{"name": name}
	switch kind {
	case DocumentURL:
		path = "/upload-url"
		payload["url"] = ref
	case DocumentYouTube:
		path = "/upload-youtube"
		payload["youtube_url"] = ref
	case DocumentText:
		path = "/upload-text"
		payload["content"] = ref
	default:
		return Document{}, fmt.Errorf("add document: unsupported reference type %q", kind)
	}
	var document Document
	endpoint := "/api/projects/" + url.PathEscape(projectID) + path
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &document); err != nil {
		return Document{}, fmt.Errorf("add document: %w", err)
	}
	return document, nil
}

// DeleteDocument removes a document by id.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/docs/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// CreateConversation opens a new conversation inside a project.
func (c *Client) CreateConversation(ctx context.Context, projectID, title string) (Conversation, error) {
	payload := map[string]string{"project_id": projectID, "title": title}
	var conversation Conversation
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations", payload, &conversation); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

// ListConversations fetches the conversations owned by a project.
func (c *Client) ListConversations(ctx context.Context, projectID string) ([]Conversation, error) {
	var parsed struct {
		Conversations []Conversation `json:"conversations"`
	}
	path := "/api/projects/" + url.PathEscape(projectID) + "/conversations"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &parsed); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return parsed.Conversations, nil
}

// DeleteConversation removes a conversation by id.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// ListMessages fetches the authoritative transcript of a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var parsed struct {
		Messages []Message `json:"messages"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &parsed); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return parsed.Messages, nil
}

// Query asks a blocking question and returns the full answer.
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	req.Stream = false
	var resp QueryResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/query", req, &resp); err != nil {
		return QueryResponse{}, fmt.Errorf("query: %w", err)
	}
	return resp, nil
}

// ExportConversation returns the conversation serialized in the given format.
// The payload is opaque bytes; the caller decides where they land.
func (c *Client) ExportConversation(ctx context.Context, id string, format ExportFormat) ([]byte, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("export conversation: unsupported format %q", format)
	}
	data, err := c.fetchExport(ctx, fmt.Sprintf("/api/export/conversation/%s?format=%s", url.PathEscape(id), format))
	if err != nil {
		return nil, fmt.Errorf("export conversation: %w", err)
	}
	return data, nil
}

// ExportProject returns the whole project, documents and conversations
// included, serialized in the given format. The backend renders project
// exports as json or markdown only.
func (c *Client) ExportProject(ctx context.Context, id string, format ExportFormat) ([]byte, error) {
	if !format.ValidForProject() {
		return nil, fmt.Errorf("export project: unsupported format %q", format)
	}
	data, err := c.fetchExport(ctx, fmt.Sprintf("/api/export/project/%s?format=%s", url.PathEscape(id), format))
	if err != nil {
		return nil, fmt.Errorf("export project: %w", err)
	}
	return data, nil
}

func (c *Client) fetchExport(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("backend error: %s (%s)", resp.Status, string(body))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend error: %s (%s)", resp.Status, string(body))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}
