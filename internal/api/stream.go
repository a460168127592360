package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ChunkHandler receives each answer fragment in arrival order. Returning an
// error aborts the stream.
type ChunkHandler func(content string) error

// maxChunkBytes bounds a single stream frame; answers arrive as many small
// fragments, so anything near this size indicates a misbehaving backend.
const maxChunkBytes = 1 << 20

// StreamQuery asks a question and delivers the answer incrementally. Frames
// are newline-delimited JSON; a "done" frame completes the stream, an "error"
// frame fails it. Chunks reach the handler strictly in arrival order.
func (c *Client) StreamQuery(ctx context.Context, req QueryRequest, onChunk ChunkHandler) error {
	req.Stream = true
	buf, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("stream query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/query/stream", bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("stream query: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("stream query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("stream query: backend error: %s (%s)", resp.Status, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk StreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("stream query: malformed frame: %w", err)
		}
		switch chunk.Type {
		case chunkTypeContent:
			if err := onChunk(chunk.Content); err != nil {
				return fmt.Errorf("stream query: %w", err)
			}
		case chunkTypeDone:
			return nil
		case chunkTypeError:
			return fmt.Errorf("stream query: backend reported: %s", chunk.Content)
		default:
			// Unknown frame types are skipped so the backend can grow the protocol.
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream query: %w", err)
	}
	return errors.New("stream query: connection closed before completion")
}
