package openai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/brightdesk/support-service/internal/services/completion"
)

// sseEvent is the wire shape of one streamed provider event.
type sseEvent struct {
	Type     string `json:"type"`
	Delta    string `json:"delta"`
	Response *struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Conversation string `json:"conversation"`
	} `json:"response"`
	Item *struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		Name      string `json:"name"`
		CallID    string `json:"call_id"`
		Arguments string `json:"arguments"`
	} `json:"item"`
}

// streamReader implements completion.StreamReader over an SSE response body.
type streamReader struct {
	response *http.Response
	scanner  *bufio.Scanner
	closed   bool
	runID    string
	threadID string
}

// Read returns the next event from the stream.
func (r *streamReader) Read() (*completion.StreamEvent, error) {
	if r.closed {
		return nil, io.EOF
	}

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Skip empty lines
		if line == "" {
			continue
		}

		// Event type lines precede data lines; the data carries the type too
		if strings.HasPrefix(line, "event:") {
			continue
		}

		// Handle data lines - can be "data: {...}" or just "{...}"
		var jsonData string
		if strings.HasPrefix(line, "data: ") {
			jsonData = strings.TrimPrefix(line, "data: ")
		} else if strings.HasPrefix(line, "{") {
			jsonData = line
		} else {
			continue
		}

		// Check for stream end
		if jsonData == "[DONE]" {
			return nil, io.EOF
		}

		var event sseEvent
		if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
			// Skip malformed events
			continue
		}

		out := r.processEvent(&event)
		if out != nil {
			return out, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	return nil, io.EOF
}

// processEvent maps a provider event to a stream event, or nil to skip.
func (r *streamReader) processEvent(event *sseEvent) *completion.StreamEvent {
	if event.Response != nil {
		if event.Response.ID != "" {
			r.runID = event.Response.ID
		}
		if event.Response.Conversation != "" {
			r.threadID = event.Response.Conversation
		}
	}

	switch event.Type {
	case "response.output_text.delta":
		if event.Delta == "" {
			return nil
		}
		return &completion.StreamEvent{
			Type:      completion.EventTextDelta,
			TextDelta: event.Delta,
			RunID:     r.runID,
			ThreadID:  r.threadID,
		}

	case "response.output_item.done":
		if event.Item != nil && event.Item.Type == "function_call" {
			callID := event.Item.CallID
			if callID == "" {
				callID = event.Item.ID
			}
			return &completion.StreamEvent{
				Type: completion.EventToolCall,
				ToolCall: &completion.ToolCall{
					ID:        callID,
					Name:      event.Item.Name,
					Arguments: event.Item.Arguments,
				},
				RunID:    r.runID,
				ThreadID: r.threadID,
			}
		}
		return nil

	case "response.created", "response.in_progress":
		return &completion.StreamEvent{
			Type:     completion.EventStatusChange,
			Status:   completion.RunStatusInProgress,
			RunID:    r.runID,
			ThreadID: r.threadID,
		}

	case "response.completed":
		return &completion.StreamEvent{
			Type:     completion.EventStatusChange,
			Status:   completion.RunStatusCompleted,
			RunID:    r.runID,
			ThreadID: r.threadID,
		}

	case "response.failed", "response.incomplete", "error":
		return &completion.StreamEvent{
			Type:     completion.EventStatusChange,
			Status:   completion.RunStatusFailed,
			RunID:    r.runID,
			ThreadID: r.threadID,
		}
	}

	return nil
}

// Close closes the underlying response body.
func (r *streamReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.response.Body.Close()
}
