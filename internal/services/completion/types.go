// Package completion defines the completion provider interface used by
// the AI response orchestrator.
package completion

import (
	"context"

	"github.com/brightdesk/support-service/internal/domain/models"
)

// EventType represents the type of stream event.
type EventType string

const (
	// EventTextDelta carries a chunk of generated text.
	EventTextDelta EventType = "text_delta"
	// EventToolCall carries a tool invocation requested by the model.
	EventToolCall EventType = "tool_call"
	// EventStatusChange carries a run status update.
	EventStatusChange EventType = "status_change"
)

// RunStatus represents the provider-side state of one generation run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// ToolCall is a structured tool invocation emitted by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// StreamEvent is one event read from the completion stream.
type StreamEvent struct {
	Type      EventType
	TextDelta string
	ToolCall  *ToolCall
	Status    RunStatus
	// RunID identifies the provider run once known.
	RunID string
	// ThreadID is the provider conversation handle, when the provider
	// maintains one.
	ThreadID string
}

// Request describes one completion attempt.
type Request struct {
	// Instructions is the composed system instruction set.
	Instructions string
	// History is the recent conversation history, oldest first.
	History []models.ChatHistoryEntry
	// Message is the customer message being answered.
	Message string
	// ThreadID is the opaque provider conversation handle, if known.
	// History is always supplied as well; the handle is an optimization.
	ThreadID string

	Model     string
	MaxTokens int
}

// RunResult is the provider's own view of a run, used by the polling
// fallback when the stream stalls.
type RunResult struct {
	RunID  string
	Status RunStatus
	// Text is the full output text, available once Status is completed.
	Text string
	// TokensInput/TokensOutput are usage counters when reported.
	TokensInput  int
	TokensOutput int
}

// StreamReader reads stream events one at a time. Read returns io.EOF
// when the stream is exhausted.
type StreamReader interface {
	Read() (*StreamEvent, error)
	Close() error
}

// Client is the completion provider interface.
type Client interface {
	// StreamCompletion starts a generation run and returns a reader for
	// its event stream.
	StreamCompletion(ctx context.Context, req *Request) (StreamReader, error)

	// PollStatus fetches the provider's view of a run. Used as the
	// fallback source of truth when streaming stalls.
	PollStatus(ctx context.Context, runID string) (*RunResult, error)

	// SubmitToolResult acknowledges a tool call so the provider can
	// finish the run.
	SubmitToolResult(ctx context.Context, runID, toolCallID string, payload string) error

	// Close releases any resources held by the client.
	Close() error
}
