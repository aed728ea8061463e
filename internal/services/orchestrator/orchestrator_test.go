// Package orchestrator_test provides unit tests for the AI response
// orchestrator.
package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/completion"
	"github.com/brightdesk/support-service/internal/services/orchestrator"
)

// scriptStream replays a fixed event sequence. With a nil tail error the
// reader blocks after the last event until the stream is closed, which
// simulates a stalled provider.
type scriptStream struct {
	mu     sync.Mutex
	events []*completion.StreamEvent
	idx    int
	tail   error

	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptStream(tail error, events ...*completion.StreamEvent) *scriptStream {
	return &scriptStream{events: events, tail: tail, closed: make(chan struct{})}
}

func (s *scriptStream) Read() (*completion.StreamEvent, error) {
	s.mu.Lock()
	if s.idx < len(s.events) {
		ev := s.events[s.idx]
		s.idx++
		s.mu.Unlock()
		return ev, nil
	}
	tail := s.tail
	s.mu.Unlock()

	if tail != nil {
		return nil, tail
	}
	<-s.closed
	return nil, io.EOF
}

func (s *scriptStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type toolSubmission struct {
	RunID   string
	CallID  string
	Payload string
}

// fakeCompletionClient serves one scripted stream and a fixed poll result.
type fakeCompletionClient struct {
	mu        sync.Mutex
	stream    *scriptStream
	streamErr error
	poll      *completion.RunResult
	pollErr   error
	polled    int
	tools     []toolSubmission
}

func (c *fakeCompletionClient) StreamCompletion(ctx context.Context, req *completion.Request) (completion.StreamReader, error) {
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	return c.stream, nil
}

func (c *fakeCompletionClient) PollStatus(ctx context.Context, runID string) (*completion.RunResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polled++
	if c.pollErr != nil {
		return nil, c.pollErr
	}
	return c.poll, nil
}

func (c *fakeCompletionClient) SubmitToolResult(ctx context.Context, runID, toolCallID, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, toolSubmission{RunID: runID, CallID: toolCallID, Payload: payload})
	return nil
}

func (c *fakeCompletionClient) Close() error { return nil }

func (c *fakeCompletionClient) submissions() []toolSubmission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]toolSubmission(nil), c.tools...)
}

func delta(text string) *completion.StreamEvent {
	return &completion.StreamEvent{Type: completion.EventTextDelta, TextDelta: text}
}

func created(runID, threadID string) *completion.StreamEvent {
	return &completion.StreamEvent{
		Type:     completion.EventStatusChange,
		Status:   completion.RunStatusInProgress,
		RunID:    runID,
		ThreadID: threadID,
	}
}

func newRequest() *orchestrator.Request {
	return &orchestrator.Request{
		ConversationID: "conv-1",
		TenantID:       "tenant-1",
		Message:        "Where is my order?",
		AI:             &models.TenantAIConfig{Persona: "friendly"},
		Model:          "gpt-4o-mini",
	}
}

func newOrchestrator(client completion.Client, opts orchestrator.Options) *orchestrator.Orchestrator {
	return orchestrator.New(client, zerolog.Nop(), opts)
}

func TestGenerate_StreamedReply(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(io.EOF,
			created("run-1", "thread-1"),
			delta("Your order ships "),
			delta("on Monday."),
			&completion.StreamEvent{Type: completion.EventStatusChange, Status: completion.RunStatusCompleted},
		),
	}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindReply, outcome.Kind)
	assert.Equal(t, "Your order ships on Monday.", outcome.Text)
	assert.Equal(t, "thread-1", outcome.ThreadID)
	require.NotNil(t, outcome.Metadata)
	assert.Equal(t, "run-1", outcome.Metadata.RunID)
	assert.Equal(t, "gpt-4o-mini", outcome.Metadata.Model)
}

func TestGenerate_ToolCallEscalates(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(io.EOF,
			created("run-1", ""),
			&completion.StreamEvent{
				Type: completion.EventToolCall,
				ToolCall: &completion.ToolCall{
					ID:        "call-1",
					Name:      "escalate",
					Arguments: `{"reason":"customer asked for a person"}`,
				},
			},
			delta("One moment while I get someone for you."),
		),
	}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindHandoff, outcome.Kind)
	assert.Equal(t, "customer asked for a person", outcome.Reason)
	assert.Equal(t, "One moment while I get someone for you.", outcome.Text)

	subs := client.submissions()
	require.Len(t, subs, 1, "escalation tool call is acknowledged")
	assert.Equal(t, "run-1", subs[0].RunID)
	assert.Equal(t, "call-1", subs[0].CallID)
}

func TestGenerate_PhraseEscalates(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(io.EOF,
			created("run-1", ""),
			delta("I'm sorry I couldn't help. I will transfer you to a human agent now."),
		),
	}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindHandoff, outcome.Kind)
	assert.Equal(t, models.HandoffReasonEscalation, outcome.Reason)
}

func TestGenerate_TenantPhraseEscalates(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(io.EOF,
			created("run-1", ""),
			delta("Let me loop in our concierge desk for that."),
		),
	}
	o := newOrchestrator(client, orchestrator.Options{})

	req := newRequest()
	req.AI.EscalationPhrases = []string{"concierge desk"}
	outcome := o.Generate(context.Background(), req)

	assert.Equal(t, orchestrator.KindHandoff, outcome.Kind)
}

func TestGenerate_StripsLeakedInternals(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(io.EOF,
			created("run-1", ""),
			delta("The vector store search returned no results. "),
			delta("Your order ships on Monday."),
		),
	}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindReply, outcome.Kind)
	assert.Equal(t, "Your order ships on Monday.", outcome.Text)
	assert.NotContains(t, outcome.Text, "vector store")
}

func TestGenerate_AllNoiseIsTransientFailure(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(io.EOF,
			delta("file_search returned nothing useful."),
		),
	}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindFailure, outcome.Kind)
	assert.True(t, outcome.Transient, "an empty generation deserves a retry")
}

func TestGenerate_StallFallsBackToPolling(t *testing.T) {
	client := &fakeCompletionClient{
		// The stream announces the run then goes silent.
		stream: newScriptStream(nil, created("run-1", "thread-1")),
		poll: &completion.RunResult{
			RunID:        "run-1",
			Status:       completion.RunStatusCompleted,
			Text:         "Polled answer.",
			TokensInput:  12,
			TokensOutput: 5,
		},
	}
	o := newOrchestrator(client, orchestrator.Options{
		StreamTimeout:     2 * time.Second,
		StallAfter:        20 * time.Millisecond,
		StallPollInterval: 5 * time.Millisecond,
	})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindReply, outcome.Kind)
	assert.Equal(t, "Polled answer.", outcome.Text)
	require.NotNil(t, outcome.Metadata)
	assert.Equal(t, 12, outcome.Metadata.TokensInput)
	assert.Equal(t, 5, outcome.Metadata.TokensOutput)
}

func TestGenerate_PolledRunFailure(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(nil, created("run-1", "")),
		poll:   &completion.RunResult{RunID: "run-1", Status: completion.RunStatusFailed},
	}
	o := newOrchestrator(client, orchestrator.Options{
		StreamTimeout:     2 * time.Second,
		StallAfter:        20 * time.Millisecond,
		StallPollInterval: 5 * time.Millisecond,
	})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindFailure, outcome.Kind)
	assert.True(t, outcome.Transient)
}

func TestGenerate_HardTimeout(t *testing.T) {
	client := &fakeCompletionClient{
		// Silent stream with no run to poll.
		stream: newScriptStream(nil),
	}
	o := newOrchestrator(client, orchestrator.Options{
		StreamTimeout:     30 * time.Millisecond,
		StallAfter:        10 * time.Millisecond,
		StallPollInterval: 5 * time.Millisecond,
	})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindFailure, outcome.Kind)
	assert.True(t, outcome.Transient)

	domainErr, ok := domainerrors.GetDomainError(outcome.Err)
	require.True(t, ok)
	assert.Equal(t, domainerrors.ErrCodeTimeout, domainErr.Code)
}

func TestGenerate_StreamOpenFailure(t *testing.T) {
	client := &fakeCompletionClient{streamErr: errors.New("connection refused")}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindFailure, outcome.Kind)
	assert.True(t, outcome.Transient)
}

func TestGenerate_StreamedRunFailure(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(io.EOF,
			created("run-1", ""),
			&completion.StreamEvent{Type: completion.EventStatusChange, Status: completion.RunStatusFailed},
		),
	}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindFailure, outcome.Kind)
	assert.True(t, outcome.Transient)
}

func TestGenerate_BrokenStreamWithoutRunIsLost(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(errors.New("connection reset")),
	}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindFailure, outcome.Kind)
	assert.True(t, outcome.Transient)
}

// floodStream announces a run, goes silent until polling starts, then
// produces deltas faster than anyone drains them.
type floodStream struct {
	mu      sync.Mutex
	sentRun bool

	flood     chan struct{}
	floodOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

func newFloodStream() *floodStream {
	return &floodStream{flood: make(chan struct{}), closed: make(chan struct{})}
}

func (s *floodStream) startFlood() {
	s.floodOnce.Do(func() { close(s.flood) })
}

func (s *floodStream) Read() (*completion.StreamEvent, error) {
	s.mu.Lock()
	if !s.sentRun {
		s.sentRun = true
		s.mu.Unlock()
		return created("run-1", "thread-1"), nil
	}
	s.mu.Unlock()

	select {
	case <-s.closed:
		return nil, io.EOF
	case <-s.flood:
	}
	select {
	case <-s.closed:
		return nil, io.EOF
	default:
		return delta("x"), nil
	}
}

func (s *floodStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// floodClient starts the stream flood when the status poll begins, so
// the events buffer fills while the receiver is stuck in PollStatus.
type floodClient struct {
	stream *floodStream
	poll   *completion.RunResult
}

func (c *floodClient) StreamCompletion(ctx context.Context, req *completion.Request) (completion.StreamReader, error) {
	return c.stream, nil
}

func (c *floodClient) PollStatus(ctx context.Context, runID string) (*completion.RunResult, error) {
	c.stream.startFlood()
	time.Sleep(50 * time.Millisecond)
	return c.poll, nil
}

func (c *floodClient) SubmitToolResult(ctx context.Context, runID, toolCallID, payload string) error {
	return nil
}

func (c *floodClient) Close() error { return nil }

func TestGenerate_PumpExitsAfterPollFallback(t *testing.T) {
	before := runtime.NumGoroutine()

	client := &floodClient{
		stream: newFloodStream(),
		poll: &completion.RunResult{
			RunID:  "run-1",
			Status: completion.RunStatusCompleted,
			Text:   "Polled answer.",
		},
	}
	o := newOrchestrator(client, orchestrator.Options{
		StreamTimeout:     2 * time.Second,
		StallAfter:        20 * time.Millisecond,
		StallPollInterval: 5 * time.Millisecond,
	})

	outcome := o.Generate(context.Background(), newRequest())

	require.Equal(t, orchestrator.KindReply, outcome.Kind)
	assert.Equal(t, "Polled answer.", outcome.Text)

	// The pump must not stay parked on the events channel once the
	// attempt has finished draining it.
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond, "stream pump goroutine still alive after Generate returned")
}

func TestGenerate_BrokenStreamRecoversViaPoll(t *testing.T) {
	client := &fakeCompletionClient{
		stream: newScriptStream(errors.New("connection reset"),
			created("run-1", ""),
		),
		poll: &completion.RunResult{
			RunID:  "run-1",
			Status: completion.RunStatusCompleted,
			Text:   "Recovered from the run record.",
		},
	}
	o := newOrchestrator(client, orchestrator.Options{})

	outcome := o.Generate(context.Background(), newRequest())

	assert.Equal(t, orchestrator.KindReply, outcome.Kind)
	assert.Equal(t, "Recovered from the run record.", outcome.Text)
}
