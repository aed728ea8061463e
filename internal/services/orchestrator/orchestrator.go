// Package orchestrator runs one AI response attempt: compose the
// instruction set, stream the completion, watch for escalation intent,
// sanitize the output, and classify failures. It never mutates the
// conversation itself; the dispatch pipeline applies its outcome.
package orchestrator

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/completion"
)

// Kind is the terminal outcome class of one attempt.
type Kind string

const (
	// KindReply means a sanitized reply is ready to persist.
	KindReply Kind = "reply"
	// KindHandoff means the model asked for a human agent.
	KindHandoff Kind = "handoff"
	// KindFailure means the attempt failed; Transient says whether the
	// governor may retry it.
	KindFailure Kind = "failure"
)

// Outcome is the result of one attempt. Exactly one Kind applies.
type Outcome struct {
	Kind Kind

	// Text is the sanitized reply. On a handoff it may still carry the
	// model's parting reply, appended before the transition.
	Text string

	// Reason is the escalation reason when Kind is handoff.
	Reason string

	Metadata *models.AIMetadata

	// ThreadID is the provider conversation handle, when learned.
	ThreadID string

	Err       error
	Transient bool
}

// Request carries everything one attempt needs.
type Request struct {
	ConversationID string
	TenantID       string

	// Message is the customer message to answer.
	Message string
	// History is the recent conversation history, oldest first.
	History []models.ChatHistoryEntry
	// ThreadID is the provider conversation handle from earlier attempts.
	ThreadID string

	AI        *models.TenantAIConfig
	Model     string
	MaxTokens int
}

// Orchestrator supervises completion attempts.
type Orchestrator struct {
	client completion.Client
	logger zerolog.Logger

	streamTimeout     time.Duration
	stallAfter        time.Duration
	stallPollInterval time.Duration
}

// Options holds the orchestration timing knobs.
type Options struct {
	StreamTimeout     time.Duration
	StallAfter        time.Duration
	StallPollInterval time.Duration
}

// New creates an orchestrator.
func New(client completion.Client, logger zerolog.Logger, opts Options) *Orchestrator {
	if opts.StreamTimeout == 0 {
		opts.StreamTimeout = 45 * time.Second
	}
	if opts.StallAfter == 0 {
		opts.StallAfter = 10 * time.Second
	}
	if opts.StallPollInterval == 0 {
		opts.StallPollInterval = 2 * time.Second
	}
	return &Orchestrator{
		client:            client,
		logger:            logger.With().Str("component", "orchestrator").Logger(),
		streamTimeout:     opts.StreamTimeout,
		stallAfter:        opts.StallAfter,
		stallPollInterval: opts.StallPollInterval,
	}
}

// streamResult is one pumped stream read.
type streamResult struct {
	event *completion.StreamEvent
	err   error
}

// Generate runs one attempt to completion and returns its outcome.
// Streaming is an optimization: when the stream stalls, the provider's
// run status becomes the source of truth via polling.
func (o *Orchestrator) Generate(ctx context.Context, req *Request) *Outcome {
	started := time.Now()
	detector := NewEscalationDetector(req.AI)

	ctx, cancel := context.WithTimeout(ctx, o.streamTimeout)
	defer cancel()

	reader, err := o.client.StreamCompletion(ctx, &completion.Request{
		Instructions: ComposeInstructions(req.AI),
		History:      req.History,
		Message:      req.Message,
		ThreadID:     req.ThreadID,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("failed to open completion stream")
		return failure(err, true)
	}
	defer reader.Close()

	// done gives the pump an exit path that does not depend on this
	// goroutine still receiving: once Generate stops draining events
	// (poll fallback, broken stream), a full buffer would otherwise park
	// the pump on the send forever, pinning the response body with it.
	events := make(chan streamResult, 16)
	done := make(chan struct{})
	defer close(done)
	go pump(reader, events, done)

	var (
		text         strings.Builder
		runID        = ""
		threadID     = req.ThreadID
		runFailed    bool
		escalated    bool
		escalReason  string
		tokensInput  int
		tokensOutput int
	)

	stall := time.NewTimer(o.stallAfter)
	defer stall.Stop()

receive:
	for {
		select {
		case <-ctx.Done():
			o.logger.Warn().
				Str("conversation_id", req.ConversationID).
				Dur("elapsed", time.Since(started)).
				Msg("completion attempt hit hard timeout")
			return failure(domainerrors.NewTimeoutError("completion stream"), true)

		case res := <-events:
			if res.err == io.EOF {
				break receive
			}
			if res.err != nil {
				// Broken stream. If the run is known, polling can still
				// recover the result; otherwise the attempt is lost.
				o.logger.Warn().Err(res.err).Str("conversation_id", req.ConversationID).Msg("completion stream broke")
				if runID == "" {
					return failure(res.err, true)
				}
				break receive
			}

			ev := res.event
			if ev.RunID != "" {
				runID = ev.RunID
			}
			if ev.ThreadID != "" {
				threadID = ev.ThreadID
			}

			switch ev.Type {
			case completion.EventTextDelta:
				text.WriteString(ev.TextDelta)
				if !escalated {
					if reason, ok := detector.MatchText(text.String()); ok {
						escalated = true
						escalReason = reason
					}
				}

			case completion.EventToolCall:
				if reason, ok := detector.MatchToolCall(ev.ToolCall); ok {
					escalated = true
					escalReason = reason
					o.ackToolCall(ctx, runID, ev.ToolCall)
				}

			case completion.EventStatusChange:
				if ev.Status == completion.RunStatusFailed {
					runFailed = true
				}
			}

			resetTimer(stall, o.stallAfter)

		case <-stall.C:
			if runID == "" {
				// Nothing to poll yet; keep waiting for the stream until
				// the hard timeout fires.
				resetTimer(stall, o.stallPollInterval)
				continue
			}

			result, pollErr := o.client.PollStatus(ctx, runID)
			if pollErr != nil {
				o.logger.Warn().Err(pollErr).Str("run_id", runID).Msg("status poll failed")
				resetTimer(stall, o.stallPollInterval)
				continue
			}
			if !result.Status.Terminal() {
				resetTimer(stall, o.stallPollInterval)
				continue
			}
			if result.Status == completion.RunStatusFailed {
				return failure(domainerrors.NewServiceUnavailableError("completion provider", nil), true)
			}

			// Run finished but the stream went quiet. Use the polled text
			// when the stream captured nothing.
			if text.Len() == 0 {
				text.WriteString(result.Text)
			}
			tokensInput = result.TokensInput
			tokensOutput = result.TokensOutput
			break receive
		}
	}

	if runFailed {
		return failure(domainerrors.NewServiceUnavailableError("completion provider", nil), true)
	}

	// The stream can end without ever carrying text, e.g. when the run
	// completes between the last delta and EOF. Fall back to the run
	// record before declaring failure.
	if text.Len() == 0 && runID != "" {
		if result, pollErr := o.client.PollStatus(ctx, runID); pollErr == nil && result.Status == completion.RunStatusCompleted {
			text.WriteString(result.Text)
			tokensInput = result.TokensInput
			tokensOutput = result.TokensOutput
		}
	}

	sanitized, stripped := Sanitize(text.String())
	if stripped {
		// The raw text stays in the logs for diagnosis but never reaches
		// the customer.
		o.logger.Warn().
			Str("conversation_id", req.ConversationID).
			Str("run_id", runID).
			Str("raw_text", text.String()).
			Msg("stripped internal jargon from AI reply")
	}

	if !escalated {
		if reason, ok := detector.MatchText(sanitized); ok {
			escalated = true
			escalReason = reason
		}
	}

	meta := &models.AIMetadata{
		Model:        req.Model,
		TokensInput:  tokensInput,
		TokensOutput: tokensOutput,
		LatencyMs:    time.Since(started).Milliseconds(),
		RunID:        runID,
	}

	if escalated {
		return &Outcome{
			Kind:     KindHandoff,
			Text:     sanitized,
			Reason:   escalReason,
			Metadata: meta,
			ThreadID: threadID,
		}
	}

	if sanitized == "" {
		// Everything the model produced was machinery noise.
		return failure(domainerrors.NewInternalError("generation produced no usable text", nil), true)
	}

	return &Outcome{
		Kind:     KindReply,
		Text:     sanitized,
		Metadata: meta,
		ThreadID: threadID,
	}
}

// ackToolCall acknowledges an escalation tool call so the provider can
// finish the run. Best-effort.
func (o *Orchestrator) ackToolCall(ctx context.Context, runID string, call *completion.ToolCall) {
	if runID == "" {
		return
	}
	if err := o.client.SubmitToolResult(ctx, runID, call.ID, `{"acknowledged":true}`); err != nil {
		o.logger.Warn().Err(err).Str("run_id", runID).Str("tool", call.Name).Msg("failed to ack escalation tool call")
	}
}

// pump reads the stream into a channel until EOF, an error, or the
// receiver signalling it is done listening.
func pump(reader completion.StreamReader, out chan<- streamResult, done <-chan struct{}) {
	for {
		ev, err := reader.Read()
		select {
		case out <- streamResult{event: ev, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// resetTimer safely rearms a timer that may have fired.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// failure builds a failure outcome.
func failure(err error, fallbackTransient bool) *Outcome {
	transient := fallbackTransient
	if domainerrors.IsDomainError(err) {
		transient = domainerrors.IsTransient(err)
	}
	return &Outcome{
		Kind:      KindFailure,
		Err:       err,
		Transient: transient,
	}
}
