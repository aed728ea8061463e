// Package dispatch connects customer messages to AI response attempts:
// the debounce gate, the admission check, the retry governor, and the
// application of each attempt's outcome to the conversation.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/admission"
	"github.com/brightdesk/support-service/internal/services/conversation"
	"github.com/brightdesk/support-service/internal/services/orchestrator"
	"github.com/brightdesk/support-service/internal/services/platform"
)

// aiUnavailableMessage is the fixed customer-facing text posted when
// the retry budget is exhausted. The triggering error never surfaces.
const aiUnavailableMessage = "Our AI assistant is temporarily unavailable. A member of our support team will assist you shortly."

// jobTimeout bounds one orchestration job end to end, retries included.
const jobTimeout = 3 * time.Minute

// Responder runs one AI response attempt.
type Responder interface {
	Generate(ctx context.Context, req *orchestrator.Request) *orchestrator.Outcome
}

// Admitter gates attempts before any completion call and records
// delivered responses against the tenant's quota.
type Admitter interface {
	Admit(ctx context.Context, tenantID string) (*admission.Decision, error)
	RecordResponse(ctx context.Context, tenantID string) error
}

// Pipeline is the AI response pipeline.
type Pipeline struct {
	convs       *conversation.Service
	platform    platform.Client
	admitter    Admitter
	responder   Responder
	scheduler   Scheduler
	broadcaster *Broadcaster
	logger      zerolog.Logger

	debounceDelay time.Duration
	maxAttempts   int
	backoffBase   time.Duration
	defaultModel  string
	historyLimit  int64

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds the pipeline configuration.
type Config struct {
	Conversations *conversation.Service
	Platform      platform.Client
	Admitter      Admitter
	Responder     Responder
	Scheduler     Scheduler
	Broadcaster   *Broadcaster
	Logger        zerolog.Logger

	DebounceDelay time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	DefaultModel  string
}

// NewPipeline creates the AI response pipeline.
func NewPipeline(cfg *Config) *Pipeline {
	debounce := cfg.DebounceDelay
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase == 0 {
		backoffBase = time.Second
	}

	return &Pipeline{
		convs:         cfg.Conversations,
		platform:      cfg.Platform,
		admitter:      cfg.Admitter,
		responder:     cfg.Responder,
		scheduler:     cfg.Scheduler,
		broadcaster:   cfg.Broadcaster,
		logger:        cfg.Logger.With().Str("component", "dispatch").Logger(),
		debounceDelay: debounce,
		maxAttempts:   maxAttempts,
		backoffBase:   backoffBase,
		defaultModel:  cfg.DefaultModel,
		historyLimit:  20,
		sleep:         sleepCtx,
	}
}

// HandleCustomerMessage runs the debounce gate for a freshly recorded
// customer message. One orchestration job survives per burst: each new
// message cancels the previously scheduled job, if it has not started,
// and schedules a fresh one answering the latest message.
func (p *Pipeline) HandleCustomerMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	p.broadcaster.Publish(conv.ID, Event{Type: EventMessage, Message: msg})

	if conv.Status != models.StatusAIHandling {
		// A human owns the conversation; nothing to schedule.
		return
	}
	if conv.AIProcessing {
		// An attempt is already in flight; the customer message is in
		// the log and the next trigger will pick it up.
		return
	}

	if conv.PendingJobID != "" {
		// Best-effort: the job may already be running, in which case it
		// has cleared its own handle and this cancel targets a dead one.
		if !p.scheduler.Cancel(conv.PendingJobID) {
			p.logger.Debug().
				Str("conversation_id", conv.ID).
				Str("job_id", conv.PendingJobID).
				Msg("debounce cancel missed, job already ran")
		}
	}

	conversationID := conv.ID
	handle := p.scheduler.Schedule(p.debounceDelay, func(jobCtx context.Context, h string) {
		p.runJob(jobCtx, conversationID, h)
	})

	if err := p.convs.SetPendingJob(ctx, conv.ID, handle); err != nil {
		p.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to record pending job")
	}
}

// runJob is the body of one orchestration job.
func (p *Pipeline) runJob(ctx context.Context, conversationID, handle string) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	logger := p.logger.With().Str("conversation_id", conversationID).Logger()

	// Clearing the handle is the very first side effect, so any late
	// cancellation attempt targets a dead handle.
	if err := p.convs.ClearPendingJob(ctx, conversationID, handle); err != nil {
		logger.Warn().Err(err).Msg("failed to clear pending job handle")
	}

	conv, err := p.convs.GetConversation(ctx, conversationID)
	if err != nil {
		logger.Error().Err(err).Msg("job could not load conversation")
		return
	}
	if conv.Status != models.StatusAIHandling {
		logger.Debug().Str("status", string(conv.Status)).Msg("skipping job, conversation not AI-owned")
		return
	}

	tenantCfg, err := p.platform.GetTenantConfig(ctx, conv.TenantID)
	if err != nil {
		logger.Error().Err(err).Str("tenant_id", conv.TenantID).Msg("failed to load tenant config")
		return
	}

	// Admission runs before the processing flag is set so a denial never
	// leaves the conversation stuck in processing.
	decision, err := p.admitter.Admit(ctx, conv.TenantID)
	if err != nil {
		logger.Error().Err(err).Msg("admission check failed")
		return
	}
	if !decision.Allowed {
		p.denyAndHandOff(ctx, conv, decision, logger)
		return
	}

	began, err := p.convs.BeginProcessing(ctx, conversationID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set processing flag")
		return
	}
	if !began {
		logger.Debug().Msg("skipping job, attempt already in flight or owner changed")
		return
	}
	defer func() {
		if err := p.convs.EndProcessing(ctx, conversationID); err != nil {
			logger.Error().Err(err).Msg("failed to clear processing flag")
		}
	}()

	req, err := p.buildRequest(ctx, conv, tenantCfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build orchestration request")
		return
	}

	outcome := p.runWithRetries(ctx, req, logger)
	p.applyOutcome(ctx, conv, outcome, logger)
}

// runWithRetries wraps the responder with the retry budget. Backoff
// doubles per attempt and only transient failures are retried. The
// processing flag stays up across the whole loop.
func (p *Pipeline) runWithRetries(ctx context.Context, req *orchestrator.Request, logger zerolog.Logger) *orchestrator.Outcome {
	var outcome *orchestrator.Outcome

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		outcome = p.responder.Generate(ctx, req)
		if outcome.Kind != orchestrator.KindFailure {
			return outcome
		}

		logger.Warn().
			Err(outcome.Err).
			Int("attempt", attempt).
			Bool("transient", outcome.Transient).
			Msg("AI response attempt failed")

		if !outcome.Transient || attempt == p.maxAttempts {
			break
		}
		if err := p.sleep(ctx, p.backoffBase<<uint(attempt-1)); err != nil {
			break
		}
	}

	return outcome
}

// applyOutcome commits one attempt's terminal outcome to the conversation.
func (p *Pipeline) applyOutcome(ctx context.Context, conv *models.Conversation, outcome *orchestrator.Outcome, logger zerolog.Logger) {
	switch outcome.Kind {
	case orchestrator.KindReply:
		msg, err := p.convs.AppendAIReply(ctx, conv.ID, outcome.Text, outcome.Metadata)
		if err != nil {
			if domainerrors.IsStateConflict(err) {
				// A human took over mid-generation; the reply is discarded.
				logger.Info().Msg("discarding AI reply, conversation changed owner")
				return
			}
			logger.Error().Err(err).Msg("failed to persist AI reply")
			return
		}
		p.afterReply(ctx, conv, outcome, logger)
		p.broadcaster.Publish(conv.ID, Event{Type: EventMessage, Message: msg})

	case orchestrator.KindHandoff:
		if outcome.Text != "" {
			msg, err := p.convs.AppendAIReply(ctx, conv.ID, outcome.Text, outcome.Metadata)
			if err != nil {
				if domainerrors.IsStateConflict(err) {
					logger.Info().Msg("discarding AI reply, conversation changed owner")
					return
				}
				logger.Error().Err(err).Msg("failed to persist AI reply before handoff")
			} else {
				p.afterReply(ctx, conv, outcome, logger)
				p.broadcaster.Publish(conv.ID, Event{Type: EventMessage, Message: msg})
			}
		}
		p.handOff(ctx, conv, outcome.Reason, logger)

	case orchestrator.KindFailure:
		owned, err := p.convs.StillAIOwned(ctx, conv.ID)
		if err != nil || !owned {
			logger.Info().Msg("skipping failure handoff, conversation changed owner")
			return
		}
		if msg, err := p.convs.AppendSystemMessage(ctx, conv.ID, models.SystemEventHandoff, aiUnavailableMessage); err != nil {
			logger.Error().Err(err).Msg("failed to post AI-unavailable message")
		} else {
			p.broadcaster.Publish(conv.ID, Event{Type: EventMessage, Message: msg})
		}
		p.handOff(ctx, conv, models.HandoffReasonGenerationFailed, logger)
	}
}

// afterReply records usage and caches the provider thread handle.
func (p *Pipeline) afterReply(ctx context.Context, conv *models.Conversation, outcome *orchestrator.Outcome, logger zerolog.Logger) {
	if err := p.admitter.RecordResponse(ctx, conv.TenantID); err != nil {
		logger.Warn().Err(err).Msg("failed to record AI response usage")
	}
	if outcome.ThreadID != "" && outcome.ThreadID != conv.ExternalThreadID {
		if err := p.convs.SetExternalThread(ctx, conv.ID, outcome.ThreadID); err != nil {
			logger.Warn().Err(err).Msg("failed to cache provider thread handle")
		}
	}
}

// denyAndHandOff handles an admission rejection: fixed customer text,
// then a handoff with the denial's reason. Never retried.
func (p *Pipeline) denyAndHandOff(ctx context.Context, conv *models.Conversation, decision *admission.Decision, logger zerolog.Logger) {
	logger.Info().Str("denial", string(decision.Denial)).Msg("AI attempt denied by admission control")

	if msg, err := p.convs.AppendSystemMessage(ctx, conv.ID, models.SystemEventHandoff, decision.CustomerMessage); err != nil {
		logger.Error().Err(err).Msg("failed to post admission denial message")
	} else {
		p.broadcaster.Publish(conv.ID, Event{Type: EventMessage, Message: msg})
	}
	p.handOff(ctx, conv, decision.HandoffReason, logger)
}

// handOff transitions the conversation to the human queue and publishes
// the status change.
func (p *Pipeline) handOff(ctx context.Context, conv *models.Conversation, reason string, logger zerolog.Logger) {
	if err := p.convs.RequestHandoff(ctx, conv.ID, reason, ""); err != nil {
		logger.Warn().Err(err).Str("reason", reason).Msg("handoff failed")
		return
	}
	if updated, err := p.convs.GetConversation(ctx, conv.ID); err == nil {
		p.broadcaster.Publish(conv.ID, Event{Type: EventStatus, Conversation: updated})
	}
}

// buildRequest assembles the orchestration request from the latest
// customer message and recent history.
func (p *Pipeline) buildRequest(ctx context.Context, conv *models.Conversation, tenantCfg *platform.TenantConfig) (*orchestrator.Request, error) {
	messages, err := p.convs.ListMessages(ctx, conv.ID, p.historyLimit)
	if err != nil {
		return nil, err
	}

	// Newest first: the first customer message found is the latest,
	// which is the one this burst answers.
	var latest *models.Message
	for _, m := range messages {
		if m.Role == models.RoleCustomer {
			latest = m
			break
		}
	}
	if latest == nil {
		return nil, domainerrors.NewInternalError("no customer message to answer", nil)
	}

	history := make([]models.ChatHistoryEntry, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == models.RoleSystem {
			continue
		}
		if m.ID == latest.ID {
			// The message being answered is passed separately.
			continue
		}
		history = append(history, m.ToChatHistoryEntry())
	}

	model := tenantCfg.AI.Model
	if model == "" {
		model = p.defaultModel
	}

	return &orchestrator.Request{
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		Message:        latest.Content,
		History:        history,
		ThreadID:       conv.ExternalThreadID,
		AI:             &tenantCfg.AI,
		Model:          model,
		MaxTokens:      tenantCfg.AI.MaxTokens,
	}, nil
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
