// Package conversation implements the conversation state machine. All
// status transitions, the processing flag, and the pending-job handle
// are mutated here and nowhere else, so the single-owner invariant is
// enforced in one place.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brightdesk/support-service/internal/core/lock"
	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/notify"
	"github.com/brightdesk/support-service/internal/services/platform"
	"github.com/brightdesk/support-service/internal/services/store"
)

// QuotaGuard answers whether a tenant's monthly AI allowance is used up.
// Consulted by the handback-to-AI transition guard.
type QuotaGuard interface {
	UsageExceeded(ctx context.Context, tenantID string) (bool, error)
}

// Service is the conversation state machine.
type Service struct {
	store    store.ConversationStore
	locks    lock.Manager
	platform platform.Client
	quota    QuotaGuard
	notifier notify.Sender
	logger   zerolog.Logger

	lockTTL  time.Duration
	lockWait time.Duration
}

// Config holds the service configuration.
type Config struct {
	Store    store.ConversationStore
	Locks    lock.Manager
	Platform platform.Client
	Quota    QuotaGuard
	Notifier notify.Sender
	Logger   zerolog.Logger
	LockTTL  time.Duration
	LockWait time.Duration
}

// NewService creates the conversation state machine service.
func NewService(cfg *Config) *Service {
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 10 * time.Second
	}
	lockWait := cfg.LockWait
	if lockWait == 0 {
		lockWait = 3 * time.Second
	}

	return &Service{
		store:    cfg.Store,
		locks:    cfg.Locks,
		platform: cfg.Platform,
		quota:    cfg.Quota,
		notifier: cfg.Notifier,
		logger:   cfg.Logger.With().Str("component", "conversation").Logger(),
		lockTTL:  lockTTL,
		lockWait: lockWait,
	}
}

// GetConversation returns the conversation or a NOT_FOUND error.
func (s *Service) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// EnsureConversation finds or creates the conversation for a
// (tenant, customer) pair. Safe under concurrent first contact: the
// unique index makes the second insert fail, after which the winner's
// document is read back.
func (s *Service) EnsureConversation(ctx context.Context, tenantID, customerID string) (*models.Conversation, error) {
	conv, err := s.store.FindByCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = models.NewConversation(uuid.New().String(), tenantID, customerID)
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		// Lost the race on first contact: read back the winner.
		existing, findErr := s.store.FindByCustomer(ctx, tenantID, customerID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	s.logger.Info().
		Str("conversation_id", conv.ID).
		Str("tenant_id", tenantID).
		Msg("conversation created")
	return conv, nil
}

// RecordCustomerMessage appends a customer message to the log. A message
// arriving on a resolved conversation reopens it into ai_handling.
func (s *Service) RecordCustomerMessage(ctx context.Context, conv *models.Conversation, content, attachmentURL string) (*models.Message, *models.Conversation, error) {
	msg := models.NewCustomerMessage(
		uuid.New().String(), conv.TenantID, conv.ID, conv.CustomerID, content, attachmentURL)

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	if err := s.store.PatchConversation(ctx, conv.ID, store.Fields{
		"lastCustomerMessageAt": now,
		"messageCount":          store.Inc(1),
		"updatedAt":             now,
	}); err != nil {
		return nil, nil, err
	}

	if conv.Status == models.StatusResolved {
		if err := s.reopen(ctx, conv); err != nil {
			return nil, nil, err
		}
	}

	updated, err := s.store.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return msg, updated, nil
}

// reopen moves a resolved conversation back to ai_handling. Triggered by
// a new customer message, never by an explicit action.
func (s *Service) reopen(ctx context.Context, conv *models.Conversation) error {
	matched, err := s.store.PatchConversationIf(ctx, conv.ID,
		store.Fields{"status": models.StatusResolved},
		store.Fields{
			"status":        models.StatusAIHandling,
			"handoffReason": "",
			"updatedAt":     time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	if !matched {
		// Someone else reopened or transitioned first.
		return nil
	}

	s.appendAudit(ctx, conv, models.SystemEventHandoff, "Conversation reopened, AI assistant is handling")
	s.logger.Info().Str("conversation_id", conv.ID).Msg("conversation reopened")
	return nil
}

// RequestHandoff moves an AI-owned conversation into the human queue and
// notifies the tenant's agents. Optional customerMessage is posted as a
// system message visible to the customer before the audit record.
func (s *Service) RequestHandoff(ctx context.Context, conversationID, reason, customerMessage string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	matched, err := s.store.PatchConversationIf(ctx, conversationID,
		store.Fields{"status": models.StatusAIHandling},
		store.Fields{
			"status":        models.StatusAvailable,
			"handoffReason": reason,
			"updatedAt":     time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	if !matched {
		if conv.Status == models.StatusAvailable {
			// Already queued, nothing to do.
			return nil
		}
		return domainerrors.NewInvalidTransitionError(
			string(conv.Status), string(models.StatusAvailable), "conversation is not AI-owned")
	}

	if customerMessage != "" {
		s.appendAudit(ctx, conv, models.SystemEventHandoff, customerMessage)
	}
	s.appendAudit(ctx, conv, models.SystemEventHandoff,
		fmt.Sprintf("Conversation transferred to support team: %s", reason))

	s.notifyHandoff(ctx, conv, reason)

	s.logger.Info().
		Str("conversation_id", conversationID).
		Str("reason", reason).
		Msg("handoff to human queue")
	return nil
}

// Accept adds an agent to the conversation and gives them ownership.
// Idempotent per agent: re-accepting does not re-add the agent, re-emit
// the join message, or re-send the greeting. The first-join check and
// its writes run under a lease so two agents racing to join cannot both
// believe they are first.
func (s *Service) Accept(ctx context.Context, conversationID, agentID string) (*models.Conversation, error) {
	lease, err := s.locks.Acquire(ctx, "conversation:"+conversationID, s.lockTTL, s.lockWait)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.locks.Release(ctx, lease); releaseErr != nil {
			s.logger.Warn().Err(releaseErr).Str("conversation_id", conversationID).Msg("lease release failed")
		}
	}()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == models.StatusResolved {
		return nil, domainerrors.NewInvalidTransitionError(
			string(conv.Status), string(models.StatusSupportHandling), "conversation is resolved")
	}

	if conv.HasAgent(agentID) {
		// Re-accept: the agent is already a participant, emit nothing.
		return conv, nil
	}

	// The accept that moves the conversation into support_staff_handling
	// is the first join and carries the audit message plus greeting.
	// Agents joining an already-handled conversation are added silently.
	// An agent may also take over while the AI is mid-generation; the
	// in-flight attempt discards its result on the owner re-check.
	takesOwnership := conv.Status != models.StatusSupportHandling
	profile := s.agentProfile(ctx, conv.TenantID, agentID)

	if err := s.store.PatchConversation(ctx, conversationID, store.Fields{
		"status":    models.StatusSupportHandling,
		"agentIds":  append(append([]string{}, conv.AgentIDs...), agentID),
		"updatedAt": time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if takesOwnership {
		joinMsg := models.NewSystemMessage(
			uuid.New().String(), conv.TenantID, conv.ID,
			models.SystemEventAgentJoined,
			fmt.Sprintf("%s joined the conversation", profile.Name))
		if err := s.store.InsertMessage(ctx, joinMsg); err != nil {
			s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to insert join message")
		}

		if profile.AutoGreeting != "" {
			greeting := models.NewAgentMessage(
				uuid.New().String(), conv.TenantID, conv.ID,
				agentID, profile.Name, profile.AutoGreeting)
			// Greeting must render after the join marker even when both
			// are created in the same millisecond.
			greeting.CreatedAt = strictlyAfter(joinMsg.CreatedAt)
			if err := s.store.InsertMessage(ctx, greeting); err != nil {
				s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to insert greeting")
			}
		}
	}

	s.logger.Info().
		Str("conversation_id", conversationID).
		Str("agent_id", agentID).
		Msg("agent joined conversation")

	return s.store.GetConversation(ctx, conversationID)
}

// HandBackToQueue returns an agent-owned conversation to the human queue.
func (s *Service) HandBackToQueue(ctx context.Context, conversationID, agentID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	matched, err := s.store.PatchConversationIf(ctx, conversationID,
		store.Fields{"status": models.StatusSupportHandling},
		store.Fields{
			"status":    models.StatusAvailable,
			"agentIds":  []string{},
			"updatedAt": time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	if !matched {
		return domainerrors.NewInvalidTransitionError(
			string(conv.Status), string(models.StatusAvailable), "conversation is not agent-owned")
	}

	s.appendAudit(ctx, conv, models.SystemEventAgentLeft,
		fmt.Sprintf("%s returned the conversation to the queue", s.agentProfile(ctx, conv.TenantID, agentID).Name))
	return nil
}

// HandBackToAI returns an agent-owned conversation to the AI. Rejected
// when the tenant's monthly AI allowance is used up, so a handback never
// parks a conversation on an AI that cannot answer.
func (s *Service) HandBackToAI(ctx context.Context, conversationID, agentID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Status != models.StatusSupportHandling {
		return domainerrors.NewInvalidTransitionError(
			string(conv.Status), string(models.StatusAIHandling), "conversation is not agent-owned")
	}

	exceeded, err := s.quota.UsageExceeded(ctx, conv.TenantID)
	if err != nil {
		return err
	}
	if exceeded {
		return domainerrors.NewQuotaExceededError(conv.TenantID)
	}

	matched, err := s.store.PatchConversationIf(ctx, conversationID,
		store.Fields{"status": models.StatusSupportHandling},
		store.Fields{
			"status":        models.StatusAIHandling,
			"agentIds":      []string{},
			"handoffReason": "",
			"updatedAt":     time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	if !matched {
		return domainerrors.NewInvalidTransitionError(
			string(conv.Status), string(models.StatusAIHandling), "conversation changed owner")
	}

	s.appendAudit(ctx, conv, models.SystemEventAgentLeft,
		fmt.Sprintf("%s handed the conversation back to the AI assistant", s.agentProfile(ctx, conv.TenantID, agentID).Name))
	return nil
}

// Resolve marks the conversation resolved from any state.
func (s *Service) Resolve(ctx context.Context, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Status == models.StatusResolved {
		return nil
	}

	if err := s.store.PatchConversation(ctx, conversationID, store.Fields{
		"status":       models.StatusResolved,
		"agentIds":     []string{},
		"aiProcessing": false,
		"updatedAt":    time.Now().UTC(),
	}); err != nil {
		return err
	}

	s.appendAudit(ctx, conv, models.SystemEventIssueResolved, "Issue marked as resolved")
	s.logger.Info().Str("conversation_id", conversationID).Msg("conversation resolved")
	return nil
}

// BeginProcessing flips the processing flag on, but only when the
// conversation is AI-owned and not already processing. Returns false
// when another attempt is in flight or ownership moved.
func (s *Service) BeginProcessing(ctx context.Context, conversationID string) (bool, error) {
	now := time.Now().UTC()
	return s.store.PatchConversationIf(ctx, conversationID,
		store.Fields{"status": models.StatusAIHandling, "aiProcessing": false},
		store.Fields{
			"aiProcessing":          true,
			"aiProcessingStartedAt": now,
			"updatedAt":             now,
		})
}

// EndProcessing clears the processing flag unconditionally. Called
// exactly once after the retry loop ends, whatever its outcome.
func (s *Service) EndProcessing(ctx context.Context, conversationID string) error {
	return s.store.PatchConversation(ctx, conversationID, store.Fields{
		"aiProcessing":          false,
		"aiProcessingStartedAt": nil,
		"updatedAt":             time.Now().UTC(),
	})
}

// StillAIOwned reports whether the conversation is still in ai_handling
// with the processing flag up. The orchestration pipeline consults this
// before applying its outcome.
func (s *Service) StillAIOwned(ctx context.Context, conversationID string) (bool, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv.Status == models.StatusAIHandling && conv.AIProcessing, nil
}

// SetPendingJob records the handle of the scheduled debounce job.
func (s *Service) SetPendingJob(ctx context.Context, conversationID, jobID string) error {
	return s.store.PatchConversation(ctx, conversationID, store.Fields{
		"pendingJobId": jobID,
		"updatedAt":    time.Now().UTC(),
	})
}

// ClearPendingJob clears the pending-job handle, but only if it still
// names the given job. A newer job's handle is left untouched.
func (s *Service) ClearPendingJob(ctx context.Context, conversationID, jobID string) error {
	_, err := s.store.PatchConversationIf(ctx, conversationID,
		store.Fields{"pendingJobId": jobID},
		store.Fields{"pendingJobId": "", "updatedAt": time.Now().UTC()})
	return err
}

// AppendAIReply persists a generated reply. Returns a STATE_CONFLICT
// error when the conversation is no longer AI-owned, in which case the
// reply must be discarded, not retried.
func (s *Service) AppendAIReply(ctx context.Context, conversationID, text string, meta *models.AIMetadata) (*models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	matched, err := s.store.PatchConversationIf(ctx, conversationID,
		store.Fields{"status": models.StatusAIHandling, "aiProcessing": true},
		store.Fields{
			"messageCount": store.Inc(1),
			"updatedAt":    time.Now().UTC(),
		})
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, domainerrors.NewStateConflictError(conversationID)
	}

	msg := models.NewAIMessage(uuid.New().String(), conv.TenantID, conversationID, text, meta)
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// AppendAgentMessage persists a message written by a human agent.
func (s *Service) AppendAgentMessage(ctx context.Context, conversationID, agentID, content string) (*models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasAgent(agentID) {
		return nil, domainerrors.NewValidationError("agent is not a participant", agentID)
	}

	profile := s.agentProfile(ctx, conv.TenantID, agentID)
	msg := models.NewAgentMessage(uuid.New().String(), conv.TenantID, conversationID, agentID, profile.Name, content)
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.store.PatchConversation(ctx, conversationID, store.Fields{
		"messageCount": store.Inc(1),
		"updatedAt":    time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	return msg, nil
}

// AppendSystemMessage appends a customer-visible system message outside
// a status transition, e.g. admission denials and retry exhaustion.
func (s *Service) AppendSystemMessage(ctx context.Context, conversationID string, event models.SystemEventType, content string) (*models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msg := models.NewSystemMessage(uuid.New().String(), conv.TenantID, conversationID, event, content)
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SetExternalThread caches the completion provider's conversation handle.
func (s *Service) SetExternalThread(ctx context.Context, conversationID, threadID string) error {
	return s.store.PatchConversation(ctx, conversationID, store.Fields{
		"externalThreadId": threadID,
		"updatedAt":        time.Now().UTC(),
	})
}

// ListMessages returns up to limit messages, newest first.
func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error) {
	return s.store.ListRecentMessages(ctx, conversationID, limit)
}

// CountMessages counts messages in the conversation.
func (s *Service) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	return s.store.CountMessages(ctx, conversationID)
}

// RecentHistory returns up to limit messages as completion history,
// oldest first, with system audit messages filtered out.
func (s *Service) RecentHistory(ctx context.Context, conversationID string, limit int64) ([]models.ChatHistoryEntry, error) {
	messages, err := s.store.ListRecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	history := make([]models.ChatHistoryEntry, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleSystem {
			continue
		}
		history = append(history, messages[i].ToChatHistoryEntry())
	}
	return history, nil
}

// MarkMessageRead stamps a read receipt. Stamping twice returns the
// original timestamp unchanged.
func (s *Service) MarkMessageRead(ctx context.Context, messageID string, side store.ReceiptSide) (time.Time, error) {
	return s.store.StampReadReceipt(ctx, messageID, side, time.Now().UTC())
}

// appendAudit inserts the audit-trail system message for a transition.
// The insert is unconditional once the status write has succeeded; a
// failure here is logged, never propagated, so the transition is never
// half-rolled-back.
func (s *Service) appendAudit(ctx context.Context, conv *models.Conversation, event models.SystemEventType, content string) {
	msg := models.NewSystemMessage(uuid.New().String(), conv.TenantID, conv.ID, event, content)
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("conversation_id", conv.ID).
			Str("event", string(event)).
			Msg("failed to insert audit message")
	}
}

// notifyHandoff fans out a best-effort notification to the tenant's agents.
func (s *Service) notifyHandoff(ctx context.Context, conv *models.Conversation, reason string) {
	cfg, err := s.platform.GetTenantConfig(ctx, conv.TenantID)
	if err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", conv.TenantID).Msg("failed to load tenant config for notification")
		return
	}

	agentIDs := make([]string, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agentIDs = append(agentIDs, a.ID)
	}
	if len(agentIDs) == 0 {
		return
	}

	n := &notify.Notification{
		Title:    "Conversation needs a human agent",
		Body:     reason,
		DeepLink: fmt.Sprintf("/conversations/%s", conv.ID),
	}
	if err := s.notifier.Notify(ctx, conv.TenantID, agentIDs, n); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("handoff notification failed")
	}
}

// agentProfile resolves the agent's profile, falling back to the bare id
// when the platform service cannot supply one.
func (s *Service) agentProfile(ctx context.Context, tenantID, agentID string) *models.AgentProfile {
	cfg, err := s.platform.GetTenantConfig(ctx, tenantID)
	if err == nil {
		if profile, ok := cfg.AgentByID(agentID); ok {
			return profile
		}
	} else {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("failed to load tenant config for agent profile")
	}
	return &models.AgentProfile{ID: agentID, Name: agentID}
}

// strictlyAfter returns a timestamp guaranteed to sort after t.
func strictlyAfter(t time.Time) time.Time {
	now := time.Now().UTC()
	if now.After(t) {
		return now
	}
	return t.Add(time.Millisecond)
}
