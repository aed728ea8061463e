// Package conversation_test provides unit tests for the conversation
// state machine.
package conversation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/conversation"
	"github.com/brightdesk/support-service/internal/services/store"
	"github.com/brightdesk/support-service/internal/testutil"
)

type fixture struct {
	svc      *conversation.Service
	store    *testutil.MemStore
	platform *testutil.FakePlatform
	notifier *testutil.FakeNotifier
	quota    *testutil.FakeQuota
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    testutil.NewMemStore(),
		platform: testutil.NewFakePlatform(),
		notifier: &testutil.FakeNotifier{},
		quota:    &testutil.FakeQuota{},
	}
	f.svc = conversation.NewService(&conversation.Config{
		Store:    f.store,
		Locks:    testutil.NewFakeLocks(),
		Platform: f.platform,
		Quota:    f.quota,
		Notifier: f.notifier,
		Logger:   zerolog.Nop(),
	})
	return f
}

// newConversation creates a conversation and forces it into the given status.
func (f *fixture) newConversation(t *testing.T, status models.ConversationStatus) *models.Conversation {
	t.Helper()
	ctx := context.Background()

	conv, err := f.svc.EnsureConversation(ctx, "tenant-1", "customer-1")
	require.NoError(t, err)

	if status != models.StatusAIHandling {
		require.NoError(t, f.store.PatchConversation(ctx, conv.ID, store.Fields{"status": status}))
	}

	conv, err = f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	return conv
}

func filterMessages(msgs []*models.Message, keep func(*models.Message) bool) []*models.Message {
	var out []*models.Message
	for _, m := range msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func systemMessages(msgs []*models.Message, event models.SystemEventType) []*models.Message {
	return filterMessages(msgs, func(m *models.Message) bool {
		return m.Role == models.RoleSystem && m.SystemEvent == event
	})
}

func TestEnsureConversation_CreatesOnFirstContact(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	conv, err := f.svc.EnsureConversation(ctx, "tenant-1", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAIHandling, conv.Status)
	assert.Empty(t, conv.AgentIDs)

	again, err := f.svc.EnsureConversation(ctx, "tenant-1", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestEnsureConversation_DistinctPerCustomer(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	a, err := f.svc.EnsureConversation(ctx, "tenant-1", "customer-1")
	require.NoError(t, err)
	b, err := f.svc.EnsureConversation(ctx, "tenant-1", "customer-2")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestRecordCustomerMessage_AppendsAndCounts(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	msg, updated, err := f.svc.RecordCustomerMessage(ctx, conv, "my order is late", "")
	require.NoError(t, err)

	assert.Equal(t, models.RoleCustomer, msg.Role)
	assert.Equal(t, "my order is late", msg.Content)
	assert.Equal(t, int64(1), updated.MessageCount)
	require.NotNil(t, updated.LastCustomerMessageAt)
}

func TestRecordCustomerMessage_CountSurvivesStaleSnapshot(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	// Two writers working from the same snapshot must not lose a count;
	// the store increments rather than overwriting.
	_, _, err := f.svc.RecordCustomerMessage(ctx, conv, "first", "")
	require.NoError(t, err)
	_, _, err = f.svc.RecordCustomerMessage(ctx, conv, "second", "")
	require.NoError(t, err)

	updated, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.MessageCount)
}

func TestRecordCustomerMessage_ReopensResolved(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusResolved)

	_, updated, err := f.svc.RecordCustomerMessage(ctx, conv, "it broke again", "")
	require.NoError(t, err)

	assert.Equal(t, models.StatusAIHandling, updated.Status)
	assert.Empty(t, updated.HandoffReason)

	reopened := systemMessages(f.store.MessagesFor(conv.ID), models.SystemEventHandoff)
	require.Len(t, reopened, 1)
	assert.Contains(t, reopened[0].Content, "reopened")
}

func TestRequestHandoff_MovesToQueueAndNotifies(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	err := f.svc.RequestHandoff(ctx, conv.ID, models.HandoffReasonCustomerRequest, "")
	require.NoError(t, err)

	updated, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, updated.Status)
	assert.Equal(t, models.HandoffReasonCustomerRequest, updated.HandoffReason)

	audits := systemMessages(f.store.MessagesFor(conv.ID), models.SystemEventHandoff)
	require.Len(t, audits, 1)
	assert.Contains(t, audits[0].Content, models.HandoffReasonCustomerRequest)

	require.Equal(t, 1, f.notifier.Count())
	call := f.notifier.Calls[0]
	assert.Equal(t, "tenant-1", call.TenantID)
	assert.ElementsMatch(t, []string{"agent-1", "agent-2"}, call.UserIDs)
}

func TestRequestHandoff_PostsCustomerMessageFirst(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	err := f.svc.RequestHandoff(ctx, conv.ID, models.HandoffReasonUsageLimit, "A member of our support team will help you shortly.")
	require.NoError(t, err)

	audits := systemMessages(f.store.MessagesFor(conv.ID), models.SystemEventHandoff)
	require.Len(t, audits, 2)
	assert.Equal(t, "A member of our support team will help you shortly.", audits[0].Content)
	assert.Contains(t, audits[1].Content, models.HandoffReasonUsageLimit)
}

func TestRequestHandoff_AlreadyQueuedIsIdempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	require.NoError(t, f.svc.RequestHandoff(ctx, conv.ID, models.HandoffReasonEscalation, ""))
	require.NoError(t, f.svc.RequestHandoff(ctx, conv.ID, models.HandoffReasonEscalation, ""))

	audits := systemMessages(f.store.MessagesFor(conv.ID), models.SystemEventHandoff)
	assert.Len(t, audits, 1)
	assert.Equal(t, 1, f.notifier.Count())
}

func TestRequestHandoff_RejectedWhenAgentOwned(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusSupportHandling)

	err := f.svc.RequestHandoff(ctx, conv.ID, models.HandoffReasonEscalation, "")
	require.Error(t, err)

	domainErr, ok := domainerrors.GetDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domainerrors.ErrCodeInvalidTransition, domainErr.Code)
}

func TestAccept_FirstJoinEmitsJoinAndGreeting(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	updated, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSupportHandling, updated.Status)
	assert.Equal(t, []string{"agent-1"}, updated.AgentIDs)

	msgs := f.store.MessagesFor(conv.ID)
	joins := systemMessages(msgs, models.SystemEventAgentJoined)
	require.Len(t, joins, 1)
	assert.Contains(t, joins[0].Content, "Dana")

	greetings := filterMessages(msgs, func(m *models.Message) bool { return m.Role == models.RoleAgent })
	require.Len(t, greetings, 1)
	assert.Equal(t, "Hi, I'm Dana. How can I help?", greetings[0].Content)
	assert.Equal(t, "agent-1", greetings[0].SenderID)
	assert.True(t, greetings[0].CreatedAt.After(joins[0].CreatedAt),
		"greeting must sort after the join message")
}

func TestAccept_ReacceptIsIdempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	_, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)
	before := len(f.store.MessagesFor(conv.ID))

	updated, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"agent-1"}, updated.AgentIDs)
	assert.Len(t, f.store.MessagesFor(conv.ID), before, "re-accept must not emit messages")
}

func TestAccept_SecondAgentJoinsSilently(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	_, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)
	before := len(f.store.MessagesFor(conv.ID))

	updated, err := f.svc.Accept(ctx, conv.ID, "agent-2")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"agent-1", "agent-2"}, updated.AgentIDs)
	assert.Len(t, f.store.MessagesFor(conv.ID), before)
}

func TestAccept_ConcurrentFirstJoinHappensOnce(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	// Give both agents a greeting so the winner is irrelevant.
	f.platform.Config.Agents[1].AutoGreeting = "Hi, I'm Lee. How can I help?"

	conv := f.newConversation(t, models.StatusAvailable)

	var wg sync.WaitGroup
	for _, agentID := range []string{"agent-1", "agent-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Accept(ctx, conv.ID, id)
			assert.NoError(t, err)
		}(agentID)
	}
	wg.Wait()

	updated, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSupportHandling, updated.Status)
	assert.ElementsMatch(t, []string{"agent-1", "agent-2"}, updated.AgentIDs)

	msgs := f.store.MessagesFor(conv.ID)
	assert.Len(t, systemMessages(msgs, models.SystemEventAgentJoined), 1,
		"exactly one join message")
	assert.Len(t, filterMessages(msgs, func(m *models.Message) bool { return m.Role == models.RoleAgent }), 1,
		"exactly one greeting")
}

func TestAccept_TakesOverFromAI(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	updated, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSupportHandling, updated.Status)
}

func TestAccept_RejectedWhenResolved(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusResolved)

	_, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.Error(t, err)

	domainErr, ok := domainerrors.GetDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domainerrors.ErrCodeInvalidTransition, domainErr.Code)
}

func TestHandBackToQueue_ClearsAgents(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	_, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandBackToQueue(ctx, conv.ID, "agent-1"))

	updated, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, updated.Status)
	assert.Empty(t, updated.AgentIDs, "participant set must be empty outside support_staff_handling")

	left := systemMessages(f.store.MessagesFor(conv.ID), models.SystemEventAgentLeft)
	require.Len(t, left, 1)
	assert.Contains(t, left[0].Content, "queue")
}

func TestHandBackToAI_ReturnsOwnershipToAI(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	_, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandBackToAI(ctx, conv.ID, "agent-1"))

	updated, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAIHandling, updated.Status)
	assert.Empty(t, updated.AgentIDs)
	assert.Empty(t, updated.HandoffReason)
}

func TestHandBackToAI_RejectedWhenQuotaExhausted(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	_, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)

	f.quota.Exceeded = true
	err = f.svc.HandBackToAI(ctx, conv.ID, "agent-1")
	require.Error(t, err)
	assert.True(t, domainerrors.IsQuotaExceeded(err))

	// The rejection leaves the conversation untouched.
	updated, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSupportHandling, updated.Status)
	assert.Equal(t, []string{"agent-1"}, updated.AgentIDs)
}

func TestHandBackToAI_RejectedWhenNotAgentOwned(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	err := f.svc.HandBackToAI(ctx, conv.ID, "agent-1")
	require.Error(t, err)

	domainErr, ok := domainerrors.GetDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domainerrors.ErrCodeInvalidTransition, domainErr.Code)
}

func TestResolve_FromAnyState(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	_, err := f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Resolve(ctx, conv.ID))

	updated, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, updated.Status)
	assert.Empty(t, updated.AgentIDs)
	assert.False(t, updated.AIProcessing)

	resolved := systemMessages(f.store.MessagesFor(conv.ID), models.SystemEventIssueResolved)
	assert.Len(t, resolved, 1)
}

func TestResolve_Idempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	require.NoError(t, f.svc.Resolve(ctx, conv.ID))
	require.NoError(t, f.svc.Resolve(ctx, conv.ID))

	resolved := systemMessages(f.store.MessagesFor(conv.ID), models.SystemEventIssueResolved)
	assert.Len(t, resolved, 1)
}

func TestBeginProcessing_MutuallyExclusive(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	began, err := f.svc.BeginProcessing(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, began)

	// A second attempt must lose while the first is in flight.
	began, err = f.svc.BeginProcessing(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, began)

	require.NoError(t, f.svc.EndProcessing(ctx, conv.ID))

	began, err = f.svc.BeginProcessing(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, began)
}

func TestBeginProcessing_RequiresAIOwnership(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	began, err := f.svc.BeginProcessing(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, began)
}

func TestAppendAIReply_PersistsWhileOwned(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	began, err := f.svc.BeginProcessing(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, began)

	msg, err := f.svc.AppendAIReply(ctx, conv.ID, "Your refund is on its way.", &models.AIMetadata{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAI, msg.Role)
	require.NotNil(t, msg.Metadata)
	assert.Equal(t, "gpt-4o-mini", msg.Metadata.Model)
}

func TestAppendAIReply_ConflictAfterTakeover(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	began, err := f.svc.BeginProcessing(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, began)

	// An agent takes over mid-generation.
	_, err = f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)

	_, err = f.svc.AppendAIReply(ctx, conv.ID, "stale reply", nil)
	require.Error(t, err)
	assert.True(t, domainerrors.IsStateConflict(err))

	// The stale reply must not be in the log.
	for _, m := range f.store.MessagesFor(conv.ID) {
		assert.NotEqual(t, "stale reply", m.Content)
	}
}

func TestAppendAgentMessage_RequiresParticipation(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAvailable)

	_, err := f.svc.AppendAgentMessage(ctx, conv.ID, "agent-1", "hello")
	require.Error(t, err)

	_, err = f.svc.Accept(ctx, conv.ID, "agent-1")
	require.NoError(t, err)

	msg, err := f.svc.AppendAgentMessage(ctx, conv.ID, "agent-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Dana", msg.SenderName)
}

func TestClearPendingJob_OnlyClearsMatchingHandle(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	require.NoError(t, f.svc.SetPendingJob(ctx, conv.ID, "job-2"))

	// A stale job clearing its own handle must not touch the newer one.
	require.NoError(t, f.svc.ClearPendingJob(ctx, conv.ID, "job-1"))
	updated, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "job-2", updated.PendingJobID)

	require.NoError(t, f.svc.ClearPendingJob(ctx, conv.ID, "job-2"))
	updated, err = f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.PendingJobID)
}

func TestMarkMessageRead_StampsOnce(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	msg, _, err := f.svc.RecordCustomerMessage(ctx, conv, "hello", "")
	require.NoError(t, err)

	first, err := f.svc.MarkMessageRead(ctx, msg.ID, store.ReceiptByAgent)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	second, err := f.svc.MarkMessageRead(ctx, msg.ID, store.ReceiptByAgent)
	require.NoError(t, err)
	assert.True(t, second.Equal(first), "second stamp must return the original timestamp")
}

func TestMarkMessageRead_SidesAreIndependent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	msg, _, err := f.svc.RecordCustomerMessage(ctx, conv, "hello", "")
	require.NoError(t, err)

	_, err = f.svc.MarkMessageRead(ctx, msg.ID, store.ReceiptByAgent)
	require.NoError(t, err)

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ReadByAgentAt)
	assert.Nil(t, stored.ReadByCustomerAt)
}

func TestRecentHistory_FiltersSystemAndOrdersOldestFirst(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	conv := f.newConversation(t, models.StatusAIHandling)

	_, _, err := f.svc.RecordCustomerMessage(ctx, conv, "first", "")
	require.NoError(t, err)
	_, err = f.svc.AppendSystemMessage(ctx, conv.ID, models.SystemEventHandoff, "audit noise")
	require.NoError(t, err)
	_, _, err = f.svc.RecordCustomerMessage(ctx, conv, "second", "")
	require.NoError(t, err)

	history, err := f.svc.RecentHistory(ctx, conv.ID, 10)
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "second", history[1].Content)
	for _, entry := range history {
		assert.NotEqual(t, models.RoleSystem, entry.Role)
	}
}
