// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brightdesk/support-service/internal/api/dto"
	"github.com/brightdesk/support-service/internal/api/middleware"
	"github.com/brightdesk/support-service/internal/api/sse"
	"github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/services/conversation"
	"github.com/brightdesk/support-service/internal/services/dispatch"
)

// watchPingInterval keeps idle SSE connections alive through proxies.
const watchPingInterval = 25 * time.Second

// ConversationsHandler handles conversation lifecycle endpoints.
type ConversationsHandler struct {
	convs       *conversation.Service
	broadcaster *dispatch.Broadcaster
}

// NewConversationsHandler creates a new ConversationsHandler.
func NewConversationsHandler(convs *conversation.Service, broadcaster *dispatch.Broadcaster) *ConversationsHandler {
	return &ConversationsHandler{
		convs:       convs,
		broadcaster: broadcaster,
	}
}

// GetConversation handles GET /tenants/{tenantId}/conversations/{conversationId}.
// @Summary Get a conversation
// @Tags Conversations
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Success 200 {object} dto.ConversationResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId} [get]
func (h *ConversationsHandler) GetConversation(c *gin.Context) {
	tenantCtx := middleware.GetTenantContext(c)

	conv, err := h.convs.GetConversation(c.Request.Context(), tenantCtx.ConversationID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ConversationResponse{Conversation: conv})
}

// Accept handles POST /tenants/{tenantId}/conversations/{conversationId}/accept.
// Idempotent per agent; the first join emits a join message and, when
// configured, the agent's auto-greeting.
// @Summary Accept a conversation
// @Description Adds the agent to the conversation and gives them ownership
// @Tags Conversations
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Param request body dto.AgentActionRequest true "Acting agent"
// @Success 200 {object} dto.ConversationResponse
// @Failure 409 {object} middleware.ErrorResponse "Lock contention, retry"
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId}/accept [post]
func (h *ConversationsHandler) Accept(c *gin.Context) {
	tenantCtx := middleware.GetTenantContext(c)

	var req dto.AgentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	conv, err := h.convs.Accept(c.Request.Context(), tenantCtx.ConversationID, req.AgentID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.broadcaster.Publish(conv.ID, dispatch.Event{Type: dispatch.EventStatus, Conversation: conv})
	c.JSON(http.StatusOK, dto.ConversationResponse{Conversation: conv})
}

// HandBackToQueue handles POST /tenants/{tenantId}/conversations/{conversationId}/handback-queue.
// @Summary Return a conversation to the queue
// @Tags Conversations
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Param request body dto.AgentActionRequest true "Acting agent"
// @Success 200 {object} dto.ConversationResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId}/handback-queue [post]
func (h *ConversationsHandler) HandBackToQueue(c *gin.Context) {
	h.agentTransition(c, h.convs.HandBackToQueue)
}

// HandBackToAI handles POST /tenants/{tenantId}/conversations/{conversationId}/handback-ai.
// Rejected with QUOTA_EXCEEDED when the tenant's monthly AI allowance
// is used up; the conversation keeps its current owner.
// @Summary Hand a conversation back to the AI
// @Tags Conversations
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Param request body dto.AgentActionRequest true "Acting agent"
// @Success 200 {object} dto.ConversationResponse
// @Failure 429 {object} middleware.ErrorResponse "Monthly AI limit reached"
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId}/handback-ai [post]
func (h *ConversationsHandler) HandBackToAI(c *gin.Context) {
	h.agentTransition(c, h.convs.HandBackToAI)
}

// Resolve handles POST /tenants/{tenantId}/conversations/{conversationId}/resolve.
// @Summary Mark a conversation resolved
// @Tags Conversations
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Success 200 {object} dto.ConversationResponse
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId}/resolve [post]
func (h *ConversationsHandler) Resolve(c *gin.Context) {
	tenantCtx := middleware.GetTenantContext(c)
	ctx := c.Request.Context()

	if err := h.convs.Resolve(ctx, tenantCtx.ConversationID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	conv, err := h.convs.GetConversation(ctx, tenantCtx.ConversationID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.broadcaster.Publish(conv.ID, dispatch.Event{Type: dispatch.EventStatus, Conversation: conv})
	c.JSON(http.StatusOK, dto.ConversationResponse{Conversation: conv})
}

// Stream handles GET /tenants/{tenantId}/conversations/{conversationId}/stream.
// Pushes message and status events over SSE until the client disconnects.
// @Summary Watch a conversation
// @Description Streams message and status events as Server-Sent Events
// @Tags Conversations
// @Produce text/event-stream
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Success 200 {string} string "SSE stream"
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId}/stream [get]
func (h *ConversationsHandler) Stream(c *gin.Context) {
	tenantCtx := middleware.GetTenantContext(c)
	ctx := c.Request.Context()

	// The conversation must exist before a watch is attached.
	if _, err := h.convs.GetConversation(ctx, tenantCtx.ConversationID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	writer, err := sse.NewWriter(c.Writer)
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("streaming not supported", err))
		return
	}

	events, cancel := h.broadcaster.Subscribe(tenantCtx.ConversationID)
	defer cancel()

	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			eventType := sse.EventMessage
			if ev.Type == dispatch.EventStatus {
				eventType = sse.EventStatus
			}
			if err := writer.WriteJSON(eventType, ev); err != nil {
				return
			}
		case <-ping.C:
			if err := writer.WritePing(); err != nil {
				return
			}
		}
	}
}

// agentTransition runs a transition that needs the acting agent's id
// and returns the updated conversation.
func (h *ConversationsHandler) agentTransition(c *gin.Context, fn func(ctx context.Context, conversationID, agentID string) error) {
	tenantCtx := middleware.GetTenantContext(c)
	ctx := c.Request.Context()

	var req dto.AgentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := fn(ctx, tenantCtx.ConversationID, req.AgentID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	conv, err := h.convs.GetConversation(ctx, tenantCtx.ConversationID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.broadcaster.Publish(conv.ID, dispatch.Event{Type: dispatch.EventStatus, Conversation: conv})
	c.JSON(http.StatusOK, dto.ConversationResponse{Conversation: conv})
}
