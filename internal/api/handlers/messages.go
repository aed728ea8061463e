// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brightdesk/support-service/internal/api/dto"
	"github.com/brightdesk/support-service/internal/api/middleware"
	"github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/services/conversation"
	"github.com/brightdesk/support-service/internal/services/dispatch"
	"github.com/brightdesk/support-service/internal/services/store"
)

const defaultMessagePageSize = 50

// MessagesHandler handles message-related endpoints.
type MessagesHandler struct {
	convs       *conversation.Service
	pipeline    *dispatch.Pipeline
	broadcaster *dispatch.Broadcaster
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(convs *conversation.Service, pipeline *dispatch.Pipeline, broadcaster *dispatch.Broadcaster) *MessagesHandler {
	return &MessagesHandler{
		convs:       convs,
		pipeline:    pipeline,
		broadcaster: broadcaster,
	}
}

// SendCustomerMessage handles POST /tenants/{tenantId}/customers/{customerId}/messages.
// The conversation is created on first contact; a message on a resolved
// conversation reopens it. When the AI owns the conversation, the
// debounce gate schedules a response attempt.
// @Summary Send a customer message
// @Description Records a customer message and triggers the AI response pipeline when the AI owns the conversation
// @Tags Messages
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param customerId path string true "Customer ID"
// @Param request body dto.SendCustomerMessageRequest true "Message"
// @Success 201 {object} dto.SendMessageResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/customers/{customerId}/messages [post]
func (h *MessagesHandler) SendCustomerMessage(c *gin.Context) {
	ctx := c.Request.Context()
	tenantCtx := middleware.GetTenantContext(c)

	var req dto.SendCustomerMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	conv, err := h.convs.EnsureConversation(ctx, tenantCtx.TenantID, tenantCtx.CustomerID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	msg, updated, err := h.convs.RecordCustomerMessage(ctx, conv, req.Content, req.AttachmentURL)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.pipeline.HandleCustomerMessage(ctx, updated, msg)

	c.JSON(http.StatusCreated, dto.SendMessageResponse{
		Message:      msg,
		Conversation: updated,
	})
}

// SendAgentMessage handles POST /tenants/{tenantId}/conversations/{conversationId}/messages.
// @Summary Send an agent message
// @Description Records a message written by a participating human agent
// @Tags Messages
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Param request body dto.SendAgentMessageRequest true "Message"
// @Success 201 {object} dto.SendMessageResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId}/messages [post]
func (h *MessagesHandler) SendAgentMessage(c *gin.Context) {
	ctx := c.Request.Context()
	tenantCtx := middleware.GetTenantContext(c)

	var req dto.SendAgentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	msg, err := h.convs.AppendAgentMessage(ctx, tenantCtx.ConversationID, req.AgentID, req.Content)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	conv, err := h.convs.GetConversation(ctx, tenantCtx.ConversationID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.broadcaster.Publish(conv.ID, dispatch.Event{Type: dispatch.EventMessage, Message: msg})

	c.JSON(http.StatusCreated, dto.SendMessageResponse{
		Message:      msg,
		Conversation: conv,
	})
}

// GetMessages handles GET /tenants/{tenantId}/conversations/{conversationId}/messages.
// @Summary List messages
// @Description Returns the most recent messages, newest first
// @Tags Messages
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Param limit query int false "Maximum number of messages" default(50) minimum(1) maximum(100)
// @Success 200 {object} dto.MessagesResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId}/messages [get]
func (h *MessagesHandler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	tenantCtx := middleware.GetTenantContext(c)

	var query struct {
		Limit int64 `form:"limit" binding:"omitempty,min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid query parameters", err.Error()))
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultMessagePageSize
	}

	messages, err := h.convs.ListMessages(ctx, tenantCtx.ConversationID, query.Limit)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	total, err := h.convs.CountMessages(ctx, tenantCtx.ConversationID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MessagesResponse{
		Messages: messages,
		Total:    total,
		Limit:    query.Limit,
	})
}

// MarkRead handles POST /tenants/{tenantId}/conversations/{conversationId}/messages/{messageId}/read.
// Stamping an already-read message returns the original timestamp.
// @Summary Mark a message read
// @Description Stamps the agent- or customer-side read receipt, idempotently
// @Tags Messages
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param conversationId path string true "Conversation ID"
// @Param messageId path string true "Message ID"
// @Param request body dto.MarkReadRequest true "Receipt side"
// @Success 200 {object} dto.ReadReceiptResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/support-service/tenants/{tenantId}/conversations/{conversationId}/messages/{messageId}/read [post]
func (h *MessagesHandler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	tenantCtx := middleware.GetTenantContext(c)

	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	side := store.ReceiptByAgent
	if req.Side == "customer" {
		side = store.ReceiptByCustomer
	}

	readAt, err := h.convs.MarkMessageRead(ctx, tenantCtx.MessageID, side)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReadReceiptResponse{
		MessageID: tenantCtx.MessageID,
		Side:      req.Side,
		ReadAt:    readAt,
	})
}
