package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/response"
)

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	convService *service.ConversationService
	msgService  *service.MessageService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService, msgService *service.MessageService) *ConversationHandler {
	return &ConversationHandler{convService: convService, msgService: msgService}
}

// ListConversations handles GET /conversations
func (h *ConversationHandler) ListConversations(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	page, limit := service.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))
	convs, err := h.convService.ListForUser(ctx, actor.Id, page, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, response.Page{Items: convs, Page: page, Limit: limit})
}

// CreateConversation handles POST /conversations.
// An existing conversation with the same identity is returned with 200.
func (h *ConversationHandler) CreateConversation(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	var req service.CreateConversationRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrValidation)
		return
	}

	conv, created, err := h.convService.Create(ctx, actor, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if created {
		response.Created(ctx, c, conv)
		return
	}
	response.Success(ctx, c, conv)
}

// GetConversation handles GET /conversations/:id
func (h *ConversationHandler) GetConversation(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	conv, err := h.convService.Get(ctx, actor, c.Param("id"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// UpdateConversation handles PATCH /conversations/:id
func (h *ConversationHandler) UpdateConversation(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	var req service.UpdateConversationRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrValidation)
		return
	}

	conv, err := h.convService.Update(ctx, actor, c.Param("id"), &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// DeactivateConversation handles DELETE /conversations/:id
func (h *ConversationHandler) DeactivateConversation(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	if err := h.convService.Deactivate(ctx, actor, c.Param("id")); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// AddParticipant handles POST /conversations/:id/participants
func (h *ConversationHandler) AddParticipant(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	var req service.AddParticipantRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrValidation)
		return
	}

	conv, err := h.convService.AddParticipantAs(ctx, actor, c.Param("id"), &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// MarkRead handles POST /conversations/:id/read
func (h *ConversationHandler) MarkRead(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	marked, err := h.msgService.MarkRead(ctx, actor, c.Param("id"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"marked": marked,
	})
}
