package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/response"
)

// MessageHandler handles message-related requests
type MessageHandler struct {
	msgService *service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(msgService *service.MessageService) *MessageHandler {
	return &MessageHandler{msgService: msgService}
}

// SendMessage handles POST /messages, the REST counterpart of the send_message event
func (h *MessageHandler) SendMessage(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	var req service.SendMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrValidation)
		return
	}

	msg, err := h.msgService.Send(ctx, actor, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, msg)
}

// ListMessages handles GET /conversations/:id/messages
func (h *MessageHandler) ListMessages(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	page, limit := service.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))
	req := service.ListMessagesRequest{Page: page, Limit: limit}
	if before := c.Query("before"); before != "" {
		beforeId, err := strconv.ParseInt(before, 10, 64)
		if err != nil || beforeId <= 0 {
			response.ErrorWithCode(ctx, c, errcode.ErrValidation.WithMsg("before must be a message id"))
			return
		}
		req.BeforeId = beforeId
	}

	messages, err := h.msgService.List(ctx, actor, c.Param("id"), req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, response.Page{Items: messages, Page: page, Limit: limit})
}
