package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/response"
)

const maxPresenceIds = 100

// PresenceReader resolves whether users are connected
type PresenceReader interface {
	OnlineStatus(ctx context.Context, userIds []string) map[string]bool
}

// PresenceHandler handles presence queries
type PresenceHandler struct {
	presence PresenceReader
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(presence PresenceReader) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetPresence handles GET /presence?user_ids=a,b
func (h *PresenceHandler) GetPresence(ctx context.Context, c *app.RequestContext) {
	if _, ok := requireActor(ctx, c); !ok {
		return
	}

	var userIds []string
	for _, id := range strings.Split(c.Query("user_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			userIds = append(userIds, id)
		}
	}
	if len(userIds) == 0 || len(userIds) > maxPresenceIds {
		response.ErrorWithCode(ctx, c, errcode.ErrValidation.WithMsg("user_ids must list 1 to 100 ids"))
		return
	}

	response.Success(ctx, c, h.presence.OnlineStatus(ctx, userIds))
}
