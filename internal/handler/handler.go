package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/middleware"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/response"
)

// requireActor returns the authenticated caller, writing 401 when there is none
func requireActor(ctx context.Context, c *app.RequestContext) (common.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
	}
	return actor, ok
}

// queryInt parses an optional integer query parameter; malformed values read as 0
func queryInt(c *app.RequestContext, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}
