package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/internal/gateway"
	"github.com/mbeoliero/coursechat/internal/handler"
	"github.com/mbeoliero/coursechat/internal/middleware"
	"github.com/mbeoliero/coursechat/internal/ratelimit"
	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/response"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Auth         *handler.AuthHandler
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Course       *handler.CourseHandler
	Presence     *handler.PresenceHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, auth *service.AuthService,
	limiter *ratelimit.Limiter, wsServer *gateway.WsServer) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	h.NoRoute(func(ctx context.Context, c *app.RequestContext) {
		response.ErrorWithCode(ctx, c, errcode.ErrNotFound)
	})

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]interface{}{
			"status":      "ok",
			"onlineUsers": wsServer.GetOnlineUserCount(),
			"onlineConns": wsServer.GetOnlineConnCount(),
		})
	})

	jwtAuth := middleware.JWTAuth(auth)

	h.POST("/auth/logout", jwtAuth, handlers.Auth.Logout)

	convGroup := h.Group("/conversations", jwtAuth)
	{
		convGroup.GET("", handlers.Conversation.ListConversations)
		convGroup.POST("", handlers.Conversation.CreateConversation)
		convGroup.GET("/:id", handlers.Conversation.GetConversation)
		convGroup.PATCH("/:id", handlers.Conversation.UpdateConversation)
		convGroup.DELETE("/:id", handlers.Conversation.DeactivateConversation)
		convGroup.POST("/:id/participants", handlers.Conversation.AddParticipant)
		convGroup.GET("/:id/messages", handlers.Message.ListMessages)
		convGroup.POST("/:id/read", handlers.Conversation.MarkRead)
	}

	h.POST("/messages", jwtAuth, middleware.RateLimit(limiter, ratelimit.ScopeSend), handlers.Message.SendMessage)

	courseGroup := h.Group("/courses/:courseId", jwtAuth)
	{
		courseGroup.GET("/instructors", handlers.Course.ListInstructors)
		courseGroup.POST("/conversation", handlers.Course.CourseConversation)
		courseGroup.POST("/instructors/:instructorId/conversation", handlers.Course.InstructorConversation)
	}

	h.GET("/presence", jwtAuth, handlers.Presence.GetPresence)

	// the socket authenticates during the handshake, not through jwtAuth
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// no origin header: same-origin request or non-browser client
	if origin == "" {
		return true
	}

	return middleware.OriginAllowed(origin, allowedOrigins)
}
