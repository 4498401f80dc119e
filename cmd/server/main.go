package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/internal/external"
	"github.com/mbeoliero/coursechat/internal/gateway"
	"github.com/mbeoliero/coursechat/internal/handler"
	"github.com/mbeoliero/coursechat/internal/ratelimit"
	"github.com/mbeoliero/coursechat/internal/repository"
	"github.com/mbeoliero/coursechat/internal/router"
	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/pkg/constant"
	"github.com/mbeoliero/coursechat/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s, broker=%s", cfg.Server.Mode, cfg.WebSocket.Broker)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	gen, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to initialize id generator: %v", err)
		panic(err)
	}
	idgen.SetDefaultGenerator(gen)

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	if err := repos.Prepare(ctx, cfg.MySQL.AutoMigrate); err != nil {
		log.CtxError(ctx, "database preparation failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	// Platform services
	identity, err := external.NewIdentityClient(cfg.Identity, repos.Redis)
	if err != nil {
		log.CtxError(ctx, "failed to create identity client: %v", err)
		panic(err)
	}
	courses, err := external.NewCourseClient(cfg.Course, repos.Redis)
	if err != nil {
		log.CtxError(ctx, "failed to create course client: %v", err)
		panic(err)
	}

	// Initialize services
	authService := service.NewAuthService(cfg, repos.Redis)
	msgService := service.NewMessageService(repos, identity)
	convService := service.NewConversationService(repos, identity, courses)
	courseService := service.NewCourseService(courses, identity)
	limiter := ratelimit.NewLimiter(repos.Redis, cfg.RateLimit)

	// Initialize WebSocket server
	wsServer := gateway.NewWsServer(cfg, gateway.Deps{
		Redis:       repos.Redis,
		Broker:      gateway.NewBroker(cfg, repos.Redis),
		Auth:        authService,
		MsgService:  msgService,
		ConvService: convService,
		Profiles:    identity,
		Limiter:     limiter,
	})

	msgService.SetPusher(wsServer)
	convService.SetPublisher(wsServer)
	convService.SetNotifier(msgService)

	if err := wsServer.Run(ctx); err != nil {
		log.CtxError(ctx, "failed to start websocket server: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "websocket server started")

	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Conversation: handler.NewConversationHandler(convService, msgService),
		Message:      handler.NewMessageHandler(msgService),
		Course:       handler.NewCourseHandler(courseService, convService),
		Presence:     handler.NewPresenceHandler(wsServer),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
		server.WithExitWaitTime(5*time.Second),
	)

	router.SetupRouter(h, cfg, handlers, authService, limiter, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}
	cancel()
	if err := wsServer.Close(); err != nil {
		log.CtxWarn(ctx, "broker close error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped")
}
