package gateway

import (
	"context"
	"hash/fnv"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/internal/ratelimit"
	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/pkg/constant"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/idgen"
)

// WsServer is the WebSocket server
type WsServer struct {
	cfg           *config.Config
	connOpts      ConnOptions
	userMap       *UserMap
	rooms         *RoomMap
	broker        Broker
	auth          *service.AuthService
	msgService    *service.MessageService
	convService   *service.ConversationService
	profiles      service.ProfileResolver
	limiter       *ratelimit.Limiter
	events        chan *clientEvent
	shards        []chan *pushTask
	onlineUserNum atomic.Int64
	onlineConnNum atomic.Int64
	maxConnNum    int64
}

// Deps are the collaborators of the WebSocket server
type Deps struct {
	Redis       *redis.Client
	Broker      Broker
	Auth        *service.AuthService
	MsgService  *service.MessageService
	ConvService *service.ConversationService
	Profiles    service.ProfileResolver
	Limiter     *ratelimit.Limiter
}

// clientEvent is a connect or disconnect, handled in arrival order
type clientEvent struct {
	client          *Client
	conversationIds []string
	register        bool
}

// pushTask is one event on its way to a room
type pushTask struct {
	topic string
	event *Event
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, deps Deps) *WsServer {
	workerNum := cfg.WebSocket.PushWorkerNum
	if workerNum <= 0 {
		workerNum = 10
	}
	queueSize := cfg.WebSocket.PushChannelSize / workerNum
	if queueSize <= 0 {
		queueSize = 64
	}
	shards := make([]chan *pushTask, workerNum)
	for i := range shards {
		shards[i] = make(chan *pushTask, queueSize)
	}

	broker := deps.Broker
	if broker == nil {
		broker = NewLocalBroker()
	}

	return &WsServer{
		cfg:         cfg,
		connOpts:    ConnOptionsFromConfig(cfg.WebSocket),
		userMap:     NewUserMap(deps.Redis),
		rooms:       NewRoomMap(),
		broker:      broker,
		auth:        deps.Auth,
		msgService:  deps.MsgService,
		convService: deps.ConvService,
		profiles:    deps.Profiles,
		limiter:     deps.Limiter,
		events:      make(chan *clientEvent, 1000),
		shards:      shards,
		maxConnNum:  cfg.WebSocket.MaxConnNum,
	}
}

// NewBroker builds the broker selected by the websocket config
func NewBroker(cfg *config.Config, rdb *redis.Client) Broker {
	if cfg.WebSocket.Broker == BrokerRedis && rdb != nil {
		return NewRedisBroker(rdb)
	}
	return NewLocalBroker()
}

// Run starts the WebSocket server
func (s *WsServer) Run(ctx context.Context) error {
	if err := s.broker.Subscribe(ctx, s.deliver); err != nil {
		return err
	}

	go s.eventLoop(ctx)
	for _, shard := range s.shards {
		go s.pushLoop(ctx, shard)
	}
	go s.refreshLoop(ctx)
	log.Info("started %d push workers", len(s.shards))
	return nil
}

// Close stops the broker subscription
func (s *WsServer) Close() error {
	return s.broker.Close()
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if ev.register {
				s.registerClient(ctx, ev.client, ev.conversationIds)
			} else {
				s.unregisterClient(ctx, ev.client)
			}
		}
	}
}

// pushLoop publishes the events of one shard in order
func (s *WsServer) pushLoop(ctx context.Context, shard chan *pushTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-shard:
			if err := s.broker.Publish(ctx, task.topic, task.event); err != nil {
				log.CtxWarn(ctx, "publish event failed: topic=%s, error=%v", task.topic, err)
			}
		}
	}
}

func (s *WsServer) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(OnlineRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.userMap.RefreshOnlineStatus(ctx)
		}
	}
}

// enqueue routes a task to the shard owning key, so tasks sharing a key keep their order
func (s *WsServer) enqueue(key string, task *pushTask) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	shard := s.shards[h.Sum32()%uint32(len(s.shards))]

	select {
	case shard <- task:
	default:
		log.Warn("push channel full, event dropped: topic=%s", task.topic)
	}
}

// deliver writes an event to the local members of topic
func (s *WsServer) deliver(ctx context.Context, topic string, event *Event) {
	for _, client := range s.rooms.Members(topic) {
		if event.JoinRoom != "" {
			s.rooms.Join(event.JoinRoom, client)
		}
		if len(event.Frame) == 0 {
			continue
		}
		if event.ExcludeUserId != "" && client.UserId == event.ExcludeUserId {
			continue
		}
		if err := client.Push(event.Frame); err != nil {
			log.CtxDebug(ctx, "push to client failed: user_id=%s, conn_id=%s, error=%v", client.UserId, client.ConnId, err)
		}
	}
}

// attachClient joins the private room and the conversation rooms of a new connection
func (s *WsServer) attachClient(client *Client, conversationIds []string) {
	s.rooms.Attach(client)
	rooms := make([]string, 0, len(conversationIds)+1)
	rooms = append(rooms, constant.UserRoom(client.UserId))
	for _, id := range conversationIds {
		rooms = append(rooms, constant.ConversationRoom(id))
	}
	s.rooms.JoinMany(rooms, client)
}

// registerClient registers an attached client and announces the user if it is the first connection
func (s *WsServer) registerClient(ctx context.Context, client *Client, conversationIds []string) {
	first := s.userMap.Register(ctx, client)
	s.onlineConnNum.Add(1)
	if first {
		s.onlineUserNum.Add(1)
		s.publishStatus(ctx, client.UserId, conversationIds, true)
	}

	log.CtxInfo(ctx, "client registered: user_id=%s, conn_id=%s, conversations=%d, first=%v, online_users=%d, online_conns=%d",
		client.UserId, client.ConnId, len(conversationIds), first, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	rooms := s.rooms.Rooms(client)
	s.rooms.Detach(client)

	isUserOffline := s.userMap.Unregister(ctx, client)
	s.onlineConnNum.Add(-1)
	if isUserOffline {
		s.onlineUserNum.Add(-1)
		var conversationIds []string
		for _, room := range rooms {
			if id, ok := strings.CutPrefix(room, constant.ConversationRoomPrefix); ok {
				conversationIds = append(conversationIds, id)
			}
		}
		s.publishStatus(ctx, client.UserId, conversationIds, false)
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		client.UserId, client.ConnId, isUserOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// RegisterClient attaches client and queues it for registration
func (s *WsServer) RegisterClient(client *Client, conversationIds []string) {
	s.attachClient(client, conversationIds)
	s.events <- &clientEvent{client: client, conversationIds: conversationIds, register: true}
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	s.events <- &clientEvent{client: client}
}

// publishStatus announces a presence change to the user's conversations
func (s *WsServer) publishStatus(ctx context.Context, userId string, conversationIds []string, online bool) {
	frame, err := EncodeEvent(EventUserStatusChange, StatusChangeData{
		UserId:    userId,
		IsOnline:  online,
		Timestamp: entity.NowUnixMilli(),
	})
	if err != nil {
		log.CtxError(ctx, "encode status event failed: %v", err)
		return
	}
	for _, id := range conversationIds {
		s.enqueue(id, &pushTask{
			topic: constant.ConversationRoom(id),
			event: &Event{Frame: frame, ExcludeUserId: userId},
		})
	}
}

// HandleConnection authenticates the handshake and upgrades the connection
func (s *WsServer) HandleConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.maxConnNum > 0 && s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(http.StatusServiceUnavailable, errcode.ErrConnOverLimit.Msg)
		return
	}

	token := service.ExtractBearer(string(c.GetHeader(HeaderAuthorization)))
	if token == "" {
		token = c.Query(QueryToken)
	}
	claims, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		e := errcode.From(err)
		log.CtxDebug(ctx, "websocket handshake rejected: reason=%s", e.Msg)
		c.String(http.StatusUnauthorized, e.Msg)
		return
	}

	conversationIds, err := s.convService.ParticipantConversationIds(ctx, claims.UserId)
	if err != nil {
		// connect anyway, rooms can still be joined explicitly
		log.CtxWarn(ctx, "load conversation rooms failed: user_id=%s, error=%v", claims.UserId, err)
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		wsConn := NewHertzWebSocketClientConn(conn, s.connOpts)
		client := NewClient(wsConn, claims.Actor(), idgen.NewConnId(), s)

		s.RegisterClient(client, conversationIds)

		// blocks until the connection closes
		client.readLoop()
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}
}

// PushMessage queues a new_message event for the conversation room
func (s *WsServer) PushMessage(ctx context.Context, msg *entity.MessageInfo) {
	frame, err := EncodeEvent(EventNewMessage, msg)
	if err != nil {
		log.CtxError(ctx, "encode message event failed: msg_id=%d, error=%v", msg.Id, err)
		return
	}
	s.enqueue(msg.ConversationId, &pushTask{
		topic: constant.ConversationRoom(msg.ConversationId),
		event: &Event{Frame: frame},
	})
}

// PublishConversationCreated sends conversation_created to the private room of each user
func (s *WsServer) PublishConversationCreated(ctx context.Context, info *entity.ConversationInfo, userIds []string) {
	frame, err := EncodeEvent(EventConversationCreated, info)
	if err != nil {
		log.CtxError(ctx, "encode conversation event failed: conversation_id=%s, error=%v", info.Id, err)
		return
	}
	for _, userId := range userIds {
		s.enqueue(info.Id, &pushTask{
			topic: constant.UserRoom(userId),
			event: &Event{Frame: frame},
		})
	}
}

// SubscribeUsers joins every live connection of the users to the conversation room
func (s *WsServer) SubscribeUsers(_ context.Context, conversationId string, userIds []string) {
	room := constant.ConversationRoom(conversationId)
	for _, userId := range userIds {
		s.enqueue(conversationId, &pushTask{
			topic: constant.UserRoom(userId),
			event: &Event{JoinRoom: room},
		})
	}
}

// IsOnline reports whether the user has a connection on any instance
func (s *WsServer) IsOnline(ctx context.Context, userId string) bool {
	return s.userMap.IsOnline(ctx, userId)
}

// OnlineStatus resolves the presence of several users
func (s *WsServer) OnlineStatus(ctx context.Context, userIds []string) map[string]bool {
	return s.userMap.OnlineStatus(ctx, userIds)
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// ========== Event Handlers ==========

// HandleJoin subscribes the connection to a conversation it may read
func (s *WsServer) HandleJoin(ctx context.Context, client *Client, req *WSRequest) (interface{}, error) {
	var joinReq ConversationReq
	if err := decodeData(req, &joinReq); err != nil {
		return nil, err
	}
	if err := s.convService.CheckReadAccess(ctx, joinReq.ConversationId, client.UserId); err != nil {
		return nil, err
	}
	s.rooms.Join(constant.ConversationRoom(joinReq.ConversationId), client)
	return joinReq, nil
}

// HandleLeave unsubscribes the connection from a conversation
func (s *WsServer) HandleLeave(ctx context.Context, client *Client, req *WSRequest) (interface{}, error) {
	var leaveReq ConversationReq
	if err := decodeData(req, &leaveReq); err != nil {
		return nil, err
	}
	s.rooms.Leave(constant.ConversationRoom(leaveReq.ConversationId), client)
	return leaveReq, nil
}

// HandleTyping relays a typing indicator to the other members of the room
func (s *WsServer) HandleTyping(ctx context.Context, client *Client, req *WSRequest, isTyping bool) (interface{}, error) {
	var typingReq ConversationReq
	if err := decodeData(req, &typingReq); err != nil {
		return nil, err
	}
	room := constant.ConversationRoom(typingReq.ConversationId)
	if !s.rooms.InRoom(room, client) {
		return nil, errcode.ErrNotParticipant.WithMsg("join the conversation first")
	}

	displayName := entity.UnknownDisplayName
	if s.profiles != nil {
		displayName = s.profiles.GetProfile(ctx, client.UserId).DisplayName
	}
	frame, err := EncodeEvent(EventUserTyping, TypingData{
		ConversationId: typingReq.ConversationId,
		UserId:         client.UserId,
		DisplayName:    displayName,
		IsTyping:       isTyping,
	})
	if err != nil {
		return nil, err
	}
	s.enqueue(typingReq.ConversationId, &pushTask{
		topic: room,
		event: &Event{Frame: frame, ExcludeUserId: client.UserId},
	})
	return nil, nil
}

// HandleSendMessage rate limits and sends a message
func (s *WsServer) HandleSendMessage(ctx context.Context, client *Client, req *WSRequest) (interface{}, error) {
	var sendReq SendMessageReq
	if err := decodeData(req, &sendReq); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		// limiter errors are logged inside and fail open
		res, _ := s.limiter.Allow(ctx, ratelimit.ScopeSend, client.UserId)
		if err := res.Err(); err != nil {
			return nil, err
		}
	}

	return s.msgService.Send(ctx, client.Actor(), &service.SendMessageRequest{
		ConversationId: sendReq.ConversationId,
		Content:        sendReq.Content,
	})
}

// HandlePing answers a keepalive
func (s *WsServer) HandlePing(_ context.Context, _ *Client, _ *WSRequest) (interface{}, error) {
	return PongData{ServerTime: entity.NowUnixMilli()}, nil
}
