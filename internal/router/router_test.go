package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/internal/gateway"
	"github.com/mbeoliero/coursechat/internal/handler"
	"github.com/mbeoliero/coursechat/internal/ratelimit"
	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/internal/testutil"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/jwt"
)

const testSecret = "test-secret"

type staticProfiles struct{}

func (staticProfiles) GetProfile(_ context.Context, userId string) *entity.Profile {
	role := "student"
	if userId == "t1" {
		role = "instructor"
	}
	return &entity.Profile{Id: userId, DisplayName: "User " + userId, Role: role, Profile: map[string]any{}}
}

func (p staticProfiles) GetProfiles(ctx context.Context, userIds []string) map[string]*entity.Profile {
	result := make(map[string]*entity.Profile, len(userIds))
	for _, id := range userIds {
		result[id] = p.GetProfile(ctx, id)
	}
	return result
}

type staticCourses struct{}

func (staticCourses) GetCourse(_ context.Context, courseId string) (*entity.CourseInfo, error) {
	return &entity.CourseInfo{Id: courseId, Title: "Compilers", InstructorIds: []string{"t1"}}, nil
}

func (staticCourses) CourseTitle(_ context.Context, _ string) string {
	return "Compilers"
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type apiTest struct {
	t    *testing.T
	h    *server.Hertz
	ws   *gateway.WsServer
	addr string
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newAPITest(t *testing.T, opts ...func(*config.Config)) *apiTest {
	t.Helper()
	repos := testutil.NewRepositories(t)
	cfg := &config.Config{
		JWT:       config.JWTConfig{Secret: testSecret},
		RateLimit: config.RateLimitConfig{Enabled: true, MaxMessages: 2, Window: time.Minute},
		WebSocket: config.WebSocketConfig{PushWorkerNum: 2, PushChannelSize: 256},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	profiles := staticProfiles{}

	authService := service.NewAuthService(cfg, repos.Redis)
	msgService := service.NewMessageService(repos, profiles)
	convService := service.NewConversationService(repos, profiles, staticCourses{})
	limiter := ratelimit.NewLimiter(repos.Redis, cfg.RateLimit)
	wsServer := gateway.NewWsServer(cfg, gateway.Deps{
		Redis:       repos.Redis,
		Auth:        authService,
		MsgService:  msgService,
		ConvService: convService,
		Profiles:    profiles,
		Limiter:     limiter,
	})
	msgService.SetPusher(wsServer)
	convService.SetPublisher(wsServer)
	convService.SetNotifier(msgService)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, wsServer.Run(ctx))

	addr := freeAddr(t)
	h := server.New(server.WithHostPorts(addr))
	SetupRouter(h, cfg, &Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Conversation: handler.NewConversationHandler(convService, msgService),
		Message:      handler.NewMessageHandler(msgService),
		Course:       handler.NewCourseHandler(service.NewCourseService(staticCourses{}, profiles), convService),
		Presence:     handler.NewPresenceHandler(wsServer),
	}, authService, limiter, wsServer)
	return &apiTest{t: t, h: h, ws: wsServer, addr: addr}
}

// serve starts listening for real connections
func (a *apiTest) serve() {
	a.t.Helper()
	go func() {
		_ = a.h.Run()
	}()
	a.t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.h.Shutdown(ctx)
	})
	require.Eventually(a.t, func() bool {
		conn, err := net.DialTimeout("tcp", a.addr, 100*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond)
}

func token(t *testing.T, userId, role string) string {
	t.Helper()
	tk, err := jwt.GenerateToken(userId, role, testSecret, "", 1)
	require.NoError(t, err)
	return tk
}

// do performs a request and decodes the envelope
func (a *apiTest) do(method, path, tk string, body interface{}) (int, envelope, http.Header) {
	a.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(a.t, err)
	}
	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if tk != "" {
		headers = append(headers, ut.Header{Key: "Authorization", Value: "Bearer " + tk})
	}

	w := ut.PerformRequest(a.h.Engine, method, path, &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}, headers...)
	resp := w.Result()

	var env envelope
	require.NoError(a.t, json.Unmarshal(resp.Body(), &env), string(resp.Body()))
	header := http.Header{}
	if v := string(resp.Header.Peek("Retry-After")); v != "" {
		header.Set("Retry-After", v)
	}
	return resp.StatusCode(), env, header
}

func TestRouter_Health(t *testing.T) {
	a := newAPITest(t)
	w := ut.PerformRequest(a.h.Engine, http.MethodGet, "/health", nil)
	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), `"onlineUsers":0`)

	status, env, _ := a.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errcode.ErrNotFound.Code, env.Code)
}

func TestRouter_RequiresValidToken(t *testing.T) {
	a := newAPITest(t)

	status, env, _ := a.do(http.MethodGet, "/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errcode.ErrTokenMissing.Code, env.Code)

	forged, err := jwt.GenerateToken("u1", "student", "other-secret", "", 1)
	require.NoError(t, err)
	status, env, _ = a.do(http.MethodGet, "/conversations", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errcode.ErrTokenInvalid.Code, env.Code)
}

func TestRouter_ConversationAndMessageFlow(t *testing.T) {
	a := newAPITest(t)
	u1, u2, u3 := token(t, "u1", "student"), token(t, "u2", "student"), token(t, "u3", "student")

	status, env, _ := a.do(http.MethodPost, "/conversations", u1, map[string]interface{}{
		"kind":           "direct",
		"participantIds": []string{"u2"},
	})
	require.Equal(t, http.StatusCreated, status, env.Msg)
	var conv entity.ConversationInfo
	require.NoError(t, json.Unmarshal(env.Data, &conv))

	// the same pair from the other side finds the existing conversation
	status, env, _ = a.do(http.MethodPost, "/conversations", u2, map[string]interface{}{
		"kind":           "direct",
		"participantIds": []string{"u1"},
	})
	require.Equal(t, http.StatusOK, status)
	var again entity.ConversationInfo
	require.NoError(t, json.Unmarshal(env.Data, &again))
	assert.Equal(t, conv.Id, again.Id)

	status, _, _ = a.do(http.MethodPost, "/messages", u1, map[string]string{"conversationId": conv.Id, "content": "hi"})
	require.Equal(t, http.StatusCreated, status)

	status, env, _ = a.do(http.MethodGet, "/conversations?page=1&limit=10", u2, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Items []*entity.ConversationInfo `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 1, page.Items[0].UnreadCount)

	status, env, _ = a.do(http.MethodPost, "/conversations/"+conv.Id+"/read", u2, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"marked":1}`, string(env.Data))

	status, env, _ = a.do(http.MethodGet, "/conversations/"+conv.Id+"/messages", u2, nil)
	require.Equal(t, http.StatusOK, status)
	var msgs struct {
		Items []*entity.MessageInfo `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs.Items, 1)
	assert.Equal(t, "hi", msgs.Items[0].Content)
	require.Len(t, msgs.Items[0].ReadBy, 1)
	assert.Equal(t, "u2", msgs.Items[0].ReadBy[0].UserId)

	status, env, _ = a.do(http.MethodGet, "/conversations/"+conv.Id, u3, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, errcode.ErrNotParticipant.Code, env.Code)

	status, env, _ = a.do(http.MethodGet, "/conversations/"+conv.Id+"/messages?before=abc", u1, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errcode.ErrValidation.Code, env.Code)
}

func TestRouter_SendIsRateLimited(t *testing.T) {
	a := newAPITest(t)
	u1 := token(t, "u1", "student")

	_, env, _ := a.do(http.MethodPost, "/conversations", u1, map[string]interface{}{
		"kind":           "direct",
		"participantIds": []string{"u2"},
	})
	var conv entity.ConversationInfo
	require.NoError(t, json.Unmarshal(env.Data, &conv))

	for i := 0; i < 2; i++ {
		status, _, _ := a.do(http.MethodPost, "/messages", u1, map[string]string{"conversationId": conv.Id, "content": "x"})
		require.Equal(t, http.StatusCreated, status)
	}
	status, env, header := a.do(http.MethodPost, "/messages", u1, map[string]string{"conversationId": conv.Id, "content": "x"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, errcode.ErrRateLimited.Code, env.Code)
	assert.NotEmpty(t, header.Get("Retry-After"))
}

func TestRouter_CourseRoutes(t *testing.T) {
	a := newAPITest(t)
	student, staff := token(t, "u1", "student"), token(t, "t1", "instructor")

	status, env, _ := a.do(http.MethodGet, "/courses/c1/instructors", student, nil)
	require.Equal(t, http.StatusOK, status)
	var instructors []*entity.Profile
	require.NoError(t, json.Unmarshal(env.Data, &instructors))
	require.Len(t, instructors, 1)
	assert.Equal(t, "t1", instructors[0].Id)

	status, env, _ = a.do(http.MethodPost, "/courses/c1/conversation", student, map[string]string{"courseTitle": "ignored"})
	require.Equal(t, http.StatusCreated, status)
	var group entity.ConversationInfo
	require.NoError(t, json.Unmarshal(env.Data, &group))
	assert.Equal(t, "Compilers", group.Title)

	status, _, _ = a.do(http.MethodPost, "/courses/c1/conversation", staff, nil)
	require.Equal(t, http.StatusOK, status)

	status, env, _ = a.do(http.MethodPatch, "/conversations/"+group.Id, student, map[string]string{"title": "Mine"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, errcode.ErrForbidden.Code, env.Code)

	status, env, _ = a.do(http.MethodPatch, "/conversations/"+group.Id, staff, map[string]string{"title": "Compilers 2026"})
	require.Equal(t, http.StatusOK, status, env.Msg)
	var updated entity.ConversationInfo
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Compilers 2026", updated.Title)

	status, _, _ = a.do(http.MethodPost, "/courses/c1/instructors/t1/conversation", student, nil)
	assert.Equal(t, http.StatusCreated, status)
}

func TestRouter_PresenceAndLogout(t *testing.T) {
	a := newAPITest(t)
	u1 := token(t, "u1", "student")

	status, env, _ := a.do(http.MethodGet, "/presence", u1, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errcode.ErrValidation.Code, env.Code)

	status, env, _ = a.do(http.MethodGet, "/presence?user_ids=u2,u3", u1, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"u2":false,"u3":false}`, string(env.Data))

	status, _, _ = a.do(http.MethodPost, "/auth/logout", u1, nil)
	require.Equal(t, http.StatusOK, status)

	status, env, _ = a.do(http.MethodGet, "/conversations", u1, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errcode.ErrTokenRevoked.Code, env.Code)
}

func TestRouter_CreateAcceptsCamelCaseBodies(t *testing.T) {
	a := newAPITest(t)
	u1, staff := token(t, "u1", "student"), token(t, "t1", "instructor")

	status, env, _ := a.do(http.MethodPost, "/conversations", u1, map[string]interface{}{
		"kind":           "course_group",
		"courseId":       "c9",
		"participantIds": []string{},
	})
	require.Equal(t, http.StatusCreated, status, env.Msg)
	var group map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &group))
	assert.Equal(t, "c9", group["courseId"])
	assert.Contains(t, group, "unreadCount")
	assert.Contains(t, group, "lastActivityAt")

	status, env, _ = a.do(http.MethodPost, "/messages", u1, map[string]string{"conversationId": group["id"].(string), "content": "hello"})
	require.Equal(t, http.StatusCreated, status, env.Msg)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, group["id"], msg["conversationId"])
	assert.Equal(t, "u1", msg["senderId"])
	assert.Contains(t, msg, "readBy")

	// a staff title hint is honoured on first creation
	status, env, _ = a.do(http.MethodPost, "/courses/c10/conversation", staff, map[string]string{"courseTitle": "Compilers, Fall cohort"})
	require.Equal(t, http.StatusCreated, status, env.Msg)
	var titled entity.ConversationInfo
	require.NoError(t, json.Unmarshal(env.Data, &titled))
	assert.Equal(t, "Compilers, Fall cohort", titled.Title)

	status, env, _ = a.do(http.MethodPost, "/messages", u1, map[string]string{"conversation_id": group["id"].(string), "content": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errcode.ErrValidation.Code, env.Code)
}

func TestRouter_SocketHandshake(t *testing.T) {
	a := newAPITest(t, func(cfg *config.Config) {
		cfg.WebSocket.MaxConnNum = 1
	})
	a.serve()
	u1, u2 := token(t, "u1", "student"), token(t, "u2", "student")

	status, env, _ := a.do(http.MethodPost, "/conversations", u1, map[string]interface{}{
		"kind":           "direct",
		"participantIds": []string{"u2"},
	})
	require.Equal(t, http.StatusCreated, status, env.Msg)
	var conv entity.ConversationInfo
	require.NoError(t, json.Unmarshal(env.Data, &conv))

	t.Run("missing token", func(t *testing.T) {
		resp := ut.PerformRequest(a.h.Engine, http.MethodGet, "/ws", nil).Result()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
		assert.Contains(t, string(resp.Body()), errcode.ErrTokenMissing.Msg)
	})

	t.Run("invalid token", func(t *testing.T) {
		resp := ut.PerformRequest(a.h.Engine, http.MethodGet, "/ws?token=garbage", nil).Result()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
		assert.Contains(t, string(resp.Body()), errcode.ErrTokenInvalid.Msg)
	})

	header := http.Header{}
	header.Set("Authorization", "Bearer "+u2)
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+a.addr+"/ws", header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return a.ws.GetOnlineConnCount() == 1 && a.ws.IsOnline(context.Background(), "u2")
	}, 2*time.Second, 10*time.Millisecond)

	t.Run("over capacity", func(t *testing.T) {
		resp := ut.PerformRequest(a.h.Engine, http.MethodGet, "/ws",
			nil, ut.Header{Key: "Authorization", Value: "Bearer " + u1}).Result()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode())
		assert.Contains(t, string(resp.Body()), errcode.ErrConnOverLimit.Msg)
	})

	// rooms of existing conversations are joined at connect time
	status, env, _ = a.do(http.MethodPost, "/messages", u1, map[string]string{"conversationId": conv.Id, "content": "are you there"})
	require.Equal(t, http.StatusCreated, status, env.Msg)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event != gateway.EventNewMessage {
			continue
		}
		var msg entity.MessageInfo
		require.NoError(t, json.Unmarshal(frame.Data, &msg))
		assert.Equal(t, conv.Id, msg.ConversationId)
		assert.Equal(t, "are you there", msg.Content)
		break
	}
}
