package gateway

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/internal/ratelimit"
	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/internal/testutil"
)

// fakeConn is an in-memory ClientConn
type fakeConn struct {
	in     chan []byte
	mu     sync.Mutex
	out    [][]byte
	limit  int
	closed bool
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	msg, ok := <-f.in
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

func (f *fakeConn) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	if f.limit > 0 && len(f.out) >= f.limit {
		return ErrWriteChannelFull
	}
	f.out = append(f.out, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.in) })
	return nil
}

func (f *fakeConn) send(t *testing.T, event, reqId string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(WSRequest{Event: event, ReqId: reqId, Data: raw})
	require.NoError(t, err)
	f.in <- frame
}

// frames decodes every frame written so far
func (f *fakeConn) frames() []WSResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]WSResponse, 0, len(f.out))
	for _, raw := range f.out {
		var resp WSResponse
		if err := json.Unmarshal(raw, &resp); err == nil {
			result = append(result, resp)
		}
	}
	return result
}

func (f *fakeConn) framesOf(event string) []WSResponse {
	var result []WSResponse
	for _, resp := range f.frames() {
		if resp.Event == event {
			result = append(result, resp)
		}
	}
	return result
}

// reply finds the ack or error frame answering reqId
func (f *fakeConn) reply(reqId string) (WSResponse, bool) {
	for _, resp := range f.frames() {
		if resp.ReqId == reqId {
			return resp, true
		}
	}
	return WSResponse{}, false
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeProfiles struct{}

func roleOf(userId string) common.RoleType {
	if userId == "t1" {
		return common.RoleInstructor
	}
	return common.RoleStudent
}

func (fakeProfiles) GetProfile(_ context.Context, userId string) *entity.Profile {
	return &entity.Profile{Id: userId, DisplayName: "User " + userId, Role: string(roleOf(userId)), Profile: map[string]any{}}
}

func (p fakeProfiles) GetProfiles(ctx context.Context, userIds []string) map[string]*entity.Profile {
	result := make(map[string]*entity.Profile, len(userIds))
	for _, id := range userIds {
		result[id] = p.GetProfile(ctx, id)
	}
	return result
}

type fakeCourses struct{}

func (fakeCourses) GetCourse(_ context.Context, courseId string) (*entity.CourseInfo, error) {
	return &entity.CourseInfo{Id: courseId, Title: "Course " + courseId, InstructorIds: []string{"t1"}}, nil
}

func (fakeCourses) CourseTitle(_ context.Context, courseId string) string {
	return "Course " + courseId
}

type testServer struct {
	*WsServer
	conv *service.ConversationService
	msg  *service.MessageService
}

func newTestServer(t *testing.T, rateLimit config.RateLimitConfig) *testServer {
	t.Helper()
	repos := testutil.NewRepositories(t)
	profiles := fakeProfiles{}

	msgService := service.NewMessageService(repos, profiles)
	convService := service.NewConversationService(repos, profiles, fakeCourses{})
	cfg := &config.Config{WebSocket: config.WebSocketConfig{PushWorkerNum: 4, PushChannelSize: 4096}}

	s := NewWsServer(cfg, Deps{
		Redis:       repos.Redis,
		Auth:        service.NewAuthService(cfg, repos.Redis),
		MsgService:  msgService,
		ConvService: convService,
		Profiles:    profiles,
		Limiter:     ratelimit.NewLimiter(repos.Redis, rateLimit),
	})
	msgService.SetPusher(s)
	convService.SetPublisher(s)
	convService.SetNotifier(msgService)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.Run(ctx))
	return &testServer{WsServer: s, conv: convService, msg: msgService}
}

// connect registers a fake connection for userId and starts its read loop
func (s *testServer) connect(t *testing.T, userId, connId string) (*Client, *fakeConn) {
	t.Helper()
	ctx := context.Background()
	conversationIds, err := s.conv.ParticipantConversationIds(ctx, userId)
	require.NoError(t, err)

	conn := newFakeConn()
	client := NewClient(conn, common.Actor{Id: userId, Role: roleOf(userId)}, connId, s.WsServer)
	s.RegisterClient(client, conversationIds)
	go client.readLoop()
	return client, conn
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func decode(t *testing.T, resp WSResponse, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}
