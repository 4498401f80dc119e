package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/internal/repository"
	"github.com/mbeoliero/coursechat/internal/testutil"
)

type fakeProfiles struct {
	mu    sync.Mutex
	roles map[string]string
	down  bool
}

func (f *fakeProfiles) GetProfile(_ context.Context, userId string) *entity.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return entity.UnknownProfile(userId)
	}
	role := f.roles[userId]
	if role == "" {
		role = string(common.RoleStudent)
	}
	return &entity.Profile{Id: userId, DisplayName: "User " + userId, Role: role, Profile: map[string]any{}}
}

func (f *fakeProfiles) GetProfiles(ctx context.Context, userIds []string) map[string]*entity.Profile {
	result := make(map[string]*entity.Profile, len(userIds))
	for _, id := range userIds {
		result[id] = f.GetProfile(ctx, id)
	}
	return result
}

func (f *fakeProfiles) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

type fakeCourses struct {
	course *entity.CourseInfo
	err    error
}

func (f *fakeCourses) GetCourse(_ context.Context, courseId string) (*entity.CourseInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := *f.course
	c.Id = courseId
	return &c, nil
}

func (f *fakeCourses) CourseTitle(ctx context.Context, courseId string) string {
	c, err := f.GetCourse(ctx, courseId)
	if err != nil || c.Title == "" {
		return entity.FallbackCourseTitle(courseId)
	}
	return c.Title
}

type fakePusher struct {
	mu       sync.Mutex
	messages []*entity.MessageInfo
}

func (f *fakePusher) PushMessage(_ context.Context, msg *entity.MessageInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakePusher) pushed() []*entity.MessageInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*entity.MessageInfo(nil), f.messages...)
}

type fakePublisher struct {
	mu         sync.Mutex
	created    map[string][]string
	subscribed map[string][]string
}

func (f *fakePublisher) PublishConversationCreated(_ context.Context, info *entity.ConversationInfo, userIds []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[info.Id] = append(f.created[info.Id], userIds...)
}

func (f *fakePublisher) SubscribeUsers(_ context.Context, conversationId string, userIds []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[conversationId] = append(f.subscribed[conversationId], userIds...)
}

type testEnv struct {
	repos     *repository.Repositories
	conv      *ConversationService
	msg       *MessageService
	course    *CourseService
	profiles  *fakeProfiles
	courses   *fakeCourses
	pusher    *fakePusher
	publisher *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos := testutil.NewRepositories(t)
	env := &testEnv{
		repos:    repos,
		profiles: &fakeProfiles{roles: map[string]string{"t1": "instructor", "admin": "admin"}},
		courses: &fakeCourses{course: &entity.CourseInfo{
			Title:         "Distributed Systems",
			InstructorIds: []string{"t1"},
		}},
		pusher:    &fakePusher{},
		publisher: &fakePublisher{created: map[string][]string{}, subscribed: map[string][]string{}},
	}
	env.msg = NewMessageService(repos, env.profiles)
	env.msg.SetPusher(env.pusher)
	env.conv = NewConversationService(repos, env.profiles, env.courses)
	env.conv.SetPublisher(env.publisher)
	env.conv.SetNotifier(env.msg)
	env.course = NewCourseService(env.courses, env.profiles)
	return env
}

func student(id string) common.Actor {
	return common.Actor{Id: id, Role: common.RoleStudent}
}

func instructor(id string) common.Actor {
	return common.Actor{Id: id, Role: common.RoleInstructor}
}

var errCourseDown = errors.New("course service down")

func (e *testEnv) send(t *testing.T, actor common.Actor, conversationId, content string) *entity.MessageInfo {
	t.Helper()
	msg, err := e.msg.Send(context.Background(), actor, &SendMessageRequest{ConversationId: conversationId, Content: content})
	require.NoError(t, err)
	return msg
}
