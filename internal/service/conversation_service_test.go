package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/pkg/constant"
	"github.com/mbeoliero/coursechat/pkg/errcode"
)

func TestConversationService_GetOrCreateDirect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	info, created, err := env.conv.GetOrCreateDirect(ctx, student("u1"), "t1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, constant.ConvKindDirect, info.Kind)
	require.Len(t, info.Participants, 2)

	other := entity.FindParticipantInfo(info.Participants, "t1")
	require.NotNil(t, other)
	assert.Equal(t, string(common.RoleInstructor), other.Role)
	require.NotNil(t, other.User)
	assert.Equal(t, "User t1", other.User.DisplayName)
	assert.ElementsMatch(t, []string{"u1", "t1"}, env.publisher.created[info.Id])

	again, created, err := env.conv.GetOrCreateDirect(ctx, instructor("t1"), "u1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, info.Id, again.Id)

	_, _, err = env.conv.GetOrCreateDirect(ctx, student("u1"), "u1")
	assert.ErrorIs(t, err, errcode.ErrSelfChat)
}

func TestConversationService_GetOrCreateDirectConcurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	const callers = 10
	ids := make([]string, callers)
	createdCount := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor, other := student("a"), "b"
			if i%2 == 1 {
				actor, other = student("b"), "a"
			}
			info, created, err := env.conv.GetOrCreateDirect(ctx, actor, other)
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			ids[i] = info.Id
			if created {
				createdCount++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	list, err := env.conv.ListForUser(ctx, "a", 1, 20)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConversationService_CourseGroupConcurrentJoin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	const joiners = 5
	ids := make([]string, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, _, err := env.conv.GetOrCreateCourseGroup(ctx, student(fmt.Sprintf("s%d", i)), "c42", "")
			require.NoError(t, err)
			ids[i] = info.Id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	info, err := env.conv.Get(ctx, student("s0"), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Distributed Systems", info.Title)
	assert.Equal(t, "c42", info.CourseId)
	assert.Len(t, info.Participants, joiners)

	// everyone but the creator is announced with a system message
	systemCount := 0
	for _, m := range env.pusher.pushed() {
		if m.Kind == constant.MsgKindSystem {
			systemCount++
			assert.Contains(t, m.Content, "joined the conversation")
		}
	}
	assert.Equal(t, joiners-1, systemCount)
}

func TestConversationService_CourseGroupTitle(t *testing.T) {
	ctx := context.Background()

	t.Run("student hint ignored", func(t *testing.T) {
		env := newTestEnv(t)
		info, _, err := env.conv.GetOrCreateCourseGroup(ctx, student("s1"), "c1", "My own title")
		require.NoError(t, err)
		assert.Equal(t, "Distributed Systems", info.Title)
	})

	t.Run("instructor hint used at creation", func(t *testing.T) {
		env := newTestEnv(t)
		info, _, err := env.conv.GetOrCreateCourseGroup(ctx, instructor("t1"), "c1", "DS Fall cohort")
		require.NoError(t, err)
		assert.Equal(t, "DS Fall cohort", info.Title)
		inst := entity.FindParticipantInfo(info.Participants, "t1")
		require.NotNil(t, inst)
		assert.Equal(t, string(common.RoleInstructor), inst.Role)

		// a later hint never renames the group
		info, created, err := env.conv.GetOrCreateCourseGroup(ctx, common.Actor{Id: "admin", Role: common.RoleAdmin}, "c1", "Renamed")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "DS Fall cohort", info.Title)
	})

	t.Run("course service down", func(t *testing.T) {
		env := newTestEnv(t)
		env.courses.err = errCourseDown
		info, _, err := env.conv.GetOrCreateCourseGroup(ctx, student("s1"), "c9", "")
		require.NoError(t, err)
		assert.Equal(t, "Course c9", info.Title)
	})
}

func TestConversationService_InstructorChat(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	info, created, err := env.conv.GetOrCreateInstructorChat(ctx, student("s1"), "c1", "t1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, constant.ConvKindInstructorGroup, info.Kind)
	inst := entity.FindParticipantInfo(info.Participants, "t1")
	require.NotNil(t, inst)
	assert.Equal(t, string(common.RoleInstructor), inst.Role)

	_, _, err = env.conv.GetOrCreateInstructorChat(ctx, student("s1"), "c1", "s2")
	assert.ErrorIs(t, err, errcode.ErrValidation)

	// unverifiable roster is accepted
	env.courses.err = errCourseDown
	_, created, err = env.conv.GetOrCreateInstructorChat(ctx, student("s1"), "c2", "s2")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestConversationService_Create(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, _, err := env.conv.Create(ctx, student("u1"), &CreateConversationRequest{Kind: "party"})
	assert.ErrorIs(t, err, errcode.ErrValidation)

	_, _, err = env.conv.Create(ctx, student("u1"), &CreateConversationRequest{Kind: constant.ConvKindDirect, ParticipantIds: []string{"u1"}})
	assert.ErrorIs(t, err, errcode.ErrSelfChat)

	_, _, err = env.conv.Create(ctx, student("u1"), &CreateConversationRequest{Kind: constant.ConvKindDirect, ParticipantIds: []string{"u2", "u3"}})
	assert.ErrorIs(t, err, errcode.ErrValidation)

	info, created, err := env.conv.Create(ctx, student("u1"), &CreateConversationRequest{Kind: constant.ConvKindDirect, ParticipantIds: []string{"u1", "u2", "u2"}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, info.Participants, 2)

	_, _, err = env.conv.Create(ctx, student("u1"), &CreateConversationRequest{Kind: constant.ConvKindCourseGroup})
	assert.ErrorIs(t, err, errcode.ErrValidation)
}

func TestConversationService_GetAccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	info, _, err := env.conv.GetOrCreateDirect(ctx, student("u1"), "u2")
	require.NoError(t, err)

	_, err = env.conv.Get(ctx, student("u3"), info.Id)
	assert.ErrorIs(t, err, errcode.ErrNotParticipant)

	_, err = env.conv.Get(ctx, student("u1"), "missing")
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)

	assert.NoError(t, env.conv.CheckReadAccess(ctx, info.Id, "u2"))
	assert.ErrorIs(t, env.conv.CheckReadAccess(ctx, info.Id, "u3"), errcode.ErrNotParticipant)
}

func TestConversationService_AddParticipant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	group, _, err := env.conv.GetOrCreateCourseGroup(ctx, instructor("t1"), "c1", "")
	require.NoError(t, err)

	_, err = env.conv.AddParticipantAs(ctx, student("s1"), group.Id, &AddParticipantRequest{UserId: "s2"})
	assert.ErrorIs(t, err, errcode.ErrForbidden)

	info, err := env.conv.AddParticipantAs(ctx, instructor("t1"), group.Id, &AddParticipantRequest{UserId: "s2", Role: "student"})
	require.NoError(t, err)
	assert.NotNil(t, entity.FindParticipantInfo(info.Participants, "s2"))
	assert.Contains(t, env.publisher.subscribed[group.Id], "s2")

	added, err := env.conv.AddParticipant(ctx, group.Id, "s2", common.RoleStudent)
	require.NoError(t, err)
	assert.False(t, added)

	pushed := env.pusher.pushed()
	require.Len(t, pushed, 1)
	assert.Equal(t, "User s2 joined the conversation", pushed[0].Content)

	direct, _, err := env.conv.GetOrCreateDirect(ctx, student("u1"), "u2")
	require.NoError(t, err)
	_, err = env.conv.AddParticipant(ctx, direct.Id, "u3", common.RoleStudent)
	assert.ErrorIs(t, err, errcode.ErrValidation)

	_, err = env.conv.AddParticipant(ctx, "missing", "u3", common.RoleStudent)
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)
}

func TestConversationService_UpdateAndDeactivate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	group, _, err := env.conv.GetOrCreateCourseGroup(ctx, instructor("t1"), "c1", "")
	require.NoError(t, err)
	_, _, err = env.conv.GetOrCreateCourseGroup(ctx, student("s1"), "c1", "")
	require.NoError(t, err)

	title := "Office hours"
	off := false
	_, err = env.conv.Update(ctx, student("s1"), group.Id, &UpdateConversationRequest{Title: &title})
	assert.ErrorIs(t, err, errcode.ErrForbidden)

	info, err := env.conv.Update(ctx, instructor("t1"), group.Id, &UpdateConversationRequest{
		Title:    &title,
		Settings: &entity.ConversationSettingsPatch{AllowStudentMessages: &off},
	})
	require.NoError(t, err)
	assert.Equal(t, "Office hours", info.Title)
	assert.False(t, info.Settings.AllowStudentMessages)
	assert.True(t, info.Settings.AutoCreateOnEnrollment)

	_, err = env.msg.Send(ctx, student("s1"), &SendMessageRequest{ConversationId: group.Id, Content: "hi"})
	assert.ErrorIs(t, err, errcode.ErrPostNotAllowed)

	assert.ErrorIs(t, env.conv.Deactivate(ctx, student("s1"), group.Id), errcode.ErrForbidden)
	require.NoError(t, env.conv.Deactivate(ctx, common.Actor{Id: "admin", Role: common.RoleAdmin}, group.Id))

	_, err = env.conv.Get(ctx, instructor("t1"), group.Id)
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)

	fresh, created, err := env.conv.GetOrCreateCourseGroup(ctx, student("s1"), "c1", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, group.Id, fresh.Id)

	ids, err := env.conv.ParticipantConversationIds(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestConversationService_ListForUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first, _, err := env.conv.GetOrCreateDirect(ctx, student("u1"), "u2")
	require.NoError(t, err)
	second, _, err := env.conv.GetOrCreateDirect(ctx, student("u1"), "u3")
	require.NoError(t, err)

	env.send(t, student("u3"), second.Id, "hello")
	time.Sleep(5 * time.Millisecond)
	env.send(t, student("u2"), first.Id, "newest")

	list, err := env.conv.ListForUser(ctx, "u1", 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Id, list[0].Id)
	assert.Equal(t, second.Id, list[1].Id)
	assert.Equal(t, int64(1), list[0].UnreadCount)
	for _, p := range list[0].Participants {
		require.NotNil(t, p.User)
	}

	page2, err := env.conv.ListForUser(ctx, "u1", 2, 1)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, second.Id, page2[0].Id)

	ids, err := env.conv.ParticipantConversationIds(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.Id, second.Id}, ids)
}

func TestCourseService_ListInstructors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	profiles := env.course.ListInstructors(ctx, "c1")
	require.Len(t, profiles, 1)
	assert.Equal(t, "t1", profiles[0].Id)

	env.courses.err = errCourseDown
	assert.Empty(t, env.course.ListInstructors(ctx, "c1"))
}
