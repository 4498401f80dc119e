package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/pkg/constant"
)

func conversation(kind string, active bool, settings entity.ConversationSettings) *entity.Conversation {
	conv := &entity.Conversation{Id: "c1", Kind: kind, IsActive: active}
	conv.SetSettings(settings)
	return conv
}

func TestCanPost(t *testing.T) {
	permissive := entity.DefaultConversationSettings()
	instructorsOnly := permissive
	instructorsOnly.OnlyInstructorsCanPost = true
	noStudents := permissive
	noStudents.AllowStudentMessages = false

	member := &entity.Participant{UserId: "u1", Role: "student"}

	tests := []struct {
		name     string
		conv     *entity.Conversation
		p        *entity.Participant
		role     common.RoleType
		expected bool
	}{
		{"direct participant", conversation(constant.ConvKindDirect, true, permissive), member, common.RoleStudent, true},
		{"direct non-participant", conversation(constant.ConvKindDirect, true, permissive), nil, common.RoleStudent, false},
		{"direct inactive", conversation(constant.ConvKindDirect, false, permissive), member, common.RoleStudent, false},
		{"direct ignores settings", conversation(constant.ConvKindDirect, true, instructorsOnly), member, common.RoleStudent, true},
		{"course group student", conversation(constant.ConvKindCourseGroup, true, permissive), member, common.RoleStudent, true},
		{"course group non-participant admin", conversation(constant.ConvKindCourseGroup, true, permissive), nil, common.RoleAdmin, false},
		{"instructors only student", conversation(constant.ConvKindCourseGroup, true, instructorsOnly), member, common.RoleStudent, false},
		{"instructors only instructor", conversation(constant.ConvKindCourseGroup, true, instructorsOnly), member, common.RoleInstructor, true},
		{"instructors only admin", conversation(constant.ConvKindInstructorGroup, true, instructorsOnly), member, common.RoleAdmin, true},
		{"students muted", conversation(constant.ConvKindCourseGroup, true, noStudents), member, common.RoleStudent, false},
		{"students muted instructor", conversation(constant.ConvKindCourseGroup, true, noStudents), member, common.RoleInstructor, true},
		{"instructor group inactive", conversation(constant.ConvKindInstructorGroup, false, permissive), member, common.RoleInstructor, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanPost(tt.conv, tt.p, tt.role))
		})
	}
}

func TestCanPost_NonParticipantNeverPosts(t *testing.T) {
	for _, kind := range []string{constant.ConvKindDirect, constant.ConvKindCourseGroup, constant.ConvKindInstructorGroup} {
		for _, role := range []common.RoleType{common.RoleStudent, common.RoleInstructor, common.RoleAdmin} {
			assert.False(t, CanPost(conversation(kind, true, entity.DefaultConversationSettings()), nil, role), "%s/%s", kind, role)
		}
	}
}

func TestCanRead(t *testing.T) {
	instructorsOnly := entity.DefaultConversationSettings()
	instructorsOnly.OnlyInstructorsCanPost = true
	member := &entity.Participant{UserId: "u1", Role: "student"}

	assert.True(t, CanRead(conversation(constant.ConvKindCourseGroup, true, instructorsOnly), member))
	assert.False(t, CanRead(conversation(constant.ConvKindCourseGroup, false, instructorsOnly), member))
	assert.False(t, CanRead(conversation(constant.ConvKindCourseGroup, true, instructorsOnly), nil))
	assert.False(t, CanRead(nil, member))
}

func TestCanManage(t *testing.T) {
	conv := conversation(constant.ConvKindCourseGroup, true, entity.DefaultConversationSettings())
	student := &entity.Participant{UserId: "s", Role: "student"}
	instructor := &entity.Participant{UserId: "i", Role: "instructor"}

	assert.False(t, CanManage(conv, student, common.Actor{Id: "s", Role: common.RoleStudent}))
	assert.True(t, CanManage(conv, instructor, common.Actor{Id: "i", Role: common.RoleStudent}))
	assert.True(t, CanManage(conv, nil, common.Actor{Id: "root", Role: common.RoleAdmin}))
	assert.False(t, CanManage(conv, nil, common.Actor{Id: "x", Role: common.RoleInstructor}))

	inactive := conversation(constant.ConvKindCourseGroup, false, entity.DefaultConversationSettings())
	assert.False(t, CanManage(inactive, instructor, common.Actor{Id: "root", Role: common.RoleAdmin}))
}

func TestEffectiveRole(t *testing.T) {
	student := &entity.Participant{UserId: "u", Role: "student"}

	assert.Equal(t, common.RoleStudent, EffectiveRole(student, common.Actor{Id: "u", Role: common.RoleInstructor}))
	assert.Equal(t, common.RoleAdmin, EffectiveRole(student, common.Actor{Id: "u", Role: common.RoleAdmin}))
	assert.Equal(t, common.RoleInstructor, EffectiveRole(nil, common.Actor{Id: "u", Role: common.RoleInstructor}))
}
