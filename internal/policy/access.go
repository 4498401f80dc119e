// Package policy decides who may read, post in and manage a conversation.
// The functions are pure: callers load the conversation and the caller's
// participant row, and pass nil when the caller is not a participant.
package policy

import (
	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/entity"
)

// EffectiveRole is the role the caller acts with inside a conversation:
// the stored participant role, raised to admin for platform admins.
func EffectiveRole(p *entity.Participant, actor common.Actor) common.RoleType {
	if actor.IsAdmin() {
		return common.RoleAdmin
	}
	if p == nil {
		return actor.Role
	}
	return p.RoleType()
}

// CanRead reports whether the caller may read messages and join the room
func CanRead(conv *entity.Conversation, p *entity.Participant) bool {
	return conv != nil && conv.IsActive && p != nil
}

// CanPost reports whether the caller may send a text message
func CanPost(conv *entity.Conversation, p *entity.Participant, role common.RoleType) bool {
	if !CanRead(conv, p) {
		return false
	}
	if conv.IsDirect() {
		return true
	}

	settings := conv.GetSettings()
	if settings.OnlyInstructorsCanPost && !role.IsStaff() {
		return false
	}
	if !settings.AllowStudentMessages && !role.IsStaff() {
		return false
	}
	return true
}

// CanManage reports whether the caller may edit, extend or deactivate the conversation
func CanManage(conv *entity.Conversation, p *entity.Participant, actor common.Actor) bool {
	if conv == nil || !conv.IsActive {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return p != nil && p.RoleType().IsStaff()
}
