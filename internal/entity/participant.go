package entity

import "github.com/mbeoliero/coursechat/common"

// Participant represents a member of a conversation
type Participant struct {
	Id                int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId    string `json:"conversationId" gorm:"column:conversation_id;size:32;not null;uniqueIndex:uk_participant_conv_user,priority:1"`
	UserId            string `json:"userId" gorm:"column:user_id;size:64;not null;uniqueIndex:uk_participant_conv_user,priority:2;index:idx_participant_user"`
	Role              string `json:"role" gorm:"column:role;size:16;not null"`
	JoinedAt          int64  `json:"joinedAt" gorm:"column:joined_at"`
	LastReadMessageId int64  `json:"lastReadMessageId" gorm:"column:last_read_message_id"`
	LastReadAt        int64  `json:"lastReadAt" gorm:"column:last_read_at"`
}

// TableName returns the table name for Participant
func (Participant) TableName() string {
	return "conversation_participants"
}

// RoleType returns the participant role
func (p *Participant) RoleType() common.RoleType {
	return common.ParseRole(p.Role)
}

// NewParticipant builds a participant row joining now
func NewParticipant(conversationId, userId string, role common.RoleType) *Participant {
	return &Participant{
		ConversationId: conversationId,
		UserId:         userId,
		Role:           string(common.ParseRole(string(role))),
		JoinedAt:       NowUnixMilli(),
	}
}

// ParticipantInfo represents participant info for API response
type ParticipantInfo struct {
	UserId            string   `json:"userId"`
	Role              string   `json:"role"`
	JoinedAt          int64    `json:"joinedAt"`
	LastReadMessageId int64    `json:"lastReadMessageId,omitempty"`
	User              *Profile `json:"user,omitempty"`
}

// ToParticipantInfo converts Participant to ParticipantInfo
func (p *Participant) ToParticipantInfo() *ParticipantInfo {
	return &ParticipantInfo{
		UserId:            p.UserId,
		Role:              p.Role,
		JoinedAt:          p.JoinedAt,
		LastReadMessageId: p.LastReadMessageId,
	}
}

// FindParticipantInfo returns the participant info with userId, or nil
func FindParticipantInfo(participants []*ParticipantInfo, userId string) *ParticipantInfo {
	for _, p := range participants {
		if p.UserId == userId {
			return p
		}
	}
	return nil
}
