package entity

import (
	"gorm.io/datatypes"

	"github.com/mbeoliero/coursechat/pkg/constant"
)

// ConversationSettings controls who may post in a group conversation
type ConversationSettings struct {
	AllowStudentMessages   bool `json:"allowStudentMessages"`
	OnlyInstructorsCanPost bool `json:"onlyInstructorsCanPost"`
	AutoCreateOnEnrollment bool `json:"autoCreateOnEnrollment"`
}

// DefaultConversationSettings returns the permissive defaults
func DefaultConversationSettings() ConversationSettings {
	return ConversationSettings{
		AllowStudentMessages:   true,
		OnlyInstructorsCanPost: false,
		AutoCreateOnEnrollment: true,
	}
}

// ConversationSettingsPatch is a partial update of ConversationSettings
type ConversationSettingsPatch struct {
	AllowStudentMessages   *bool `json:"allowStudentMessages,omitempty"`
	OnlyInstructorsCanPost *bool `json:"onlyInstructorsCanPost,omitempty"`
	AutoCreateOnEnrollment *bool `json:"autoCreateOnEnrollment,omitempty"`
}

// Apply returns s with the fields set in p overwritten
func (p *ConversationSettingsPatch) Apply(s ConversationSettings) ConversationSettings {
	if p == nil {
		return s
	}
	if p.AllowStudentMessages != nil {
		s.AllowStudentMessages = *p.AllowStudentMessages
	}
	if p.OnlyInstructorsCanPost != nil {
		s.OnlyInstructorsCanPost = *p.OnlyInstructorsCanPost
	}
	if p.AutoCreateOnEnrollment != nil {
		s.AutoCreateOnEnrollment = *p.AutoCreateOnEnrollment
	}
	return s
}

// Conversation represents a conversation
type Conversation struct {
	Id             string                                   `json:"id" gorm:"column:id;primaryKey;size:32"`
	Kind           string                                   `json:"kind" gorm:"column:kind;size:32;not null"`
	CourseId       *string                                  `json:"courseId" gorm:"column:course_id;size:64;index:idx_conv_course"`
	Title          string                                   `json:"title" gorm:"column:title;size:255"`
	Description    string                                   `json:"description" gorm:"column:description;size:1024"`
	Settings       datatypes.JSONType[ConversationSettings] `json:"settings" gorm:"column:settings"`
	LastMessageId  int64                                    `json:"lastMessageId" gorm:"column:last_message_id"`
	LastActivityAt int64                                    `json:"lastActivityAt" gorm:"column:last_activity_at;index:idx_conv_activity"`
	IsActive       bool                                     `json:"isActive" gorm:"column:is_active;not null"`
	UniqueKey      *string                                  `json:"-" gorm:"column:unique_key;size:191;uniqueIndex:uk_conv_unique_key"`
	CreatedBy      string                                   `json:"createdBy" gorm:"column:created_by;size:64"`
	CreatedAt      int64                                    `json:"createdAt" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt      int64                                    `json:"updatedAt" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// IsDirect checks if the conversation is a one-to-one chat
func (c *Conversation) IsDirect() bool {
	return c.Kind == constant.ConvKindDirect
}

// GetSettings returns the decoded settings document
func (c *Conversation) GetSettings() ConversationSettings {
	return c.Settings.Data()
}

// SetSettings replaces the settings document
func (c *Conversation) SetSettings(s ConversationSettings) {
	c.Settings = datatypes.NewJSONType(s)
}

// ConversationInfo represents conversation info for API response
type ConversationInfo struct {
	Id             string               `json:"id"`
	Kind           string               `json:"kind"`
	CourseId       string               `json:"courseId,omitempty"`
	Title          string               `json:"title"`
	Description    string               `json:"description,omitempty"`
	Settings       ConversationSettings `json:"settings"`
	LastMessageId  int64                `json:"lastMessageId,omitempty"`
	LastActivityAt int64                `json:"lastActivityAt"`
	IsActive       bool                 `json:"isActive"`
	CreatedBy      string               `json:"createdBy"`
	CreatedAt      int64                `json:"createdAt"`
	Participants   []*ParticipantInfo   `json:"participants"`
	UnreadCount    int64                `json:"unreadCount"`
}

// ToConversationInfo converts Conversation to ConversationInfo
func (c *Conversation) ToConversationInfo(participants []*Participant) *ConversationInfo {
	info := &ConversationInfo{
		Id:             c.Id,
		Kind:           c.Kind,
		Title:          c.Title,
		Description:    c.Description,
		Settings:       c.GetSettings(),
		LastMessageId:  c.LastMessageId,
		LastActivityAt: c.LastActivityAt,
		IsActive:       c.IsActive,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		Participants:   make([]*ParticipantInfo, 0, len(participants)),
	}
	if c.CourseId != nil {
		info.CourseId = *c.CourseId
	}
	for _, p := range participants {
		info.Participants = append(info.Participants, p.ToParticipantInfo())
	}
	return info
}
