package sdk

import "encoding/json"

// Response represents the standard API envelope
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Page is a page of list results
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ========== Identity ==========

// Profile is the identity of a user as resolved by the server
type Profile struct {
	Id          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Role        string         `json:"role"`
	Avatar      string         `json:"avatar,omitempty"`
	Profile     map[string]any `json:"profile"`
}

// ========== Conversation ==========

// ConversationSettings are the posting rules of a group conversation
type ConversationSettings struct {
	AllowStudentMessages   bool `json:"allowStudentMessages"`
	OnlyInstructorsCanPost bool `json:"onlyInstructorsCanPost"`
	AutoCreateOnEnrollment bool `json:"autoCreateOnEnrollment"`
}

// ConversationSettingsPatch changes only the fields that are set
type ConversationSettingsPatch struct {
	AllowStudentMessages   *bool `json:"allowStudentMessages,omitempty"`
	OnlyInstructorsCanPost *bool `json:"onlyInstructorsCanPost,omitempty"`
	AutoCreateOnEnrollment *bool `json:"autoCreateOnEnrollment,omitempty"`
}

// Participant is a member of a conversation
type Participant struct {
	UserId            string   `json:"userId"`
	Role              string   `json:"role"`
	JoinedAt          int64    `json:"joinedAt"`
	LastReadMessageId int64    `json:"lastReadMessageId,omitempty"`
	User              *Profile `json:"user,omitempty"`
}

// Conversation represents conversation information
type Conversation struct {
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
	Participants   []*Participant       `json:"participants"`
	UnreadCount    int64                `json:"unreadCount"`
}

// CreateConversationRequest represents conversation creation request
type CreateConversationRequest struct {
	Kind           string   `json:"kind"`
	ParticipantIds []string `json:"participantIds,omitempty"`
	CourseId       string   `json:"courseId,omitempty"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
}

// UpdateConversationRequest represents a partial conversation update
type UpdateConversationRequest struct {
	Title       *string                    `json:"title,omitempty"`
	Description *string                    `json:"description,omitempty"`
	Settings    *ConversationSettingsPatch `json:"settings,omitempty"`
}

// AddParticipantRequest represents a membership addition
type AddParticipantRequest struct {
	UserId string `json:"userId"`
	Role   string `json:"role"`
}

// ========== Message ==========

// ReadInfo records when a participant read a message
type ReadInfo struct {
	UserId string `json:"userId"`
	ReadAt int64  `json:"readAt"`
}

// Message represents message information
type Message struct {
	Id             int64      `json:"id"`
	ConversationId string     `json:"conversationId"`
	SenderId       string     `json:"senderId"`
	Sender         *Profile   `json:"sender,omitempty"`
	Content        string     `json:"content"`
	Kind           string     `json:"kind"`
	CreatedAt      int64      `json:"createdAt"`
	ReadBy         []ReadInfo `json:"readBy"`
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversationId"`
	Content        string `json:"content"`
}

// MarkReadResponse reports how many messages a read marked
type MarkReadResponse struct {
	Marked int `json:"marked"`
}

// ========== Realtime ==========

// Frame is a server pushed socket frame
type Frame struct {
	Event   string          `json:"event"`
	ReqId   string          `json:"reqId,omitempty"`
	ErrCode int             `json:"errCode"`
	ErrMsg  string          `json:"errMsg,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the frame payload into v
func (f *Frame) Decode(v interface{}) error {
	return json.Unmarshal(f.Data, v)
}

// TypingEvent is the payload of user_typing
type TypingEvent struct {
	ConversationId string `json:"conversationId"`
	UserId         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	IsTyping       bool   `json:"isTyping"`
}

// StatusEvent is the payload of user_status_change
type StatusEvent struct {
	UserId    string `json:"userId"`
	IsOnline  bool   `json:"isOnline"`
	Timestamp int64  `json:"timestamp"`
}
