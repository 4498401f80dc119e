package sdk

// Conversation kinds
const (
	ConvKindDirect          = "direct"
	ConvKindCourseGroup     = "course_group"
	ConvKindInstructorGroup = "instructor_group"
)

// Message kinds
const (
	MsgKindText   = "text"
	MsgKindSystem = "system"
)

// Participant roles
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Socket events sent by the client
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventSendMessage       = "send_message"
	EventPing              = "ping"
)

// Socket events sent by the server
const (
	EventNewMessage          = "new_message"
	EventUserTyping          = "user_typing"
	EventUserStatusChange    = "user_status_change"
	EventConversationCreated = "conversation_created"
	EventAck                 = "ack"
	EventError               = "error"
)

// MaxMessageRunes is the longest accepted message content
const MaxMessageRunes = 2000
