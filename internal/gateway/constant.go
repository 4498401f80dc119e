package gateway

import "time"

// Client to server events
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventSendMessage       = "send_message"
	EventPing              = "ping"
)

// Server to client events
const (
	EventNewMessage          = "new_message"
	EventUserTyping          = "user_typing"
	EventUserStatusChange    = "user_status_change"
	EventConversationCreated = "conversation_created"
	EventAck                 = "ack"
	EventError               = "error"
)

// Timeout defaults, used when the websocket config leaves them unset
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 30 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 51200

	// WriteChannelSize is the number of frames buffered per connection
	WriteChannelSize = 256
)

// OnlineRefreshInterval is how often the redis presence keys of local users are renewed
const OnlineRefreshInterval = 30 * time.Second

// Handshake parameters
const (
	QueryToken          = "token"
	HeaderAuthorization = "Authorization"
)
