package entity

// Message represents a message
type Message struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement:false;index:idx_msg_conv_id,priority:2"`
	ConversationId string `json:"conversationId" gorm:"column:conversation_id;size:32;not null;index:idx_msg_conv_id,priority:1"`
	SenderId       string `json:"senderId" gorm:"column:sender_id;size:64;not null"`
	Content        string `json:"content" gorm:"column:content;type:text"`
	Kind           string `json:"kind" gorm:"column:kind;size:16;not null"`
	CreatedAt      int64  `json:"createdAt" gorm:"column:created_at"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// MessageInfo represents message info for API response
type MessageInfo struct {
	Id             int64      `json:"id"`
	ConversationId string     `json:"conversationId"`
	SenderId       string     `json:"senderId"`
	Sender         *Profile   `json:"sender,omitempty"`
	Content        string     `json:"content"`
	Kind           string     `json:"kind"`
	CreatedAt      int64      `json:"createdAt"`
	ReadBy         []ReadInfo `json:"readBy"`
}

// ToMessageInfo converts Message to MessageInfo
func (m *Message) ToMessageInfo() *MessageInfo {
	return &MessageInfo{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		Content:        m.Content,
		Kind:           m.Kind,
		CreatedAt:      m.CreatedAt,
		ReadBy:         []ReadInfo{},
	}
}
