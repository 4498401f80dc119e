package entity

// ReadReceipt records that a user has read a message.
// A user appears at most once per message.
type ReadReceipt struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId      int64  `json:"messageId" gorm:"column:message_id;not null;uniqueIndex:uk_read_msg_user,priority:1"`
	UserId         string `json:"userId" gorm:"column:user_id;size:64;not null;uniqueIndex:uk_read_msg_user,priority:2;index:idx_read_conv_user,priority:2"`
	ConversationId string `json:"conversationId" gorm:"column:conversation_id;size:32;not null;index:idx_read_conv_user,priority:1"`
	ReadAt         int64  `json:"readAt" gorm:"column:read_at"`
}

// TableName returns the table name for ReadReceipt
func (ReadReceipt) TableName() string {
	return "message_reads"
}

// ReadInfo is a read receipt as exposed on a message
type ReadInfo struct {
	UserId string `json:"userId"`
	ReadAt int64  `json:"readAt"`
}
