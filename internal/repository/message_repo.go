package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/coursechat/internal/entity"
)

// MessageRepo is the repository for messages and read receipts
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create creates a new message
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	if msg.CreatedAt == 0 {
		msg.CreatedAt = entity.NowUnixMilli()
	}
	return tx.WithContext(ctx).Create(msg).Error
}

// ListNewestFirst gets a page of messages ordered by id descending.
// With beforeId > 0 the page starts right below that message and offset is ignored.
func (r *MessageRepo) ListNewestFirst(ctx context.Context, conversationId string, beforeId int64, offset, limit int) ([]*entity.Message, error) {
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId)
	if beforeId > 0 {
		query = query.Where("id < ?", beforeId)
	} else if offset > 0 {
		query = query.Offset(offset)
	}

	var messages []*entity.Message
	err := query.Order("id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetUnreadMessageIds gets ids of messages the user neither sent nor read
func (r *MessageRepo) GetUnreadMessageIds(ctx context.Context, tx *gorm.DB, conversationId, userId string) ([]int64, error) {
	var ids []int64
	err := tx.WithContext(ctx).
		Table("messages m").
		Joins("LEFT JOIN message_reads r ON r.message_id = m.id AND r.user_id = ?", userId).
		Where("m.conversation_id = ? AND m.sender_id <> ? AND r.id IS NULL", conversationId, userId).
		Order("m.id ASC").
		Pluck("m.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateReadReceipts inserts read receipts, ignoring ones that already exist
func (r *MessageRepo) CreateReadReceipts(ctx context.Context, tx *gorm.DB, receipts []*entity.ReadReceipt) error {
	if len(receipts) == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(receipts, 500).Error
}

// CountUnread counts messages in a conversation the user neither sent nor read
func (r *MessageRepo) CountUnread(ctx context.Context, conversationId, userId string) (int64, error) {
	counts, err := r.CountUnreadByConvIds(ctx, userId, []string{conversationId})
	if err != nil {
		return 0, err
	}
	return counts[conversationId], nil
}

// CountUnreadByConvIds counts unread messages for several conversations in one query
func (r *MessageRepo) CountUnreadByConvIds(ctx context.Context, userId string, conversationIds []string) (map[string]int64, error) {
	result := make(map[string]int64, len(conversationIds))
	if len(conversationIds) == 0 {
		return result, nil
	}

	var rows []struct {
		ConversationId string
		Unread         int64
	}
	err := r.db.WithContext(ctx).
		Table("messages m").
		Select("m.conversation_id AS conversation_id, COUNT(*) AS unread").
		Joins("LEFT JOIN message_reads r ON r.message_id = m.id AND r.user_id = ?", userId).
		Where("m.conversation_id IN ? AND m.sender_id <> ? AND r.id IS NULL", conversationIds, userId).
		Group("m.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ConversationId] = row.Unread
	}
	return result, nil
}

// GetReadReceipts gets the readers of each message, in read order
func (r *MessageRepo) GetReadReceipts(ctx context.Context, messageIds []int64) (map[int64][]entity.ReadInfo, error) {
	result := make(map[int64][]entity.ReadInfo, len(messageIds))
	if len(messageIds) == 0 {
		return result, nil
	}

	var receipts []*entity.ReadReceipt
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIds).
		Order("read_at ASC, id ASC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	for _, rr := range receipts {
		result[rr.MessageId] = append(result[rr.MessageId], entity.ReadInfo{UserId: rr.UserId, ReadAt: rr.ReadAt})
	}
	return result, nil
}

// CountReadReceipts counts receipts a user holds in a conversation
func (r *MessageRepo) CountReadReceipts(ctx context.Context, conversationId, userId string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ReadReceipt{}).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Count(&count).Error
	return count, err
}
