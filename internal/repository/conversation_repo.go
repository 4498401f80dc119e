package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/coursechat/internal/entity"
)

// ConversationRepo is the repository for conversations and their participants
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// InsertIfAbsent inserts conv together with its participants unless a conversation
// with the same unique key already exists. It reports whether a row was created;
// when it was not, nothing is written and the caller should fetch the existing one.
func (r *ConversationRepo) InsertIfAbsent(ctx context.Context, conv *entity.Conversation, participants []*entity.Participant) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := entity.NowUnixMilli()
		conv.CreatedAt = now
		conv.UpdatedAt = now
		if conv.LastActivityAt == 0 {
			conv.LastActivityAt = now
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(conv)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created = true

		if len(participants) == 0 {
			return nil
		}
		for _, p := range participants {
			p.ConversationId = conv.Id
			if p.JoinedAt == 0 {
				p.JoinedAt = now
			}
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// GetById gets conversation by Id, nil if absent
func (r *ConversationRepo) GetById(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetByUniqueKey gets the active conversation holding key, nil if absent
func (r *ConversationRepo) GetByUniqueKey(ctx context.Context, key string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("unique_key = ?", key).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListByUser gets active conversations of a user, most recent activity first
func (r *ConversationRepo) ListByUser(ctx context.Context, userId string, offset, limit int) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Model(&entity.Conversation{}).
		Select("conversations.*").
		Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id").
		Where("p.user_id = ? AND conversations.is_active = ?", userId, true).
		Order("conversations.last_activity_at DESC, conversations.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// GetActiveConversationIds gets the ids of every active conversation the user is in
func (r *ConversationRepo) GetActiveConversationIds(ctx context.Context, userId string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.Participant{}).
		Joins("JOIN conversations c ON c.id = conversation_participants.conversation_id").
		Where("conversation_participants.user_id = ? AND c.is_active = ?", userId, true).
		Pluck("conversation_participants.conversation_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Update updates conversation fields
func (r *ConversationRepo) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["updated_at"] = entity.NowUnixMilli()
	return r.db.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Deactivate soft deletes a conversation and releases its unique key,
// so a new conversation can be created for the same pair or course.
func (r *ConversationRepo) Deactivate(ctx context.Context, id string) error {
	return r.Update(ctx, id, map[string]interface{}{
		"is_active":  false,
		"unique_key": gorm.Expr("NULL"),
	})
}

// TouchLastMessage records the latest message of a conversation
func (r *ConversationRepo) TouchLastMessage(ctx context.Context, tx *gorm.DB, id string, messageId, at int64) error {
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_id":  messageId,
			"last_activity_at": at,
			"updated_at":       at,
		}).Error
}

// AddParticipant adds a participant unless already present, reporting whether it was added
func (r *ConversationRepo) AddParticipant(ctx context.Context, p *entity.Participant) (bool, error) {
	if p.JoinedAt == 0 {
		p.JoinedAt = entity.NowUnixMilli()
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetParticipant gets a participant, nil if the user is not in the conversation
func (r *ConversationRepo) GetParticipant(ctx context.Context, conversationId, userId string) (*entity.Participant, error) {
	var p entity.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetParticipants gets participants of a conversation in join order
func (r *ConversationRepo) GetParticipants(ctx context.Context, conversationId string) ([]*entity.Participant, error) {
	var participants []*entity.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// GetParticipantsByConvIds gets participants of several conversations, keyed by conversation id
func (r *ConversationRepo) GetParticipantsByConvIds(ctx context.Context, conversationIds []string) (map[string][]*entity.Participant, error) {
	result := make(map[string][]*entity.Participant, len(conversationIds))
	if len(conversationIds) == 0 {
		return result, nil
	}

	var participants []*entity.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIds).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		result[p.ConversationId] = append(result[p.ConversationId], p)
	}
	return result, nil
}

// GetParticipantUserIds gets the user ids of a conversation
func (r *ConversationRepo) GetParticipantUserIds(ctx context.Context, conversationId string) ([]string, error) {
	var userIds []string
	err := r.db.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("conversation_id = ?", conversationId).
		Order("joined_at ASC, id ASC").
		Pluck("user_id", &userIds).Error
	if err != nil {
		return nil, err
	}
	return userIds, nil
}

// UpdateLastRead moves the read marker of a participant
func (r *ConversationRepo) UpdateLastRead(ctx context.Context, tx *gorm.DB, conversationId, userId string, messageId, at int64) error {
	return tx.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND last_read_message_id < ?", conversationId, userId, messageId).
		Updates(map[string]interface{}{
			"last_read_message_id": messageId,
			"last_read_at":         at,
		}).Error
}
