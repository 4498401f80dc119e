package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/internal/policy"
	"github.com/mbeoliero/coursechat/internal/repository"
	"github.com/mbeoliero/coursechat/pkg/constant"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/idgen"
)

const sendLockStripes = 256

// MessagePusher delivers a persisted message to the conversation room
type MessagePusher interface {
	PushMessage(ctx context.Context, msg *entity.MessageInfo)
}

// MessageService handles message-related business logic
type MessageService struct {
	msgRepo  *repository.MessageRepo
	convRepo *repository.ConversationRepo
	repos    *repository.Repositories
	profiles ProfileResolver
	pusher   MessagePusher
	sendLock *keyedMutex
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories, profiles ProfileResolver) *MessageService {
	return &MessageService{
		msgRepo:  repos.Message,
		convRepo: repos.Conversation,
		repos:    repos,
		profiles: profiles,
		sendLock: newKeyedMutex(sendLockStripes),
	}
}

// SetPusher sets the message pusher
func (s *MessageService) SetPusher(pusher MessagePusher) {
	s.pusher = pusher
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversationId"`
	Content        string `json:"content"`
}

// ListMessagesRequest represents a page of message history
type ListMessagesRequest struct {
	Page     int
	Limit    int
	BeforeId int64
}

// NormalizePage clamps page and limit to their allowed ranges
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = constant.DefaultPageLimit
	}
	if limit > constant.MaxPageLimit {
		limit = constant.MaxPageLimit
	}
	return page, limit
}

// ValidateContent trims content and checks its length
func ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errcode.ErrContentEmpty
	}
	if utf8.RuneCountInString(content) > constant.MaxMessageRunes {
		return "", errcode.ErrContentTooLong
	}
	return content, nil
}

// Send posts a text message on behalf of actor
func (s *MessageService) Send(ctx context.Context, actor common.Actor, req *SendMessageRequest) (*entity.MessageInfo, error) {
	if req.ConversationId == "" {
		return nil, errcode.ErrValidation.WithMsg("conversationId is required")
	}
	content, err := ValidateContent(req.Content)
	if err != nil {
		return nil, err
	}

	conv, participant, err := s.loadAccess(ctx, req.ConversationId, actor.Id)
	if err != nil {
		return nil, err
	}
	role := policy.EffectiveRole(participant, actor)
	if !policy.CanPost(conv, participant, role) {
		if participant == nil {
			return nil, errcode.ErrNotParticipant
		}
		return nil, errcode.ErrPostNotAllowed
	}

	sender := s.senderProfile(ctx, actor.Id)
	info, err := s.persistAndPush(ctx, conv.Id, actor.Id, content, constant.MsgKindText, sender)
	if err != nil {
		return nil, err
	}

	log.CtxInfo(ctx, "message sent: conversation_id=%s, sender_id=%s, msg_id=%d", conv.Id, actor.Id, info.Id)
	return info, nil
}

// SendSystem posts a system message attributed to actorId, skipping the posting policy
func (s *MessageService) SendSystem(ctx context.Context, conversationId, actorId, content string) (*entity.MessageInfo, error) {
	content, err := ValidateContent(content)
	if err != nil {
		return nil, err
	}
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	if conv == nil || !conv.IsActive {
		return nil, errcode.ErrConvNotFound
	}

	return s.persistAndPush(ctx, conv.Id, actorId, content, constant.MsgKindSystem, s.senderProfile(ctx, actorId))
}

// persistAndPush stores the message and hands it to the pusher while holding the
// conversation's send lock, so the push queue sees messages in id order.
// The lock is per process: with several instances, sends accepted by different
// instances may reach subscribers interleaved, and id order from List stays authoritative.
func (s *MessageService) persistAndPush(ctx context.Context, conversationId, senderId, content, kind string, sender *entity.Profile) (*entity.MessageInfo, error) {
	unlock := s.sendLock.Lock(conversationId)
	defer unlock()

	msgId, err := idgen.NextInt64()
	if err != nil {
		log.CtxError(ctx, "generate message id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	msg := &entity.Message{
		Id:             msgId,
		ConversationId: conversationId,
		SenderId:       senderId,
		Content:        content,
		Kind:           kind,
		CreatedAt:      entity.NowUnixMilli(),
	}

	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.msgRepo.Create(ctx, tx, msg); err != nil {
			return err
		}
		return s.convRepo.TouchLastMessage(ctx, tx, conversationId, msg.Id, msg.CreatedAt)
	})
	if err != nil {
		log.CtxError(ctx, "persist message failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrSendFailed
	}

	info := msg.ToMessageInfo()
	info.Sender = sender
	if s.pusher != nil {
		s.pusher.PushMessage(ctx, info)
	}
	return info, nil
}

func (s *MessageService) senderProfile(ctx context.Context, userId string) *entity.Profile {
	if s.profiles == nil {
		return entity.UnknownProfile(userId)
	}
	return s.profiles.GetProfile(ctx, userId)
}

// List returns a page of history, oldest first within the page
func (s *MessageService) List(ctx context.Context, actor common.Actor, conversationId string, req ListMessagesRequest) ([]*entity.MessageInfo, error) {
	if _, _, err := s.readAccess(ctx, conversationId, actor.Id); err != nil {
		return nil, err
	}

	page, limit := NormalizePage(req.Page, req.Limit)
	msgs, err := s.msgRepo.ListNewestFirst(ctx, conversationId, req.BeforeId, (page-1)*limit, limit)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrPullFailed
	}

	infos := make([]*entity.MessageInfo, len(msgs))
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		// reverse into chronological order
		infos[len(msgs)-1-i] = m.ToMessageInfo()
		ids[i] = m.Id
	}

	readBy, err := s.msgRepo.GetReadReceipts(ctx, ids)
	if err != nil {
		log.CtxError(ctx, "get read receipts failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrPullFailed
	}
	for _, info := range infos {
		if readers, ok := readBy[info.Id]; ok {
			info.ReadBy = readers
		}
	}

	enrichMessages(ctx, s.profiles, infos...)
	return infos, nil
}

// MarkRead records read receipts for every message the actor has not sent or read yet.
// It returns how many messages were newly marked.
func (s *MessageService) MarkRead(ctx context.Context, actor common.Actor, conversationId string) (int, error) {
	conv, _, err := s.readAccess(ctx, conversationId, actor.Id)
	if err != nil {
		return 0, err
	}

	marked := 0
	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		ids, err := s.msgRepo.GetUnreadMessageIds(ctx, tx, conversationId, actor.Id)
		if err != nil {
			return err
		}
		now := entity.NowUnixMilli()
		receipts := make([]*entity.ReadReceipt, 0, len(ids))
		for _, id := range ids {
			receipts = append(receipts, &entity.ReadReceipt{
				MessageId:      id,
				ConversationId: conversationId,
				UserId:         actor.Id,
				ReadAt:         now,
			})
		}
		if err := s.msgRepo.CreateReadReceipts(ctx, tx, receipts); err != nil {
			return err
		}
		marked = len(ids)

		// ids are ascending and may include messages committed after conv was loaded
		readUpTo := conv.LastMessageId
		if len(ids) > 0 && ids[len(ids)-1] > readUpTo {
			readUpTo = ids[len(ids)-1]
		}
		if readUpTo == 0 {
			return nil
		}
		return s.convRepo.UpdateLastRead(ctx, tx, conversationId, actor.Id, readUpTo, now)
	})
	if err != nil {
		log.CtxError(ctx, "mark read failed: conversation_id=%s, user_id=%s, error=%v", conversationId, actor.Id, err)
		return 0, errcode.ErrInternalServer
	}

	if marked > 0 {
		log.CtxDebug(ctx, "messages marked read: conversation_id=%s, user_id=%s, count=%d", conversationId, actor.Id, marked)
	}
	return marked, nil
}

// UnreadCount counts messages in the conversation the user has neither sent nor read
func (s *MessageService) UnreadCount(ctx context.Context, conversationId, userId string) (int64, error) {
	count, err := s.msgRepo.CountUnread(ctx, conversationId, userId)
	if err != nil {
		log.CtxError(ctx, "count unread failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		return 0, errcode.ErrInternalServer
	}
	return count, nil
}

func (s *MessageService) loadAccess(ctx context.Context, conversationId, userId string) (*entity.Conversation, *entity.Participant, error) {
	return loadConversationAccess(ctx, s.convRepo, conversationId, userId)
}

func (s *MessageService) readAccess(ctx context.Context, conversationId, userId string) (*entity.Conversation, *entity.Participant, error) {
	conv, participant, err := s.loadAccess(ctx, conversationId, userId)
	if err != nil {
		return nil, nil, err
	}
	if !policy.CanRead(conv, participant) {
		return nil, nil, errcode.ErrNotParticipant
	}
	return conv, participant, nil
}

// loadConversationAccess loads an active conversation and the caller's participant row.
// The participant is nil when the caller is not in the conversation.
func loadConversationAccess(ctx context.Context, convRepo *repository.ConversationRepo, conversationId, userId string) (*entity.Conversation, *entity.Participant, error) {
	conv, err := convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, nil, errcode.ErrInternalServer
	}
	if conv == nil || !conv.IsActive {
		return nil, nil, errcode.ErrConvNotFound
	}

	participant, err := convRepo.GetParticipant(ctx, conversationId, userId)
	if err != nil {
		log.CtxError(ctx, "get participant failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		return nil, nil, errcode.ErrInternalServer
	}
	return conv, participant, nil
}

