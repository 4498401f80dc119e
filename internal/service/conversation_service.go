package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/internal/policy"
	"github.com/mbeoliero/coursechat/internal/repository"
	"github.com/mbeoliero/coursechat/pkg/constant"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/idgen"
)

const (
	maxTitleRunes       = 255
	maxDescriptionRunes = 1024
	// a unique key can be released by a concurrent deactivate between insert and fetch
	findOrCreateAttempts = 3
)

// ConversationPublisher announces new conversations and memberships to live connections
type ConversationPublisher interface {
	PublishConversationCreated(ctx context.Context, info *entity.ConversationInfo, userIds []string)
	SubscribeUsers(ctx context.Context, conversationId string, userIds []string)
}

// SystemNotifier posts system messages into a conversation
type SystemNotifier interface {
	SendSystem(ctx context.Context, conversationId, actorId, content string) (*entity.MessageInfo, error)
}

// ConversationService handles conversation-related business logic
type ConversationService struct {
	convRepo  *repository.ConversationRepo
	msgRepo   *repository.MessageRepo
	profiles  ProfileResolver
	courses   CourseResolver
	publisher ConversationPublisher
	notifier  SystemNotifier
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories, profiles ProfileResolver, courses CourseResolver) *ConversationService {
	return &ConversationService{
		convRepo: repos.Conversation,
		msgRepo:  repos.Message,
		profiles: profiles,
		courses:  courses,
	}
}

// SetPublisher sets the conversation publisher
func (s *ConversationService) SetPublisher(publisher ConversationPublisher) {
	s.publisher = publisher
}

// SetNotifier sets the system message notifier
func (s *ConversationService) SetNotifier(notifier SystemNotifier) {
	s.notifier = notifier
}

// CreateConversationRequest represents conversation creation request
type CreateConversationRequest struct {
	Kind           string   `json:"kind"`
	ParticipantIds []string `json:"participantIds"`
	CourseId       string   `json:"courseId,omitempty"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
}

// UpdateConversationRequest represents a partial conversation update
type UpdateConversationRequest struct {
	Title       *string                           `json:"title,omitempty"`
	Description *string                           `json:"description,omitempty"`
	Settings    *entity.ConversationSettingsPatch `json:"settings,omitempty"`
}

// AddParticipantRequest represents a membership addition
type AddParticipantRequest struct {
	UserId string `json:"userId"`
	Role   string `json:"role"`
}

// Create dispatches a creation request on its kind.
// Every kind is find-or-create: created is false when an existing conversation is returned.
func (s *ConversationService) Create(ctx context.Context, actor common.Actor, req *CreateConversationRequest) (*entity.ConversationInfo, bool, error) {
	others := otherParticipants(req.ParticipantIds, actor.Id)

	switch req.Kind {
	case constant.ConvKindDirect:
		if len(others) != 1 {
			if len(others) == 0 && containsId(req.ParticipantIds, actor.Id) {
				return nil, false, errcode.ErrSelfChat
			}
			return nil, false, errcode.ErrValidation.WithMsg("a direct conversation needs exactly one other participant")
		}
		return s.GetOrCreateDirect(ctx, actor, others[0])
	case constant.ConvKindCourseGroup:
		if req.CourseId == "" {
			return nil, false, errcode.ErrValidation.WithMsg("courseId is required")
		}
		return s.GetOrCreateCourseGroup(ctx, actor, req.CourseId, req.Title)
	case constant.ConvKindInstructorGroup:
		if req.CourseId == "" {
			return nil, false, errcode.ErrValidation.WithMsg("courseId is required")
		}
		if len(others) != 1 {
			return nil, false, errcode.ErrValidation.WithMsg("an instructor conversation needs exactly one instructor")
		}
		return s.GetOrCreateInstructorChat(ctx, actor, req.CourseId, others[0])
	default:
		return nil, false, errcode.ErrValidation.WithMsg("unknown conversation kind")
	}
}

// GetOrCreateDirect returns the direct conversation between actor and otherUserId,
// creating it with both participants when it does not exist yet.
func (s *ConversationService) GetOrCreateDirect(ctx context.Context, actor common.Actor, otherUserId string) (*entity.ConversationInfo, bool, error) {
	otherUserId = strings.TrimSpace(otherUserId)
	if otherUserId == "" {
		return nil, false, errcode.ErrValidation.WithMsg("participant is required")
	}
	if otherUserId == actor.Id {
		return nil, false, errcode.ErrSelfChat
	}

	key := entity.DirectUniqueKey(actor.Id, otherUserId)
	build := func(id string) (*entity.Conversation, []*entity.Participant) {
		conv := newConversation(id, constant.ConvKindDirect, key, actor.Id)
		otherRole := s.profileRole(ctx, otherUserId)
		return conv, []*entity.Participant{
			entity.NewParticipant(id, actor.Id, actor.Role),
			entity.NewParticipant(id, otherUserId, otherRole),
		}
	}
	return s.findOrCreate(ctx, actor, key, build)
}

// GetOrCreateCourseGroup returns the group conversation of a course and makes sure
// actor is a participant. The title hint is honoured only when the group is created
// by an instructor or admin; otherwise the course service title is used.
func (s *ConversationService) GetOrCreateCourseGroup(ctx context.Context, actor common.Actor, courseId, titleHint string) (*entity.ConversationInfo, bool, error) {
	courseId = strings.TrimSpace(courseId)
	if courseId == "" {
		return nil, false, errcode.ErrValidation.WithMsg("courseId is required")
	}

	key := entity.CourseGroupUniqueKey(courseId)
	role := s.courseRole(ctx, courseId, actor)
	build := func(id string) (*entity.Conversation, []*entity.Participant) {
		conv := newConversation(id, constant.ConvKindCourseGroup, key, actor.Id)
		conv.CourseId = &courseId
		conv.Title = s.courseGroupTitle(ctx, courseId, actor, titleHint)
		return conv, []*entity.Participant{entity.NewParticipant(id, actor.Id, role)}
	}

	info, created, err := s.findOrCreate(ctx, actor, key, build)
	if err != nil || created {
		return info, created, err
	}

	if entity.FindParticipantInfo(info.Participants, actor.Id) == nil {
		if _, err := s.AddParticipant(ctx, info.Id, actor.Id, role); err != nil {
			return nil, false, err
		}
		info, err = s.Get(ctx, actor, info.Id)
		return info, false, err
	}
	return info, false, nil
}

// GetOrCreateInstructorChat returns the private conversation between actor and one
// instructor of a course. The instructor is checked against the course roster when
// the course service answers.
func (s *ConversationService) GetOrCreateInstructorChat(ctx context.Context, actor common.Actor, courseId, instructorId string) (*entity.ConversationInfo, bool, error) {
	courseId = strings.TrimSpace(courseId)
	instructorId = strings.TrimSpace(instructorId)
	if courseId == "" || instructorId == "" {
		return nil, false, errcode.ErrValidation.WithMsg("courseId and instructor id are required")
	}
	if instructorId == actor.Id {
		return nil, false, errcode.ErrSelfChat
	}

	title := ""
	if s.courses != nil {
		course, err := s.courses.GetCourse(ctx, courseId)
		if err == nil {
			if !course.HasInstructor(instructorId) {
				return nil, false, errcode.ErrValidation.WithMsg("user is not an instructor of this course")
			}
			title = course.Title
		} else {
			log.CtxWarn(ctx, "course lookup failed, skipping instructor check: course_id=%s, error=%v", courseId, err)
		}
	}
	if title == "" {
		title = entity.FallbackCourseTitle(courseId)
	}

	key := entity.InstructorUniqueKey(courseId, actor.Id, instructorId)
	build := func(id string) (*entity.Conversation, []*entity.Participant) {
		conv := newConversation(id, constant.ConvKindInstructorGroup, key, actor.Id)
		conv.CourseId = &courseId
		conv.Title = title
		return conv, []*entity.Participant{
			entity.NewParticipant(id, actor.Id, actor.Role),
			entity.NewParticipant(id, instructorId, common.RoleInstructor),
		}
	}
	return s.findOrCreate(ctx, actor, key, build)
}

// findOrCreate inserts the conversation built by build unless one with key exists,
// and returns whichever conversation holds the key afterwards.
func (s *ConversationService) findOrCreate(ctx context.Context, actor common.Actor, key string,
	build func(id string) (*entity.Conversation, []*entity.Participant)) (*entity.ConversationInfo, bool, error) {
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		existing, err := s.convRepo.GetByUniqueKey(ctx, key)
		if err != nil {
			log.CtxError(ctx, "get conversation by key failed: key=%s, error=%v", key, err)
			return nil, false, errcode.ErrInternalServer
		}
		if existing != nil {
			info, err := s.buildInfo(ctx, existing, actor.Id)
			return info, false, err
		}

		id, err := idgen.NextID()
		if err != nil {
			log.CtxError(ctx, "generate conversation id failed: %v", err)
			return nil, false, errcode.ErrInternalServer
		}
		conv, participants := build(id)
		created, err := s.convRepo.InsertIfAbsent(ctx, conv, participants)
		if err != nil {
			log.CtxError(ctx, "insert conversation failed: key=%s, error=%v", key, err)
			return nil, false, errcode.ErrInternalServer
		}
		if !created {
			// lost the race, the winner's row is fetched on the next attempt
			continue
		}

		info, err := s.buildInfo(ctx, conv, actor.Id)
		if err != nil {
			return nil, false, err
		}
		log.CtxInfo(ctx, "conversation created: conversation_id=%s, kind=%s, created_by=%s", conv.Id, conv.Kind, actor.Id)
		s.announce(ctx, info)
		return info, true, nil
	}

	log.CtxError(ctx, "find or create conversation gave up: key=%s", key)
	return nil, false, errcode.ErrInternalServer
}

func (s *ConversationService) announce(ctx context.Context, info *entity.ConversationInfo) {
	if s.publisher == nil {
		return
	}
	userIds := make([]string, 0, len(info.Participants))
	for _, p := range info.Participants {
		userIds = append(userIds, p.UserId)
	}
	s.publisher.SubscribeUsers(ctx, info.Id, userIds)
	s.publisher.PublishConversationCreated(ctx, info, userIds)
}

// ListForUser returns the active conversations of a user, most recent activity first
func (s *ConversationService) ListForUser(ctx context.Context, userId string, page, limit int) ([]*entity.ConversationInfo, error) {
	page, limit = NormalizePage(page, limit)
	convs, err := s.convRepo.ListByUser(ctx, userId, (page-1)*limit, limit)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}
	if len(convs) == 0 {
		return []*entity.ConversationInfo{}, nil
	}

	convIds := make([]string, 0, len(convs))
	for _, c := range convs {
		convIds = append(convIds, c.Id)
	}
	participants, err := s.convRepo.GetParticipantsByConvIds(ctx, convIds)
	if err != nil {
		log.CtxError(ctx, "get participants failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}
	unread, err := s.msgRepo.CountUnreadByConvIds(ctx, userId, convIds)
	if err != nil {
		log.CtxError(ctx, "count unread failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}

	infos := make([]*entity.ConversationInfo, 0, len(convs))
	for _, c := range convs {
		info := c.ToConversationInfo(participants[c.Id])
		info.UnreadCount = unread[c.Id]
		infos = append(infos, info)
	}
	enrichParticipants(ctx, s.profiles, infos...)
	return infos, nil
}

// Get returns one conversation the actor participates in
func (s *ConversationService) Get(ctx context.Context, actor common.Actor, conversationId string) (*entity.ConversationInfo, error) {
	conv, participant, err := loadConversationAccess(ctx, s.convRepo, conversationId, actor.Id)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(conv, participant) {
		return nil, errcode.ErrNotParticipant
	}
	return s.buildInfo(ctx, conv, actor.Id)
}

// CheckReadAccess returns nil when userId may read the conversation
func (s *ConversationService) CheckReadAccess(ctx context.Context, conversationId, userId string) error {
	conv, participant, err := loadConversationAccess(ctx, s.convRepo, conversationId, userId)
	if err != nil {
		return err
	}
	if !policy.CanRead(conv, participant) {
		return errcode.ErrNotParticipant
	}
	return nil
}

// AddParticipant adds userId to an active conversation. It is a no-op when the user
// is already a participant. Group newcomers are announced with a system message and
// subscribed to the room.
func (s *ConversationService) AddParticipant(ctx context.Context, conversationId, userId string, role common.RoleType) (bool, error) {
	userId = strings.TrimSpace(userId)
	if userId == "" {
		return false, errcode.ErrValidation.WithMsg("userId is required")
	}
	conv, existing, err := loadConversationAccess(ctx, s.convRepo, conversationId, userId)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if conv.IsDirect() {
		return false, errcode.ErrValidation.WithMsg("direct conversations have exactly two participants")
	}

	added, err := s.convRepo.AddParticipant(ctx, entity.NewParticipant(conversationId, userId, role))
	if err != nil {
		log.CtxError(ctx, "add participant failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		return false, errcode.ErrInternalServer
	}
	if !added {
		return false, nil
	}

	log.CtxInfo(ctx, "participant added: conversation_id=%s, user_id=%s, role=%s", conversationId, userId, role)
	if s.publisher != nil {
		s.publisher.SubscribeUsers(ctx, conversationId, []string{userId})
		if info, err := s.buildInfo(ctx, conv, userId); err == nil {
			s.publisher.PublishConversationCreated(ctx, info, []string{userId})
		}
	}
	if s.notifier != nil {
		name := entity.UnknownDisplayName
		if s.profiles != nil {
			name = s.profiles.GetProfile(ctx, userId).DisplayName
		}
		content := fmt.Sprintf("%s joined the conversation", name)
		if _, err := s.notifier.SendSystem(ctx, conversationId, userId, content); err != nil {
			log.CtxWarn(ctx, "send join notice failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		}
	}
	return true, nil
}

// AddParticipantAs adds a participant on behalf of a conversation manager
func (s *ConversationService) AddParticipantAs(ctx context.Context, actor common.Actor, conversationId string, req *AddParticipantRequest) (*entity.ConversationInfo, error) {
	if err := s.checkManage(ctx, actor, conversationId); err != nil {
		return nil, err
	}
	role := common.ParseRole(req.Role)
	if role == common.RoleAdmin && !actor.IsAdmin() {
		return nil, errcode.ErrForbidden.WithMsg("only admins can grant the admin role")
	}
	if _, err := s.AddParticipant(ctx, conversationId, req.UserId, role); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, conversationId)
}

// Update edits title, description or settings of a conversation
func (s *ConversationService) Update(ctx context.Context, actor common.Actor, conversationId string, req *UpdateConversationRequest) (*entity.ConversationInfo, error) {
	if err := s.checkManage(ctx, actor, conversationId); err != nil {
		return nil, err
	}
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil || conv == nil {
		log.CtxError(ctx, "reload conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || utf8.RuneCountInString(title) > maxTitleRunes {
			return nil, errcode.ErrValidation.WithMsg("title must be 1 to 255 characters")
		}
		updates["title"] = title
	}
	if req.Description != nil {
		if utf8.RuneCountInString(*req.Description) > maxDescriptionRunes {
			return nil, errcode.ErrValidation.WithMsg("description is too long")
		}
		updates["description"] = *req.Description
	}
	if req.Settings != nil {
		conv.SetSettings(req.Settings.Apply(conv.GetSettings()))
		updates["settings"] = conv.Settings
	}

	if len(updates) > 0 {
		if err := s.convRepo.Update(ctx, conversationId, updates); err != nil {
			log.CtxError(ctx, "update conversation failed: conversation_id=%s, error=%v", conversationId, err)
			return nil, errcode.ErrInternalServer
		}
		log.CtxInfo(ctx, "conversation updated: conversation_id=%s, by=%s", conversationId, actor.Id)
	}

	return s.Get(ctx, actor, conversationId)
}

// Deactivate hides a conversation and frees its unique key
func (s *ConversationService) Deactivate(ctx context.Context, actor common.Actor, conversationId string) error {
	if err := s.checkManage(ctx, actor, conversationId); err != nil {
		return err
	}
	if err := s.convRepo.Deactivate(ctx, conversationId); err != nil {
		log.CtxError(ctx, "deactivate conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return errcode.ErrInternalServer
	}
	log.CtxInfo(ctx, "conversation deactivated: conversation_id=%s, by=%s", conversationId, actor.Id)
	return nil
}

// ParticipantConversationIds returns the ids of every active conversation of a user
func (s *ConversationService) ParticipantConversationIds(ctx context.Context, userId string) ([]string, error) {
	ids, err := s.convRepo.GetActiveConversationIds(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get conversation ids failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}
	return ids, nil
}

func (s *ConversationService) checkManage(ctx context.Context, actor common.Actor, conversationId string) error {
	conv, participant, err := loadConversationAccess(ctx, s.convRepo, conversationId, actor.Id)
	if err != nil {
		return err
	}
	if !policy.CanManage(conv, participant, actor) {
		return errcode.ErrForbidden.WithMsg("only instructors and admins can manage this conversation")
	}
	return nil
}

// buildInfo loads participants and unread count of conv as seen by viewerId
func (s *ConversationService) buildInfo(ctx context.Context, conv *entity.Conversation, viewerId string) (*entity.ConversationInfo, error) {
	participants, err := s.convRepo.GetParticipants(ctx, conv.Id)
	if err != nil {
		log.CtxError(ctx, "get participants failed: conversation_id=%s, error=%v", conv.Id, err)
		return nil, errcode.ErrInternalServer
	}
	info := conv.ToConversationInfo(participants)

	unread, err := s.msgRepo.CountUnread(ctx, conv.Id, viewerId)
	if err != nil {
		log.CtxError(ctx, "count unread failed: conversation_id=%s, error=%v", conv.Id, err)
		return nil, errcode.ErrInternalServer
	}
	info.UnreadCount = unread

	enrichParticipants(ctx, s.profiles, info)
	return info, nil
}

func (s *ConversationService) courseGroupTitle(ctx context.Context, courseId string, actor common.Actor, hint string) string {
	hint = strings.TrimSpace(hint)
	if hint != "" && actor.Role.IsStaff() && utf8.RuneCountInString(hint) <= maxTitleRunes {
		return hint
	}
	if s.courses == nil {
		return entity.FallbackCourseTitle(courseId)
	}
	return s.courses.CourseTitle(ctx, courseId)
}

// courseRole is the role actor takes in a course conversation:
// instructors listed on the course join as instructors.
func (s *ConversationService) courseRole(ctx context.Context, courseId string, actor common.Actor) common.RoleType {
	if actor.IsAdmin() || s.courses == nil {
		return actor.Role
	}
	course, err := s.courses.GetCourse(ctx, courseId)
	if err != nil {
		return actor.Role
	}
	if course.HasInstructor(actor.Id) {
		return common.RoleInstructor
	}
	return actor.Role
}

func (s *ConversationService) profileRole(ctx context.Context, userId string) common.RoleType {
	if s.profiles == nil {
		return common.RoleStudent
	}
	return s.profiles.GetProfile(ctx, userId).CourseRole()
}

func newConversation(id, kind, uniqueKey, createdBy string) *entity.Conversation {
	conv := &entity.Conversation{
		Id:        id,
		Kind:      kind,
		IsActive:  true,
		UniqueKey: &uniqueKey,
		CreatedBy: createdBy,
	}
	conv.SetSettings(entity.DefaultConversationSettings())
	return conv
}

// otherParticipants dedupes ids and drops the caller
func otherParticipants(ids []string, selfId string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == selfId {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func containsId(ids []string, id string) bool {
	for _, v := range ids {
		if strings.TrimSpace(v) == id {
			return true
		}
	}
	return false
}
