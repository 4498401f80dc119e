package service

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/mbeoliero/coursechat/internal/entity"
)

// ProfileResolver resolves user ids to display profiles.
// Implementations never fail: unresolved users come back as placeholders.
type ProfileResolver interface {
	GetProfile(ctx context.Context, userId string) *entity.Profile
	GetProfiles(ctx context.Context, userIds []string) map[string]*entity.Profile
}

// CourseResolver looks up course metadata
type CourseResolver interface {
	GetCourse(ctx context.Context, courseId string) (*entity.CourseInfo, error)
	CourseTitle(ctx context.Context, courseId string) string
}

// enrichParticipants attaches a profile to every participant of the given conversations
func enrichParticipants(ctx context.Context, profiles ProfileResolver, infos ...*entity.ConversationInfo) {
	if profiles == nil {
		return
	}
	var userIds []string
	for _, info := range infos {
		for _, p := range info.Participants {
			userIds = append(userIds, p.UserId)
		}
	}
	if len(userIds) == 0 {
		return
	}

	resolved := profiles.GetProfiles(ctx, userIds)
	for _, info := range infos {
		for _, p := range info.Participants {
			if profile, ok := resolved[p.UserId]; ok {
				p.User = profile
			} else {
				p.User = entity.UnknownProfile(p.UserId)
			}
		}
	}
}

// enrichMessages attaches the sender profile to every message
func enrichMessages(ctx context.Context, profiles ProfileResolver, msgs ...*entity.MessageInfo) {
	if profiles == nil || len(msgs) == 0 {
		return
	}
	senderIds := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senderIds = append(senderIds, m.SenderId)
	}

	resolved := profiles.GetProfiles(ctx, senderIds)
	for _, m := range msgs {
		if profile, ok := resolved[m.SenderId]; ok {
			m.Sender = profile
		} else {
			m.Sender = entity.UnknownProfile(m.SenderId)
		}
	}
}

// keyedMutex serialises work per key over a fixed set of stripes
type keyedMutex struct {
	stripes []sync.Mutex
}

func newKeyedMutex(n int) *keyedMutex {
	return &keyedMutex{stripes: make([]sync.Mutex, n)}
}

// Lock locks the stripe owning key and returns its unlock func
func (m *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &m.stripes[h.Sum32()%uint32(len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}
