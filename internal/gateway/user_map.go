package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coursechat/pkg/constant"
	"github.com/mbeoliero/coursechat/pkg/idgen"
)

// onlineTTL bounds how long a crashed instance can keep a user online
const onlineTTL = 2 * OnlineRefreshInterval

// UserMap manages user connections.
// Across instances a user's presence is a redis sorted set of instance ids
// scored by lease expiry, so a crashed instance's claim lapses on its own
// while live instances keep renewing theirs.
type UserMap struct {
	mu         sync.RWMutex
	users      map[string]*UserConns // userId -> UserConns
	rdb        *redis.Client
	instanceId string
	now        func() time.Time
}

// UserConns holds all connections of a user, one per open tab or device
type UserConns struct {
	Clients []*Client
	Time    time.Time
}

// NewUserMap creates a new UserMap
func NewUserMap(rdb *redis.Client) *UserMap {
	return &UserMap{
		users:      make(map[string]*UserConns),
		rdb:        rdb,
		instanceId: idgen.NewConnId(),
		now:        time.Now,
	}
}

// Register registers a client and reports whether it is the user's first
// connection across all gateway instances.
func (m *UserMap) Register(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	userConns, exists := m.users[client.UserId]
	if !exists {
		userConns = &UserConns{
			Clients: make([]*Client, 0, 4),
		}
		m.users[client.UserId] = userConns
	}
	userConns.Clients = append(userConns.Clients, client)
	userConns.Time = time.Now()
	localFirst := len(userConns.Clients) == 1
	m.mu.Unlock()

	if !localFirst {
		return false
	}
	first, ok := m.claim(ctx, client.UserId)
	if !ok {
		return true
	}
	return first
}

// Unregister unregisters a client and reports whether the user has no
// connection left on any gateway instance.
func (m *UserMap) Unregister(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	userConns, exists := m.users[client.UserId]
	if !exists {
		m.mu.Unlock()
		return false
	}

	newClients := make([]*Client, 0, len(userConns.Clients))
	removed := false
	for _, c := range userConns.Clients {
		if c.ConnId != client.ConnId {
			newClients = append(newClients, c)
		} else {
			removed = true
		}
	}
	userConns.Clients = newClients
	localLast := len(newClients) == 0
	if localLast {
		delete(m.users, client.UserId)
	}
	m.mu.Unlock()

	if !removed || !localLast {
		return false
	}

	last, ok := m.release(ctx, client.UserId)
	if !ok {
		return true
	}
	return last
}

// HasConnection checks if user has any local connection
func (m *UserMap) HasConnection(userId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userConns, exists := m.users[userId]
	return exists && len(userConns.Clients) > 0
}

// GetOnlineUserCount returns the number of locally connected users
func (m *UserMap) GetOnlineUserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// IsOnline checks if user is online (checks Redis for distributed support)
func (m *UserMap) IsOnline(ctx context.Context, userId string) bool {
	if m.HasConnection(userId) {
		return true
	}

	if m.rdb != nil {
		key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
		live, err := m.rdb.ZCount(ctx, key, "("+strconv.FormatInt(m.now().UnixMilli(), 10), "+inf").Result()
		if err != nil {
			log.CtxWarn(ctx, "check online status failed: user_id=%s, error=%v", userId, err)
			return false
		}
		return live > 0
	}

	return false
}

// OnlineStatus resolves the presence of several users
func (m *UserMap) OnlineStatus(ctx context.Context, userIds []string) map[string]bool {
	result := make(map[string]bool, len(userIds))
	for _, id := range userIds {
		result[id] = m.IsOnline(ctx, id)
	}
	return result
}

// claim adds this instance to the user's presence set and reports whether no
// other live instance held the user. ok is false when redis is unavailable.
func (m *UserMap) claim(ctx context.Context, userId string) (first bool, ok bool) {
	if m.rdb == nil {
		return false, false
	}

	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	now := m.now()
	var before *redis.IntCmd
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
		before = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: m.leaseScore(now), Member: m.instanceId})
		pipe.Expire(ctx, key, onlineTTL)
		return nil
	})
	if err != nil {
		log.CtxWarn(ctx, "update online status failed: user_id=%s, error=%v", userId, err)
		return false, false
	}
	return before.Val() == 0, true
}

// release removes this instance from the user's presence set and reports
// whether no live instance holds the user any more.
func (m *UserMap) release(ctx context.Context, userId string) (last bool, ok bool) {
	if m.rdb == nil {
		return false, false
	}

	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	var after *redis.IntCmd
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key, m.instanceId)
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(m.now().UnixMilli(), 10))
		after = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		log.CtxWarn(ctx, "update online status failed: user_id=%s, error=%v", userId, err)
		return false, false
	}
	return after.Val() == 0, true
}

// leaseScore is the expiry, in unix milliseconds, of an instance's claim on a user
func (m *UserMap) leaseScore(now time.Time) float64 {
	return float64(now.Add(onlineTTL).UnixMilli())
}

// RefreshOnlineStatus renews this instance's claim on every local user
func (m *UserMap) RefreshOnlineStatus(ctx context.Context) {
	if m.rdb == nil {
		return
	}

	userIds := m.GetAllOnlineUserIds()
	if len(userIds) == 0 {
		return
	}
	score := m.leaseScore(m.now())
	_, err := m.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, userId := range userIds {
			key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
			pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: m.instanceId})
			pipe.Expire(ctx, key, onlineTTL)
		}
		return nil
	})
	if err != nil {
		log.CtxWarn(ctx, "refresh online status failed: users=%d, error=%v", len(userIds), err)
	}
}

// GetAllOnlineUserIds returns all online user Ids (local only)
func (m *UserMap) GetAllOnlineUserIds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userIds := make([]string, 0, len(m.users))
	for userId := range m.users {
		userIds = append(userIds, userId)
	}
	return userIds
}
