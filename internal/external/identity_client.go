package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/pkg/constant"
)

// identityPayload is the identity service's user document
type identityPayload struct {
	Id          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Role        string         `json:"role"`
	Avatar      string         `json:"avatar"`
	Profile     map[string]any `json:"profile"`
}

// IdentityClient resolves user ids to display profiles.
// Lookups are cached in redis, collapsed per user id and bounded by a timeout.
// A failed lookup yields entity.UnknownProfile and is never cached.
type IdentityClient struct {
	up          *upstream
	rdb         *redis.Client
	cacheTTL    time.Duration
	maxParallel int
	group       singleflight.Group
}

// NewIdentityClient creates a new IdentityClient
func NewIdentityClient(cfg config.UpstreamConfig, rdb *redis.Client) (*IdentityClient, error) {
	up, err := newUpstream(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &IdentityClient{
		up:          up,
		rdb:         rdb,
		cacheTTL:    cfg.CacheTTL,
		maxParallel: maxParallel,
	}, nil
}

func (c *IdentityClient) cacheKey(userId string) string {
	return fmt.Sprintf(constant.RedisKeyUser(), userId)
}

// GetProfile resolves one user. It never fails.
func (c *IdentityClient) GetProfile(ctx context.Context, userId string) *entity.Profile {
	if p := c.getCached(ctx, userId); p != nil {
		return p
	}
	return c.load(ctx, userId)
}

// GetProfiles resolves several users, keyed by id. It never fails.
func (c *IdentityClient) GetProfiles(ctx context.Context, userIds []string) map[string]*entity.Profile {
	result := make(map[string]*entity.Profile, len(userIds))
	ids := uniqueIds(userIds)
	if len(ids) == 0 {
		return result
	}

	misses := c.getCachedMany(ctx, ids, result)
	if len(misses) == 0 {
		return result
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for _, id := range misses {
		id := id
		g.Go(func() error {
			p := c.load(gctx, id)
			mu.Lock()
			result[id] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// load fetches a profile from the identity service, sharing in-flight calls
func (c *IdentityClient) load(ctx context.Context, userId string) *entity.Profile {
	v, err, _ := c.group.Do(userId, func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		p, err := c.fetch(fetchCtx, userId)
		if err != nil {
			return nil, err
		}
		c.setCached(fetchCtx, userId, p)
		return p, nil
	})
	if err != nil {
		log.CtxWarn(ctx, "identity lookup failed, using placeholder: user_id=%s, error=%v", userId, err)
		return entity.UnknownProfile(userId)
	}
	// shared with every caller of the same flight
	return v.(*entity.Profile).Clone()
}

func (c *IdentityClient) fetch(ctx context.Context, userId string) (*entity.Profile, error) {
	var payload identityPayload
	if err := c.up.getJSON(ctx, "/internal/"+url.PathEscape(userId), &payload); err != nil {
		return nil, err
	}

	p := &entity.Profile{
		Id:          payload.Id,
		DisplayName: payload.DisplayName,
		Role:        payload.Role,
		Avatar:      payload.Avatar,
		Profile:     payload.Profile,
	}
	if p.Id == "" {
		p.Id = userId
	}
	if p.DisplayName == "" {
		p.DisplayName = userId
	}
	if p.Role == "" {
		p.Role = "user"
	}
	if p.Profile == nil {
		p.Profile = map[string]any{}
	}
	return p, nil
}

func (c *IdentityClient) getCached(ctx context.Context, userId string) *entity.Profile {
	if c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, c.cacheKey(userId)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.CtxWarn(ctx, "identity cache read failed: user_id=%s, error=%v", userId, err)
		}
		return nil
	}
	var p entity.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return &p
}

// getCachedMany fills result from the cache in one round trip and returns the misses
func (c *IdentityClient) getCachedMany(ctx context.Context, ids []string, result map[string]*entity.Profile) []string {
	if c.rdb == nil {
		return ids
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.cacheKey(id)
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		log.CtxWarn(ctx, "identity cache batch read failed: count=%d, error=%v", len(ids), err)
		return ids
	}

	var misses []string
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		var p entity.Profile
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			misses = append(misses, ids[i])
			continue
		}
		result[ids[i]] = &p
	}
	return misses
}

// setCached stores p under the requested id, which may differ from the id the service echoes back
func (c *IdentityClient) setCached(ctx context.Context, userId string, p *entity.Profile) {
	if c.rdb == nil || c.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.cacheKey(userId), raw, c.cacheTTL).Err(); err != nil {
		log.CtxWarn(ctx, "identity cache write failed: user_id=%s, error=%v", userId, err)
	}
}

func uniqueIds(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
