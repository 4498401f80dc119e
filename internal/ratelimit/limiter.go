// Package ratelimit caps how many messages a sender may post in a sliding window.
// Entries live in a redis sorted set per sender, so the cap holds across gateway instances.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/pkg/constant"
	"github.com/mbeoliero/coursechat/pkg/errcode"
)

// ScopeSend is the scope of message sends, shared by REST and socket paths
const ScopeSend = "send"

// Result is the outcome of one Allow call
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1
func (r Result) RetryAfterSeconds() int {
	s := int(math.Ceil(r.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// Err returns ErrRateLimited carrying the retry hint, or nil when allowed
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return errcode.ErrRateLimited.WithMsg(fmt.Sprintf("too many messages, retry after %ds", r.RetryAfterSeconds()))
}

// Limiter is a redis sliding window limiter
type Limiter struct {
	rdb     *redis.Client
	enabled bool
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewLimiter creates a new Limiter
func NewLimiter(rdb *redis.Client, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		rdb:     rdb,
		enabled: cfg.Enabled,
		max:     cfg.MaxMessages,
		window:  cfg.Window,
		now:     time.Now,
	}
}

func (l *Limiter) key(scope, userId string) string {
	return fmt.Sprintf(constant.RedisKeyRateLimit(), scope, userId)
}

// Allow records one attempt by userId and reports whether it fits in the window.
// Rejected attempts are not counted. Redis failures let the attempt through.
func (l *Limiter) Allow(ctx context.Context, scope, userId string) (Result, error) {
	if !l.enabled || l.max <= 0 {
		return Result{Allowed: true, Remaining: math.MaxInt32}, nil
	}

	key := l.key(scope, userId)
	now := l.now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - l.window.Milliseconds()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	var card *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		log.CtxWarn(ctx, "rate limiter unavailable, allowing: user_id=%s, error=%v", userId, err)
		return Result{Allowed: true}, err
	}

	count := int(card.Val())
	if count <= l.max {
		return Result{Allowed: true, Remaining: l.max - count}, nil
	}

	// over the cap: forget this attempt and tell the caller when the oldest entry expires
	l.rdb.ZRem(ctx, key, member)
	retryAfter := l.window
	oldest, err := l.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err == nil && len(oldest) > 0 {
		expiresAt := int64(oldest[0].Score) + l.window.Milliseconds()
		retryAfter = time.Duration(expiresAt-nowMs) * time.Millisecond
	}
	return Result{Allowed: false, RetryAfter: retryAfter}, nil
}
