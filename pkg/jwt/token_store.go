package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coursechat/pkg/constant"
)

// TokenStore keeps the revocation list of logged out tokens in Redis.
// Entries expire together with the token they revoke.
type TokenStore struct {
	rdb *redis.Client
}

// NewTokenStore creates a new TokenStore
func NewTokenStore(rdb *redis.Client) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func (s *TokenStore) revokedKey(tokenId string) string {
	return fmt.Sprintf(constant.RedisKeyRevokedToken(), tokenId)
}

// Revoke adds the token to the revocation list
func (s *TokenStore) Revoke(ctx context.Context, claims *Claims) error {
	if claims.TokenId() == "" {
		return nil
	}
	ttl := claims.ExpiresIn()
	if ttl <= 0 {
		// already expired, nothing to revoke
		return nil
	}
	if err := s.rdb.Set(ctx, s.revokedKey(claims.TokenId()), claims.UserId, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks whether the token was logged out
func (s *TokenStore) IsRevoked(ctx context.Context, claims *Claims) (bool, error) {
	if claims.TokenId() == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, s.revokedKey(claims.TokenId())).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// RevokedTTL returns how long the revocation entry will be kept
func (s *TokenStore) RevokedTTL(ctx context.Context, tokenId string) (time.Duration, error) {
	return s.rdb.TTL(ctx, s.revokedKey(tokenId)).Result()
}
