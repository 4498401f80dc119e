package service

import (
	"context"
	"strings"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/jwt"
)

// AuthService verifies bearer tokens issued by the platform and handles logout
type AuthService struct {
	cfg        *config.Config
	tokenStore *jwt.TokenStore
}

// NewAuthService creates a new AuthService
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{
		cfg:        cfg,
		tokenStore: jwt.NewTokenStore(rdb),
	}
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header value
func ExtractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate validates the token signature, expiry and revocation
func (s *AuthService) Authenticate(ctx context.Context, token string) (*jwt.Claims, error) {
	if token == "" {
		return nil, errcode.ErrTokenMissing
	}
	claims, err := jwt.ParseToken(token, s.cfg.JWT.Secret, s.cfg.JWT.Issuer)
	if err != nil {
		return nil, err
	}
	if claims.UserId == "" {
		return nil, errcode.ErrTokenInvalid.WithMsg("token has no user_id")
	}

	revoked, err := s.tokenStore.IsRevoked(ctx, claims)
	if err != nil {
		// revocation list unavailable: signature and expiry still hold
		log.CtxWarn(ctx, "check token revocation failed: user_id=%s, error=%v", claims.UserId, err)
		return claims, nil
	}
	if revoked {
		return nil, errcode.ErrTokenRevoked
	}
	return claims, nil
}

// Logout revokes the presented token until it would have expired
func (s *AuthService) Logout(ctx context.Context, claims *jwt.Claims) error {
	if err := s.tokenStore.Revoke(ctx, claims); err != nil {
		log.CtxError(ctx, "revoke token failed: user_id=%s, error=%v", claims.UserId, err)
		return errcode.ErrInternalServer
	}
	log.CtxInfo(ctx, "token revoked: user_id=%s", claims.UserId)
	return nil
}
