package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/pkg/jwt"
	"github.com/mbeoliero/coursechat/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// ClaimsKey is the context key for the verified token claims
	ClaimsKey = "claims"
	// ActorKey is the context key for the authenticated actor
	ActorKey = "actor"
)

// JWTAuth verifies the bearer token and stores the caller in the request context
func JWTAuth(auth *service.AuthService) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		token := service.ExtractBearer(string(c.GetHeader(AuthorizationHeader)))
		claims, err := auth.Authenticate(ctx, token)
		if err != nil {
			response.Error(ctx, c, err)
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(ActorKey, claims.Actor())

		c.Next(ctx)
	}
}

// GetActor gets the authenticated actor from context
func GetActor(c *app.RequestContext) (common.Actor, bool) {
	if v, ok := c.Get(ActorKey); ok {
		actor, ok := v.(common.Actor)
		return actor, ok && actor.Id != ""
	}
	return common.Actor{}, false
}

// GetClaims gets the verified token claims from context
func GetClaims(c *app.RequestContext) *jwt.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		claims, _ := v.(*jwt.Claims)
		return claims
	}
	return nil
}
