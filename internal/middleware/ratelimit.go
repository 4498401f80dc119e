package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coursechat/internal/ratelimit"
	"github.com/mbeoliero/coursechat/pkg/response"
)

// RateLimit caps the requests of the authenticated caller in scope.
// It must run after JWTAuth.
func RateLimit(limiter *ratelimit.Limiter, scope string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		actor, ok := GetActor(c)
		if !ok {
			c.Next(ctx)
			return
		}

		// errors are logged by the limiter, which lets the request through
		res, _ := limiter.Allow(ctx, scope, actor.Id)
		if !res.Allowed {
			response.RateLimited(ctx, c, res.RetryAfterSeconds())
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
