package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/pkg/response"
)

// IdentityResolver turns request credentials into an identity. Both methods
// return auth.Anonymous for anything they cannot resolve.
type IdentityResolver interface {
	ResolveSession(ctx context.Context, token string) auth.Identity
	ResolveToken(ctx context.Context, token string) auth.Identity
}

// SessionResolver attaches the caller's identity to every request. The
// session cookie is preferred over a bearer token; with neither the request
// is anonymous. It never rejects a request.
func SessionResolver(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var identity auth.Identity = auth.Anonymous{}
		if token, err := c.Cookie(auth.SessionCookie); err == nil && token != "" {
			identity = resolver.ResolveSession(ctx, token)
		} else if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			identity = resolver.ResolveToken(ctx, token)
		}

		c.Set(auth.IdentityKey, identity)
		c.Request = c.Request.WithContext(auth.WithIdentity(ctx, identity))
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.CurrentIdentity(c).IsAuthenticated() {
			response.Unauthorized(c, "Authentication required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
