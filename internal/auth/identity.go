package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the request Identity.
const IdentityKey = "identity"

// Identity is the actor behind a request: either Authenticated or Anonymous.
// Callers switch on the concrete type.
type Identity interface {
	IsAuthenticated() bool
	identity()
}

// Authenticated is a resolved, logged in user.
type Authenticated struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
	OrgID    string `json:"org_id"`
	Role     Role   `json:"role"`
}

func (Authenticated) IsAuthenticated() bool { return true }
func (Authenticated) identity()             {}

// Anonymous is the identity of requests without a usable session or token.
type Anonymous struct{}

func (Anonymous) IsAuthenticated() bool { return false }
func (Anonymous) identity()             {}

// AuthenticatedFrom builds the request identity for user.
func AuthenticatedFrom(user User) Authenticated {
	return Authenticated{
		ID:       user.ID,
		Username: user.Username,
		OrgID:    user.OrgID,
		Role:     user.Role,
	}
}

type identityCtxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFrom returns the identity stored in ctx, Anonymous when none is.
func IdentityFrom(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityCtxKey{}).(Identity); ok && id != nil {
		return id
	}
	return Anonymous{}
}

// CurrentIdentity returns the identity the session middleware attached to c.
func CurrentIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(IdentityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return IdentityFrom(c.Request.Context())
}
