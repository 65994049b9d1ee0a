package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityKey = "caller_identity"

// Identity is the authenticated caller. Bidder identity always comes from
// here, never from the request body.
type Identity struct {
	UserID string
	Role   string
}

// Resolver turns a bearer token into an identity. Session mechanics live
// outside this service; any resolver can be plugged in.
type Resolver func(token string) (Identity, error)

// Auth rejects requests without a resolvable token and stores the caller
// identity on the request context.
func Auth(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err_str": "missing token"})
			return
		}
		id, err := resolve(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err_str": "invalid token"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// CallerIdentity returns the identity stored by Auth.
func CallerIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// StaticTokenResolver resolves tokens from a fixed map, used for development
// and tests.
func StaticTokenResolver(tokens map[string]Identity) Resolver {
	return func(token string) (Identity, error) {
		id, ok := tokens[token]
		if !ok {
			return Identity{}, ErrUnknownToken
		}
		return id, nil
	}
}

// ErrUnknownToken is returned by StaticTokenResolver for unmapped tokens.
var ErrUnknownToken = errors.New("unknown token")
