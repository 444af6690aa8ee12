package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clubhub/internal/user"
)

const actorKey = "actor"

// Authenticate enforces bearer access tokens and attaches the caller as a
// user.Actor.
func Authenticate(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := signer.Parse(tokenStr, Access)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(actorKey, user.Actor{ID: claims.Subject, Role: user.Role(claims.Role)})
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "not authenticated")
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "insufficient role")
	}
}

// ActorFrom returns the caller attached by Authenticate.
func ActorFrom(c *gin.Context) (user.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return user.Actor{}, false
	}
	actor, ok := v.(user.Actor)
	return actor, ok
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}
