package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
	"github.com/noah-isme/kb-admin-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes. The service
// layer re-checks roles on every mutation; this gate just fails fast at
// the edge.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
