package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

// RequireRoles lets the request through when the token carries one of roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not permitted"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSelf restricts a route to the identity named by the path parameter
// param, which must also hold role.
func RequireSelf(param string, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role != role {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not permitted"))
			c.Abort()
			return
		}
		if target := c.Param(param); target == "" || target != claims.UserID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "token does not belong to this account"))
			c.Abort()
			return
		}
		c.Next()
	}
}
