package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

// ContextAdminKey stores the authorized admin resolved by RequireAdmin.
const ContextAdminKey = "authorizedAdmin"

// AdminAuthorizer resolves the admin acting on a request.
type AdminAuthorizer interface {
	AuthorizeAdmin(ctx context.Context, claims *models.JWTClaims, adminID string) (*models.AuthorizedAdmin, error)
}

// RequireAdmin checks that the caller is the admin named by the path
// parameter param. An empty param authorizes the token's own subject.
func RequireAdmin(authorizer AdminAuthorizer, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		adminID := ""
		if param != "" {
			adminID = c.Param(param)
		} else if claims != nil {
			adminID = claims.UserID
		}

		admin, err := authorizer.AuthorizeAdmin(c.Request.Context(), claims, adminID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextAdminKey, *admin)
		c.Next()
	}
}

// CurrentAdmin returns the admin stored by RequireAdmin.
func CurrentAdmin(c *gin.Context) (models.AuthorizedAdmin, bool) {
	value, exists := c.Get(ContextAdminKey)
	if !exists {
		return models.AuthorizedAdmin{}, false
	}
	admin, ok := value.(models.AuthorizedAdmin)
	return admin, ok
}
