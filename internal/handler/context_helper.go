package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentClaims(c)
}

// adminFromContext returns the admin resolved by middleware.RequireAdmin and
// writes a 401 when it is missing.
func adminFromContext(c *gin.Context) (models.AuthorizedAdmin, bool) {
	admin, ok := middleware.CurrentAdmin(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "admin authorization required"))
	}
	return admin, ok
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
