package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/cache"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (s *stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	s.token = token
	return s.claims, s.err
}

type stubAuthorizer struct {
	admin   *models.AuthorizedAdmin
	err     error
	adminID string
}

func (s *stubAuthorizer) AuthorizeAdmin(_ context.Context, _ *models.JWTClaims, adminID string) (*models.AuthorizedAdmin, error) {
	s.adminID = adminID
	return s.admin, s.err
}

type stubLimiter struct {
	decision cache.Decision
	err      error
}

func (s stubLimiter) Allow(context.Context, string) (cache.Decision, error) {
	return s.decision, s.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	return r
}

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	claims := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	tests := []struct {
		name      string
		header    string
		validator *stubValidator
		status    int
	}{
		{name: "missing header", header: "", validator: &stubValidator{claims: claims}, status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", validator: &stubValidator{claims: claims}, status: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", validator: &stubValidator{claims: claims}, status: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer expired", validator: &stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "token expired")}, status: http.StatusUnauthorized},
		{name: "valid token", header: "bearer good", validator: &stubValidator{claims: claims}, status: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(JWT(tc.validator))
			r.GET("/me", func(c *gin.Context) {
				got := CurrentClaims(c)
				require.NotNil(t, got)
				c.String(http.StatusOK, got.UserID)
			})

			w := serve(r, http.MethodGet, "/me", map[string]string{"Authorization": tc.header})
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "stu-1", w.Body.String())
				assert.Equal(t, "good", tc.validator.token)
			}
		})
	}
}

func TestRequireSelf(t *testing.T) {
	tests := []struct {
		name   string
		claims *models.JWTClaims
		path   string
		status int
	}{
		{name: "no claims", claims: nil, path: "/student/stu-1", status: http.StatusUnauthorized},
		{name: "other student", claims: &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}, path: "/student/stu-1", status: http.StatusForbidden},
		{name: "teacher token on student route", claims: &models.JWTClaims{UserID: "stu-1", Role: models.RoleTeacher}, path: "/student/stu-1", status: http.StatusForbidden},
		{name: "self", claims: &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}, path: "/student/stu-1", status: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(func(c *gin.Context) {
				if tc.claims != nil {
					c.Set(ContextUserKey, tc.claims)
				}
			})
			r.GET("/student/:id", RequireSelf("id", models.RoleStudent), func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			w := serve(r, http.MethodGet, tc.path, nil)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRequireRoles(t *testing.T) {
	r := newRouter(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "tea-1", Role: models.RoleTeacher})
	})
	r.GET("/admin-only", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/staff", RequireRoles(models.RoleAdmin, models.RoleTeacher), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin-only", nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/staff", nil).Code)
}

func TestRequireAdmin(t *testing.T) {
	admin := &models.AuthorizedAdmin{ID: "adm-1", Email: "root@example.com"}

	t.Run("stores admin from path", func(t *testing.T) {
		authz := &stubAuthorizer{admin: admin}
		r := newRouter()
		r.GET("/admin/:adminId/approve", RequireAdmin(authz, "adminId"), func(c *gin.Context) {
			got, ok := CurrentAdmin(c)
			require.True(t, ok)
			c.String(http.StatusOK, got.Email)
		})

		w := serve(r, http.MethodGet, "/admin/adm-1/approve", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "root@example.com", w.Body.String())
		assert.Equal(t, "adm-1", authz.adminID)
	})

	t.Run("falls back to token subject", func(t *testing.T) {
		authz := &stubAuthorizer{admin: admin}
		r := newRouter(func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin})
		})
		r.GET("/messages/all", RequireAdmin(authz, ""), func(c *gin.Context) { c.Status(http.StatusNoContent) })

		assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/messages/all", nil).Code)
		assert.Equal(t, "adm-1", authz.adminID)
	})

	t.Run("propagates authorization error", func(t *testing.T) {
		authz := &stubAuthorizer{err: appErrors.Clone(appErrors.ErrForbidden, "token does not belong to this admin")}
		r := newRouter()
		r.GET("/admin/:adminId/approve", RequireAdmin(authz, "adminId"), func(c *gin.Context) {
			t.Fatal("handler must not run")
		})

		assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin/adm-2/approve", nil).Code)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		r := newRouter(RateLimit(stubLimiter{decision: cache.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}}, nil))
		r.POST("/contact-us", func(c *gin.Context) { c.Status(http.StatusCreated) })

		w := serve(r, http.MethodPost, "/contact-us", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
	})

	t.Run("allowed", func(t *testing.T) {
		r := newRouter(RateLimit(stubLimiter{decision: cache.Decision{Allowed: true, Remaining: 3}}, nil))
		r.POST("/contact-us", func(c *gin.Context) { c.Status(http.StatusCreated) })

		w := serve(r, http.MethodPost, "/contact-us", nil)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("fails open", func(t *testing.T) {
		r := newRouter(RateLimit(stubLimiter{err: errors.New("redis down")}, nil))
		r.POST("/contact-us", func(c *gin.Context) { c.Status(http.StatusCreated) })

		assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/contact-us", nil).Code)
	})
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := newRouter(Timeout(time.Second))
	r.GET("/slow", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/slow", nil).Code)
}

func TestMetricsRecordsRouteTemplate(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics))
	r.GET("/course/detail/:courseId", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/course/detail/abc", nil)
	serve(r, http.MethodGet, "/course/detail/def", nil)
	serve(r, http.MethodGet, "/nowhere", nil)

	count, err := testutil.GatherAndCount(metrics.Registry(), "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReportServerErrorsIgnoresClientErrors(t *testing.T) {
	r := newRouter(ReportServerErrors())
	r.GET("/bad", func(c *gin.Context) {
		_ = c.Error(errors.New("bad input"))
		c.Status(http.StatusBadRequest)
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("db down"))
		c.Status(http.StatusInternalServerError)
	})

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/bad", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/boom", nil).Code)
}
