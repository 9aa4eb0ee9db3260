package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

// AdminSignupKeyHeader carries the key required once an admin exists.
const AdminSignupKeyHeader = "X-Admin-Signup-Key"

type authService interface {
	Signup(ctx context.Context, role models.Role, req dto.SignupRequest) (*models.Identity, error)
	AdminSignup(ctx context.Context, req dto.AdminSignupRequest) (*models.Identity, error)
	VerifyEmail(ctx context.Context, role models.Role, token string) (bool, error)
	Login(ctx context.Context, role models.Role, req dto.LoginRequest) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req dto.RefreshTokenRequest) (*models.RefreshTokenResponse, error)
	Logout(ctx context.Context, userID, refreshToken, ip, userAgent string) error
	ForgotPassword(ctx context.Context, role models.Role, req dto.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, role models.Role, token string, req dto.ResetPasswordRequest) error
}

// AuthHandler serves the account endpoints of one role group.
type AuthHandler struct {
	service authService
	role    models.Role
}

// NewAuthHandler creates a handler bound to role.
func NewAuthHandler(svc authService, role models.Role) *AuthHandler {
	return &AuthHandler{service: svc, role: role}
}

// Signup godoc
// @Summary Register an account
// @Description Creates a student, teacher or admin. Students and teachers receive a verification email.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param role path string true "student, teacher or admin"
// @Param payload body dto.SignupRequest true "Signup payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /{role}/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var (
		identity *models.Identity
		err      error
	)
	if h.role == models.RoleAdmin {
		var req dto.AdminSignupRequest
		if !bindJSON(c, &req, "invalid signup payload") {
			return
		}
		req.SignupKey = c.GetHeader(AdminSignupKeyHeader)
		identity, err = h.service.AdminSignup(c.Request.Context(), req)
	} else {
		var req dto.SignupRequest
		if !bindJSON(c, &req, "invalid signup payload") {
			return
		}
		identity, err = h.service.Signup(c.Request.Context(), h.role, req)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	message := "account created, check your email to verify it"
	if h.role == models.RoleAdmin {
		message = "admin account created"
	}
	response.Message(c, http.StatusCreated, message, identity)
}

// Verify godoc
// @Summary Verify email address
// @Tags Authentication
// @Produce json
// @Param role path string true "student or teacher"
// @Param token query string true "Verification token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /{role}/verify [get]
func (h *AuthHandler) Verify(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "verification token required"))
		return
	}

	already, err := h.service.VerifyEmail(c.Request.Context(), h.role, token)
	if err != nil {
		response.Error(c, err)
		return
	}
	message := "email verified"
	if already {
		message = "email already verified"
	}
	response.Message(c, http.StatusOK, message, gin.H{"verified": true})
}

// Login godoc
// @Summary Authenticate
// @Tags Authentication
// @Accept json
// @Produce json
// @Param role path string true "student, teacher or admin"
// @Param payload body dto.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /{role}/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), h.role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param role path string true "student or teacher"
// @Param payload body dto.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /{role}/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if !bindJSON(c, &req, "invalid refresh payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.RefreshToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Tags Authentication
// @Accept json
// @Param role path string true "student, teacher or admin"
// @Param payload body dto.LogoutRequest true "Refresh token"
// @Success 204
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /{role}/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LogoutRequest
	if !bindJSON(c, &req, "refresh token required") {
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims.UserID, req.RefreshToken, c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ForgotPassword godoc
// @Summary Request a password reset link
// @Tags Authentication
// @Accept json
// @Produce json
// @Param role path string true "student or teacher"
// @Param payload body dto.ForgotPasswordRequest true "Account email"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /{role}/forgetpassword [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}

	if err := h.service.ForgotPassword(c.Request.Context(), h.role, req); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusAccepted, "if the email exists, a reset link will be sent", nil)
}

// ResetPassword godoc
// @Summary Reset password with a token
// @Tags Authentication
// @Accept json
// @Param role path string true "student or teacher"
// @Param token path string true "Reset token"
// @Param payload body dto.ResetPasswordRequest true "New password"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /{role}/forgetpassword/{token} [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), h.role, c.Param("token"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
