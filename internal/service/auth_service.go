package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
	"github.com/noah-isme/learnhub-api/pkg/validation"
)

type authIdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	FindByIDAndRole(ctx context.Context, id string, role models.Role) (*models.Identity, error)
	MarkEmailVerified(ctx context.Context, id string, role models.Role) (bool, error)
	CountByRole(ctx context.Context, role models.Role) (int, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	FindByResetToken(ctx context.Context, role models.Role, tokenHash string, now time.Time) (*models.Identity, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	VerifyTokenExpiry  time.Duration
	ResetTokenExpiry   time.Duration
	Issuer             string
	// PublicURL is the externally reachable API base, e.g. https://api.example.com/api.
	PublicURL      string
	FrontendURL    string
	AdminSignupKey string
}

// AuthService provides signup, email verification, sessions and password reset.
type AuthService struct {
	repo      authIdentityRepository
	notifier  Notifier
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authIdentityRepository, notifier Notifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if config.VerifyTokenExpiry <= 0 {
		config.VerifyTokenExpiry = 24 * time.Hour
	}
	if config.ResetTokenExpiry <= 0 {
		config.ResetTokenExpiry = time.Hour
	}
	return &AuthService{repo: repo, notifier: notifier, cache: cache, validator: validate, logger: logger, config: config, now: time.Now}
}

// Signup registers a student or teacher and sends the verification email.
func (s *AuthService) Signup(ctx context.Context, role models.Role, req dto.SignupRequest) (*models.Identity, error) {
	if !role.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported role")
	}
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}

	identity, err := s.createIdentity(ctx, role, req.FirstName, req.LastName, req.Email, req.Password, false)
	if err != nil {
		return nil, err
	}

	if err := s.sendVerification(identity); err != nil {
		s.logger.Warn("failed to queue verification email", zap.String("identity_id", identity.ID), zap.Error(err))
	}
	s.audit(ctx, identity.ID, models.AuditActionSignup, string(role), "", "")
	return identity, nil
}

// AdminSignup creates an administrator. The first admin may sign up freely;
// later ones need the configured signup key.
func (s *AuthService) AdminSignup(ctx context.Context, req dto.AdminSignupRequest) (*models.Identity, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}

	admins, err := s.repo.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count admins")
	}
	if admins > 0 {
		key := s.config.AdminSignupKey
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(req.SignupKey)) != 1 {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "admin signup is closed")
		}
	}

	identity, err := s.createIdentity(ctx, models.RoleAdmin, strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName), req.Email, req.Password, true)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, identity.ID, models.AuditActionSignup, string(models.RoleAdmin), "", "")
	return identity, nil
}

func (s *AuthService) createIdentity(ctx context.Context, role models.Role, first, last, email, password string, verified bool) (*models.Identity, error) {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	identity := &models.Identity{
		ID:            uuid.NewString(),
		Role:          role,
		Email:         email,
		FirstName:     first,
		LastName:      last,
		PasswordHash:  string(hash),
		EmailVerified: verified,
	}
	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}
	return identity, nil
}

// VerifyEmail consumes a verification token. It reports true when the
// address had already been verified.
func (s *AuthService) VerifyEmail(ctx context.Context, role models.Role, token string) (bool, error) {
	claims, err := s.parseActionToken(token, models.TokenPurposeVerifyEmail)
	if err != nil {
		return false, err
	}
	if claims.Role != role {
		return false, appErrors.Clone(appErrors.ErrValidation, "verification link does not match this account type")
	}

	changed, err := s.repo.MarkEmailVerified(ctx, claims.UserID, role)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify email")
	}
	if changed {
		// Verified identities join the admin review queue.
		s.cache.Invalidate(ctx, cacheKeyPendingQueue+"*")
		return false, nil
	}
	if _, err := s.repo.FindByIDAndRole(ctx, claims.UserID, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	return true, nil
}

// Login authenticates an identity of role and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, role models.Role, req dto.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	identity, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch account")
	}
	if identity.Role != role {
		return nil, appErrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !identity.EmailVerified {
		return nil, appErrors.Clone(appErrors.ErrEmailNotVerified, "email is not verified, check your inbox for the verification link")
	}

	accessToken, err := s.generateAccessToken(identity)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refreshValue, err := s.issueRefreshToken(ctx, identity.ID, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, identity.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	s.audit(ctx, identity.ID, models.AuditActionLogin, "auth", req.IP, req.UserAgent)

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     s.now().UTC(),
		User: models.UserInfo{
			ID:             identity.ID,
			Email:          identity.Email,
			FullName:       identity.FullName(),
			Role:           identity.Role,
			ApprovalStatus: identity.ApprovalStatus,
		},
	}, nil
}

// RefreshToken rotates a refresh token and returns a new pair.
func (s *AuthService) RefreshToken(ctx context.Context, req dto.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	stored, err := s.repo.FindRefreshToken(ctx, hashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}
	if stored.Revoked || s.now().UTC().After(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	identity, err := s.repo.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}

	if err := s.repo.RevokeRefreshToken(ctx, stored.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	accessToken, err := s.generateAccessToken(identity)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}
	refreshValue, err := s.issueRefreshToken(ctx, identity.ID, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	return &models.RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     s.now().UTC(),
	}, nil
}

// Logout revokes the provided refresh token for userID.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken, ip, userAgent string) error {
	stored, err := s.repo.FindRefreshToken(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}
	if stored.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if err := s.repo.RevokeRefreshToken(ctx, stored.ID, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	s.audit(ctx, userID, models.AuditActionLogout, "auth", ip, userAgent)
	return nil
}

// ForgotPassword issues a reset link. Unknown addresses are ignored so the
// endpoint does not reveal which emails are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, role models.Role, req dto.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}

	identity, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("password reset for unknown email", zap.String("role", string(role)))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch account")
	}
	if identity.Role != role {
		return nil
	}

	token, err := randomToken()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reset token")
	}
	expiresAt := s.now().UTC().Add(s.config.ResetTokenExpiry)
	if err := s.repo.SetResetToken(ctx, identity.ID, hashToken(token), expiresAt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store reset token")
	}

	link := fmt.Sprintf("%s/%s/forgetpassword/%s", strings.TrimRight(s.config.FrontendURL, "/"), role, url.PathEscape(token))
	if err := s.notifier.NotifyEmail(EmailNotification{
		To:       identity.Email,
		Subject:  "Reset your password",
		Template: mailer.TemplateResetPassword,
		Data: map[string]string{
			"FirstName": identity.FirstName,
			"Link":      link,
			"ExpiresIn": s.config.ResetTokenExpiry.String(),
		},
	}); err != nil {
		s.logger.Warn("failed to queue reset email", zap.String("identity_id", identity.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword sets a new password using a reset token.
func (s *AuthService) ResetPassword(ctx context.Context, role models.Role, token string, req dto.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}
	if strings.TrimSpace(token) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "reset token is required")
	}

	identity, err := s.repo.FindByResetToken(ctx, role, hashToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "reset link is invalid or has expired")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, identity.ID, string(hash), s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, identity.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after reset", zap.Error(err))
	}
	s.audit(ctx, identity.ID, models.AuditActionPasswordReset, "auth", "", "")
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, s.keyFunc, jwt.WithAudience(models.AccessTokenAudience))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return []byte(s.config.AccessTokenSecret), nil
}

func (s *AuthService) generateAccessToken(identity *models.Identity) (string, error) {
	issuedAt := s.now().UTC()
	claims := &models.JWTClaims{
		UserID:   identity.ID,
		Role:     identity.Role,
		Email:    identity.Email,
		FullName: identity.FullName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{models.AccessTokenAudience},
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) issueRefreshToken(ctx context.Context, userID, ip, userAgent string) (string, error) {
	value, err := randomToken()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	now := s.now().UTC()
	if err := s.repo.CreateRefreshToken(ctx, &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hashToken(value),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}
	return value, nil
}

func (s *AuthService) sendVerification(identity *models.Identity) error {
	token, err := s.issueActionToken(identity, models.TokenPurposeVerifyEmail, s.config.VerifyTokenExpiry)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/%s/verify?token=%s", strings.TrimRight(s.config.PublicURL, "/"), identity.Role, url.QueryEscape(token))
	return s.notifier.NotifyEmail(EmailNotification{
		To:       identity.Email,
		Subject:  "Verify your email",
		Template: mailer.TemplateVerifyEmail,
		Data: map[string]string{
			"FirstName": identity.FirstName,
			"Role":      string(identity.Role),
			"Link":      link,
			"ExpiresIn": s.config.VerifyTokenExpiry.String(),
		},
	})
}

func (s *AuthService) issueActionToken(identity *models.Identity, purpose string, ttl time.Duration) (string, error) {
	issuedAt := s.now().UTC()
	claims := &models.ActionClaims{
		UserID:  identity.ID,
		Role:    identity.Role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{purpose},
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) parseActionToken(tokenString, purpose string) (*models.ActionClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "verification token is required")
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.ActionClaims{}, s.keyFunc, jwt.WithAudience(purpose))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "link is invalid or has expired")
	}
	claims, ok := token.Claims.(*models.ActionClaims)
	if !ok || !token.Valid || claims.Purpose != purpose {
		return nil, appErrors.Clone(appErrors.ErrValidation, "link is invalid or has expired")
	}
	return claims, nil
}

func (s *AuthService) audit(ctx context.Context, userID, action, resource, ip, userAgent string) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &userID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
