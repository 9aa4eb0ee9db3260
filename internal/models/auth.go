package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenAudience marks bearer tokens accepted by the API.
const AccessTokenAudience = "access"

// Token purposes carried by single-use action tokens. The purpose is also
// the token audience, so action tokens never validate as access tokens.
const (
	TokenPurposeVerifyEmail = "verify_email"
)

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated identity in responses.
type UserInfo struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	FullName       string         `json:"full_name"`
	Role           Role           `json:"role"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// ActionClaims back single-purpose links such as email verification.
type ActionClaims struct {
	UserID  string `json:"user_id"`
	Role    Role   `json:"role"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}
