package models

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies which kind of account an identity belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts a route segment or token claim and returns the role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleTeacher:
		return RoleTeacher, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Reviewable reports whether the role goes through document approval.
func (r Role) Reviewable() bool {
	return r == RoleStudent || r == RoleTeacher
}

// ApprovalStatus is the verification state of an identity. The zero value
// means no documents have been submitted yet.
type ApprovalStatus string

const (
	ApprovalUnset    ApprovalStatus = ""
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalReupload ApprovalStatus = "reupload-requested"
)

const (
	approvalUnsetWire = "unset"
	approvalLegacyRe  = "reupload"
)

// ParseDecision normalises an admin decision. Only approved, rejected and
// reupload-requested (or its legacy alias "reupload") are accepted.
func ParseDecision(raw string) (ApprovalStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ApprovalApproved):
		return ApprovalApproved, true
	case string(ApprovalRejected):
		return ApprovalRejected, true
	case string(ApprovalReupload), approvalLegacyRe:
		return ApprovalReupload, true
	}
	return "", false
}

// AcceptsSubmission reports whether documents may be (re)submitted.
func (s ApprovalStatus) AcceptsSubmission() bool {
	return s == ApprovalUnset || s == ApprovalReupload
}

// MarshalText renders the unset state as "unset".
func (s ApprovalStatus) MarshalText() ([]byte, error) {
	if s == ApprovalUnset {
		return []byte(approvalUnsetWire), nil
	}
	return []byte(s), nil
}

// UnmarshalText accepts the wire form including the legacy alias and
// rejects unknown statuses.
func (s *ApprovalStatus) UnmarshalText(text []byte) error {
	switch raw := strings.ToLower(strings.TrimSpace(string(text))); raw {
	case approvalUnsetWire, "":
		*s = ApprovalUnset
	case approvalLegacyRe, string(ApprovalReupload):
		*s = ApprovalReupload
	case string(ApprovalPending), string(ApprovalApproved), string(ApprovalRejected):
		*s = ApprovalStatus(raw)
	default:
		return fmt.Errorf("unknown approval status %q", raw)
	}
	return nil
}

// Identity is a student, teacher or admin account stored in identities.
type Identity struct {
	ID                  string         `db:"id" json:"id"`
	Role                Role           `db:"role" json:"role"`
	Email               string         `db:"email" json:"email"`
	FirstName           string         `db:"first_name" json:"first_name"`
	LastName            string         `db:"last_name" json:"last_name"`
	PasswordHash        string         `db:"password_hash" json:"-"`
	EmailVerified       bool           `db:"email_verified" json:"email_verified"`
	ApprovalStatus      ApprovalStatus `db:"approval_status" json:"approval_status"`
	DocumentBundleID    *string        `db:"document_bundle_id" json:"document_bundle_id,omitempty"`
	Remarks             *string        `db:"remarks" json:"remarks,omitempty"`
	ResetTokenHash      *string        `db:"reset_token_hash" json:"-"`
	ResetTokenExpiresAt *time.Time     `db:"reset_token_expires_at" json:"-"`
	LastLogin           *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (i *Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// Approved reports whether downstream features are unlocked.
func (i *Identity) Approved() bool {
	return i.ApprovalStatus == ApprovalApproved
}

// IdentityFilter narrows identity listings.
type IdentityFilter struct {
	Roles         []Role
	Statuses      []ApprovalStatus
	EmailVerified *bool
	Search        string
	Page          int
	PageSize      int
}

// IdentitySummary counts identities per role and status for the admin queue.
type IdentitySummary struct {
	Role   Role           `db:"role" json:"role"`
	Status ApprovalStatus `db:"approval_status" json:"status"`
	Total  int            `db:"total" json:"total"`
}
