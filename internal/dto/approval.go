package dto

import "github.com/noah-isme/learnhub-api/internal/models"

// TransitionRequest carries an admin verdict on a student or teacher.
type TransitionRequest struct {
	ApprovalStatus string `json:"approval_status" validate:"required"`
	Email          string `json:"email" validate:"omitempty,email"`
	Remarks        string `json:"remarks" validate:"max=1000"`
}

// AdminInfo identifies the acting administrator in responses.
type AdminInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// PendingQueueResponse lists verified identities for review.
type PendingQueueResponse struct {
	Admin    AdminInfo                `json:"admin"`
	Students []models.Identity        `json:"students"`
	Teachers []models.Identity        `json:"teachers"`
	Summary  []models.IdentitySummary `json:"summary"`
}

// DocumentsResponse returns an identity with its document bundle. Documents
// is nil when nothing was uploaded or the bundle reference is dangling.
type DocumentsResponse struct {
	Admin            AdminInfo              `json:"admin"`
	Identity         models.Identity        `json:"identity"`
	Documents        *models.DocumentBundle `json:"documents"`
	DocumentsMissing bool                   `json:"documents_missing,omitempty"`
	Message          string                 `json:"message"`
}
