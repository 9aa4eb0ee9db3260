package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
	"github.com/noah-isme/learnhub-api/pkg/validation"
)

type approvalIdentityRepository interface {
	FindByIDAndRole(ctx context.Context, id string, role models.Role) (*models.Identity, error)
	UpdateApprovalStatus(ctx context.Context, id string, role models.Role, status models.ApprovalStatus, remarks *string) (*models.Identity, error)
	ListForReview(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, int, error)
	SummarizeStatuses(ctx context.Context) ([]models.IdentitySummary, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PendingFilter narrows the admin review queue.
type PendingFilter struct {
	Status   string
	Search   string
	Page     int
	PageSize int
}

type pendingQueuePage struct {
	Students []models.Identity        `json:"students"`
	Teachers []models.Identity        `json:"teachers"`
	Summary  []models.IdentitySummary `json:"summary"`
	Total    int                      `json:"total"`
}

// ApprovalService owns the verification state machine of students and teachers.
type ApprovalService struct {
	identities approvalIdentityRepository
	documents  bundleLookupRepository
	notifier   Notifier
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(identities approvalIdentityRepository, documents bundleLookupRepository, notifier Notifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &ApprovalService{
		identities: identities,
		documents:  documents,
		notifier:   notifier,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// AuthorizeAdmin checks that the token belongs to an admin, that it targets
// the admin named in the route and that the admin record still exists.
func (s *ApprovalService) AuthorizeAdmin(ctx context.Context, claims *models.JWTClaims, adminID string) (*models.AuthorizedAdmin, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin access required")
	}
	if adminID == "" || claims.UserID != adminID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not belong to this admin")
	}
	admin, err := s.identities.FindByIDAndRole(ctx, adminID, models.RoleAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "admin not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin")
	}
	return &models.AuthorizedAdmin{ID: admin.ID, Email: admin.Email, FullName: admin.FullName()}, nil
}

// ListPending returns email-verified students and teachers awaiting or past review.
func (s *ApprovalService) ListPending(ctx context.Context, admin models.AuthorizedAdmin, filter PendingFilter) (*dto.PendingQueueResponse, *models.Pagination, error) {
	identityFilter := models.IdentityFilter{
		Roles:    []models.Role{models.RoleStudent, models.RoleTeacher},
		Search:   strings.TrimSpace(filter.Search),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	verified := true
	identityFilter.EmailVerified = &verified
	if filter.Status != "" {
		var status models.ApprovalStatus
		if err := status.UnmarshalText([]byte(filter.Status)); err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
		}
		identityFilter.Statuses = []models.ApprovalStatus{status}
	}
	if identityFilter.Page < 1 {
		identityFilter.Page = 1
	}
	if identityFilter.PageSize <= 0 || identityFilter.PageSize > 100 {
		identityFilter.PageSize = 50
	}

	cacheKey := fmt.Sprintf("%s:%s:%s:%d:%d", cacheKeyPendingQueue, filter.Status, strings.ToLower(identityFilter.Search), identityFilter.Page, identityFilter.PageSize)
	var page pendingQueuePage
	if !s.cache.Get(ctx, cacheKey, &page) {
		identities, total, err := s.identities.ListForReview(ctx, identityFilter)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending identities")
		}
		summary, err := s.identities.SummarizeStatuses(ctx)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize identities")
		}
		page = pendingQueuePage{
			Students: make([]models.Identity, 0),
			Teachers: make([]models.Identity, 0),
			Summary:  summary,
			Total:    total,
		}
		for _, identity := range identities {
			if identity.Role == models.RoleTeacher {
				page.Teachers = append(page.Teachers, identity)
			} else {
				page.Students = append(page.Students, identity)
			}
		}
		s.cache.Set(ctx, cacheKey, page, 0)
	}

	resp := &dto.PendingQueueResponse{
		Admin:    adminInfo(admin),
		Students: page.Students,
		Teachers: page.Teachers,
		Summary:  page.Summary,
	}
	return resp, &models.Pagination{Page: identityFilter.Page, PageSize: identityFilter.PageSize, TotalCount: page.Total}, nil
}

// TransitionIdentity applies an admin verdict to a student or teacher. The
// update is a single conditional write; concurrent verdicts resolve to the
// last committed one. Notification failures never undo the transition.
func (s *ApprovalService) TransitionIdentity(ctx context.Context, admin models.AuthorizedAdmin, kind, targetID string, req dto.TransitionRequest) (*models.Identity, error) {
	role, ok := models.ParseRole(kind)
	if !ok || !role.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind must be student or teacher")
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}
	status, ok := models.ParseDecision(req.ApprovalStatus)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approval_status must be approved, rejected or reupload-requested")
	}

	var remarks *string
	if trimmed := strings.TrimSpace(req.Remarks); trimmed != "" {
		remarks = &trimmed
	}

	identity, err := s.identities.UpdateApprovalStatus(ctx, targetID, role, status, remarks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, string(role)+" not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update approval status")
	}

	s.metrics.RecordDecision(string(role), string(status))
	s.cache.Invalidate(ctx, cacheKeyPendingQueue+"*")
	s.recordDecision(ctx, admin, identity, remarks)

	to := req.Email
	if to == "" {
		to = identity.Email
	}
	statusText, _ := status.MarshalText()
	data := map[string]string{
		"FirstName": identity.FirstName,
		"Role":      string(role),
		"Status":    string(statusText),
	}
	if remarks != nil {
		data["Remarks"] = *remarks
	}
	if err := s.notifier.NotifyEmail(EmailNotification{
		To:       to,
		Subject:  "Your verification status was updated",
		Template: mailer.TemplateApprovalStatus,
		Data:     data,
	}); err != nil {
		s.logger.Warn("failed to queue approval email",
			zap.String("identity_id", identity.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	return identity, nil
}

// GetDocuments returns the target identity with its bundle. A missing bundle
// is a normal result.
func (s *ApprovalService) GetDocuments(ctx context.Context, admin models.AuthorizedAdmin, kind, targetID string) (*dto.DocumentsResponse, error) {
	role, ok := models.ParseRole(kind)
	if !ok || !role.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind must be student or teacher")
	}
	lookup, err := lookupDocuments(ctx, s.identities, s.documents, s.logger, role, targetID)
	if err != nil {
		return nil, err
	}
	return &dto.DocumentsResponse{
		Admin:            adminInfo(admin),
		Identity:         *lookup.Identity,
		Documents:        lookup.Bundle,
		DocumentsMissing: lookup.Dangling,
		Message:          lookup.Message(),
	}, nil
}

func (s *ApprovalService) recordDecision(ctx context.Context, admin models.AuthorizedAdmin, identity *models.Identity, remarks *string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"role":            identity.Role,
		"approval_status": identity.ApprovalStatus,
		"remarks":         remarks,
	})
	adminID := admin.ID
	targetID := identity.ID
	if err := s.identities.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionIdentityDecision,
		Resource:   string(identity.Role),
		ResourceID: &targetID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", models.AuditActionIdentityDecision), zap.Error(err))
	}
}

func adminInfo(admin models.AuthorizedAdmin) dto.AdminInfo {
	return dto.AdminInfo{ID: admin.ID, Email: admin.Email, FullName: admin.FullName}
}
