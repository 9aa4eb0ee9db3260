package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/export"
)

const exportPageSize = 100

type exportIdentityRepository interface {
	ListForReview(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, int, error)
}

type exportCourseRepository interface {
	ListPendingWithTeacher(ctx context.Context) ([]models.CourseWithTeacher, error)
}

// ExportResult is a rendered download.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the review queue for offline processing.
type ExportService struct {
	identities exportIdentityRepository
	courses    exportCourseRepository
	logger     *zap.Logger
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(identities exportIdentityRepository, courses exportCourseRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{identities: identities, courses: courses, logger: logger, now: time.Now}
}

// ExportApprovalQueue renders pending students, teachers and courses as csv, pdf or xlsx.
func (s *ExportService) ExportApprovalQueue(ctx context.Context, admin models.AuthorizedAdmin, format string) (*ExportResult, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf or xlsx")
	}

	dataset := export.Dataset{
		Title:   "Pending approvals",
		Headers: []string{"Kind", "ID", "Name", "Email", "Status", "Updated"},
	}

	verified := true
	filter := models.IdentityFilter{
		Roles:         []models.Role{models.RoleStudent, models.RoleTeacher},
		Statuses:      []models.ApprovalStatus{models.ApprovalPending},
		EmailVerified: &verified,
		PageSize:      exportPageSize,
	}
	for page := 1; ; page++ {
		filter.Page = page
		identities, total, err := s.identities.ListForReview(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending identities")
		}
		for _, identity := range identities {
			dataset.Rows = append(dataset.Rows, []string{
				string(identity.Role),
				identity.ID,
				identity.FullName(),
				identity.Email,
				string(identity.ApprovalStatus),
				identity.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(identities) == 0 || page*exportPageSize >= total {
			break
		}
	}

	courses, err := s.courses.ListPendingWithTeacher(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending courses")
	}
	for _, course := range courses {
		dataset.Rows = append(dataset.Rows, []string{
			"course",
			course.ID,
			course.Name,
			course.TeacherEmail,
			string(course.ApprovalStatus),
			course.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	body, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("approval queue exported",
		zap.String("admin_id", admin.ID),
		zap.String("format", renderer.Extension()),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		Filename:    fmt.Sprintf("approval-queue-%s.%s", s.now().UTC().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}
