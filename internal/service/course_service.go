package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
	"github.com/noah-isme/learnhub-api/pkg/validation"
)

const (
	maxSlotMinutes = 180
	minutesPerDay  = 24 * 60
	liveClassDate  = "2006-01-02"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	ExistsForTeacher(ctx context.Context, teacherID, name string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindWithTeacher(ctx context.Context, id string) (*models.CourseWithTeacher, error)
	ListPendingWithTeacher(ctx context.Context) ([]models.CourseWithTeacher, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.CourseWithTeacher, error)
	ListApprovedByName(ctx context.Context, name string) ([]models.CourseWithTeacher, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.CourseWithTeacher, error)
	Approve(ctx context.Context, id string) (*models.Course, error)
	Delete(ctx context.Context, id string) (*models.Course, error)
	Enroll(ctx context.Context, enrollment *models.CourseEnrollment) error
}

type liveClassRepository interface {
	Create(ctx context.Context, class *models.LiveClass) error
	FindByID(ctx context.Context, id string) (*models.LiveClass, error)
	UpdateStatus(ctx context.Context, id, teacherID string, from, to models.LiveClassStatus) (*models.LiveClass, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.LiveClassView, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.LiveClassView, error)
}

type courseIdentityRepository interface {
	FindByIDAndRole(ctx context.Context, id string, role models.Role) (*models.Identity, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CourseDecision reports the outcome of an admin verdict on a course. A
// rejected course no longer exists; Course holds its last state.
type CourseDecision struct {
	Course   *models.Course `json:"course"`
	Approved bool           `json:"approved"`
	Deleted  bool           `json:"deleted"`
}

// CourseService manages courses, their approval and live classes.
type CourseService struct {
	courses    courseRepository
	classes    liveClassRepository
	identities courseIdentityRepository
	notifier   Notifier
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewCourseService constructs a CourseService.
func NewCourseService(courses courseRepository, classes liveClassRepository, identities courseIdentityRepository, notifier Notifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &CourseService{
		courses:    courses,
		classes:    classes,
		identities: identities,
		notifier:   notifier,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateCourse stores a pending course for an approved teacher.
func (s *CourseService) CreateCourse(ctx context.Context, teacherID, name string, req dto.CreateCourseRequest) (*models.Course, error) {
	name = normalizeCourseName(name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course name is required")
	}
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}
	schedule, err := buildSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}

	teacher, err := findIdentity(ctx, s.identities, models.RoleTeacher, teacherID)
	if err != nil {
		return nil, err
	}
	if !teacher.Approved() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher is not approved yet")
	}

	exists, err := s.courses.ExistsForTeacher(ctx, teacher.ID, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a course with this name")
	}

	course := &models.Course{
		Name:           name,
		Description:    req.Description,
		TeacherID:      teacher.ID,
		ApprovalStatus: models.CourseStatusPending,
		Schedule:       schedule,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a course with this name")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// ListPendingCourses returns courses awaiting review with their teachers.
func (s *CourseService) ListPendingCourses(ctx context.Context, _ models.AuthorizedAdmin) ([]models.CourseWithTeacher, error) {
	courses, err := s.courses.ListPendingWithTeacher(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending courses")
	}
	return nonNilCourses(courses), nil
}

// DecideCourse approves a pending course or deletes it. The rejection email
// names the course as it was before deletion.
func (s *CourseService) DecideCourse(ctx context.Context, admin models.AuthorizedAdmin, courseID string, req dto.CourseDecisionRequest) (*CourseDecision, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}

	current, err := s.courses.FindWithTeacher(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if current.ApprovalStatus != models.CourseStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course has already been reviewed")
	}

	decision := &CourseDecision{Approved: *req.IsApproved}
	template, subject, verdict := mailer.TemplateCourseApproved, "Your course was approved", "approved"
	if decision.Approved {
		decision.Course, err = s.courses.Approve(ctx, courseID)
	} else {
		template, subject, verdict = mailer.TemplateCourseRejected, "Your course was not approved", "rejected"
		decision.Course, err = s.courses.Delete(ctx, courseID)
		decision.Deleted = err == nil
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply course decision")
	}

	s.metrics.RecordDecision("course", verdict)
	s.cache.Invalidate(ctx, cacheKeyCatalog+"*")
	s.recordDecision(ctx, admin, current.Name, courseID, verdict)

	to, firstName := req.Email, strings.TrimSpace(req.FirstName)
	if to == "" {
		to = current.TeacherEmail
	}
	if firstName == "" {
		firstName = current.TeacherFirstName
	}
	if err := s.notifier.NotifyEmail(EmailNotification{
		To:       to,
		Subject:  subject,
		Template: template,
		Data:     map[string]string{"FirstName": firstName, "CourseName": current.Name},
	}); err != nil {
		s.logger.Warn("failed to queue course decision email", zap.String("course_id", courseID), zap.Error(err))
	}
	return decision, nil
}

// GetCourse returns a course with its teacher.
func (s *CourseService) GetCourse(ctx context.Context, id string) (*models.CourseWithTeacher, error) {
	course, err := s.courses.FindWithTeacher(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// CatalogByName lists approved courses with name, newest first. Results are
// cached until a course decision invalidates them.
func (s *CourseService) CatalogByName(ctx context.Context, name string) ([]models.CourseWithTeacher, error) {
	name = normalizeCourseName(name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course name is required")
	}
	key := cacheKeyCatalog + name
	var cached []models.CourseWithTeacher
	if s.cache.Get(ctx, key, &cached) {
		return nonNilCourses(cached), nil
	}
	courses, err := s.courses.ListApprovedByName(ctx, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	courses = nonNilCourses(courses)
	s.cache.Set(ctx, key, courses, 0)
	return courses, nil
}

// ListTeacherCourses returns every course owned by teacherID.
func (s *CourseService) ListTeacherCourses(ctx context.Context, teacherID string) ([]models.CourseWithTeacher, error) {
	courses, err := s.courses.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher courses")
	}
	return nonNilCourses(courses), nil
}

// ListStudentCourses returns the courses studentID is enrolled in.
func (s *CourseService) ListStudentCourses(ctx context.Context, studentID string) ([]models.CourseWithTeacher, error) {
	courses, err := s.courses.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student courses")
	}
	return nonNilCourses(courses), nil
}

// Enroll adds an approved student to an approved course.
func (s *CourseService) Enroll(ctx context.Context, studentID, courseID string) (*models.CourseEnrollment, error) {
	student, err := findIdentity(ctx, s.identities, models.RoleStudent, studentID)
	if err != nil {
		return nil, err
	}
	if !student.Approved() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not approved yet")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.ApprovalStatus != models.CourseStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is not open for enrollment")
	}

	enrollment := &models.CourseEnrollment{CourseID: course.ID, StudentID: student.ID}
	if err := s.courses.Enroll(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
	}
	return enrollment, nil
}

// AddLiveClass schedules a session of an approved course owned by teacherID.
// Overlapping sessions are not detected.
func (s *CourseService) AddLiveClass(ctx context.Context, courseID, teacherID string, req dto.AddLiveClassRequest) (*models.LiveClass, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Link = strings.TrimSpace(req.Link)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}
	date, err := time.ParseInLocation(liveClassDate, strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date cannot be in the past")
	}

	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}
	if course.ApprovalStatus != models.CourseStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course is not approved yet")
	}
	if !course.Schedule.HasWeekday(date.Weekday()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("course is not scheduled on %s", date.Weekday()))
	}

	class := &models.LiveClass{
		CourseID:      course.ID,
		TeacherID:     teacherID,
		Title:         req.Title,
		ScheduledDate: date,
		StartMinute:   *req.StartMinute,
		Link:          req.Link,
		Status:        models.LiveClassUpcoming,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add live class")
	}
	return class, nil
}

// UpdateLiveClassStatus closes an upcoming class as done or cancelled.
func (s *CourseService) UpdateLiveClassStatus(ctx context.Context, classID, teacherID string, req dto.UpdateLiveClassStatusRequest) (*models.LiveClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}
	target := models.LiveClassStatus(req.Status)

	class, err := s.classes.UpdateStatus(ctx, classID, teacherID, models.LiveClassUpcoming, target)
	if err == nil {
		return class, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update live class")
	}

	existing, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "live class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load live class")
	}
	if existing.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "live class belongs to another teacher")
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("live class is already %s", existing.Status))
}

// ListTeacherClasses returns the live classes of teacherID.
func (s *CourseService) ListTeacherClasses(ctx context.Context, teacherID string) ([]models.LiveClassView, error) {
	classes, err := s.classes.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list live classes")
	}
	if classes == nil {
		classes = []models.LiveClassView{}
	}
	return classes, nil
}

// ListStudentClasses returns live classes of the courses studentID attends.
func (s *CourseService) ListStudentClasses(ctx context.Context, studentID string) ([]models.LiveClassView, error) {
	classes, err := s.classes.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list live classes")
	}
	if classes == nil {
		classes = []models.LiveClassView{}
	}
	return classes, nil
}

func (s *CourseService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) recordDecision(ctx context.Context, admin models.AuthorizedAdmin, name, courseID, verdict string) {
	payload, _ := json.Marshal(map[string]string{"name": name, "verdict": verdict})
	adminID := admin.ID
	if err := s.identities.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionCourseDecision,
		Resource:   "course",
		ResourceID: &courseID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", models.AuditActionCourseDecision), zap.Error(err))
	}
}

// buildSchedule checks that weekdays are unique and every window is ordered,
// within the day and at most three hours long.
func buildSchedule(slots []dto.ScheduleSlotInput) (models.Schedule, error) {
	seen := make(map[int]struct{}, len(slots))
	schedule := make(models.Schedule, 0, len(slots))
	for _, slot := range slots {
		day := time.Weekday(slot.Weekday)
		if slot.Weekday < 0 || slot.Weekday > 6 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "weekday must be between 0 and 6")
		}
		if _, dup := seen[slot.Weekday]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is scheduled more than once", day))
		}
		seen[slot.Weekday] = struct{}{}
		if slot.StartMinute < 0 || slot.EndMinute > minutesPerDay || slot.StartMinute >= slot.EndMinute {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must end after it starts", day))
		}
		if slot.EndMinute-slot.StartMinute > maxSlotMinutes {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s runs longer than %d minutes", day, maxSlotMinutes))
		}
		schedule = append(schedule, models.ScheduleSlot{Weekday: slot.Weekday, StartMinute: slot.StartMinute, EndMinute: slot.EndMinute})
	}
	return schedule, nil
}

func normalizeCourseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func nonNilCourses(courses []models.CourseWithTeacher) []models.CourseWithTeacher {
	if courses == nil {
		return []models.CourseWithTeacher{}
	}
	return courses
}
