package handler

import (
	"context"
	"io"
	"strings"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type authServiceMock struct {
	identity      *models.Identity
	login         *models.LoginResponse
	err           error
	alreadyVerify bool

	signupRole  models.Role
	adminSignup *dto.AdminSignupRequest
	loginReq    dto.LoginRequest
	verifyToken string
	resetToken  string
	logoutUser  string
}

func (m *authServiceMock) Signup(_ context.Context, role models.Role, _ dto.SignupRequest) (*models.Identity, error) {
	m.signupRole = role
	return m.identity, m.err
}

func (m *authServiceMock) AdminSignup(_ context.Context, req dto.AdminSignupRequest) (*models.Identity, error) {
	m.adminSignup = &req
	return m.identity, m.err
}

func (m *authServiceMock) VerifyEmail(_ context.Context, _ models.Role, token string) (bool, error) {
	m.verifyToken = token
	return m.alreadyVerify, m.err
}

func (m *authServiceMock) Login(_ context.Context, _ models.Role, req dto.LoginRequest) (*models.LoginResponse, error) {
	m.loginReq = req
	return m.login, m.err
}

func (m *authServiceMock) RefreshToken(context.Context, dto.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "new"}, m.err
}

func (m *authServiceMock) Logout(_ context.Context, userID, _, _, _ string) error {
	m.logoutUser = userID
	return m.err
}

func (m *authServiceMock) ForgotPassword(context.Context, models.Role, dto.ForgotPasswordRequest) error {
	return m.err
}

func (m *authServiceMock) ResetPassword(_ context.Context, _ models.Role, token string, _ dto.ResetPasswordRequest) error {
	m.resetToken = token
	return m.err
}

type identityServiceMock struct {
	identity *models.Identity
	lookup   *service.DocumentLookup
	err      error
}

func (m *identityServiceMock) GetProfile(_ context.Context, _ models.Role, id string) (*models.Identity, error) {
	if m.identity == nil || m.identity.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return m.identity, m.err
}

func (m *identityServiceMock) GetDocuments(context.Context, models.Role, string) (*service.DocumentLookup, error) {
	return m.lookup, m.err
}

type submitterMock struct {
	bundle  *models.DocumentBundle
	err     error
	req     dto.SubmitDocumentsRequest
	files   map[string]string
	called  bool
	role    models.Role
	ownerID string
}

func (m *submitterMock) Submit(_ context.Context, role models.Role, id string, req dto.SubmitDocumentsRequest, files map[string]service.DocumentUpload) (*models.DocumentBundle, error) {
	m.called = true
	m.role = role
	m.ownerID = id
	m.req = req
	m.files = make(map[string]string, len(files))
	for name, f := range files {
		raw, _ := io.ReadAll(f.Content)
		m.files[name] = f.Filename + ":" + string(raw)
	}
	return m.bundle, m.err
}

type approvalServiceMock struct {
	queue      *dto.PendingQueueResponse
	identity   *models.Identity
	docs       *dto.DocumentsResponse
	err        error
	filter     service.PendingFilter
	transition dto.TransitionRequest
	kind       string
	admin      models.AuthorizedAdmin
}

func (m *approvalServiceMock) ListPending(_ context.Context, admin models.AuthorizedAdmin, filter service.PendingFilter) (*dto.PendingQueueResponse, *models.Pagination, error) {
	m.admin = admin
	m.filter = filter
	return m.queue, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 0}, m.err
}

func (m *approvalServiceMock) TransitionIdentity(_ context.Context, admin models.AuthorizedAdmin, kind, _ string, req dto.TransitionRequest) (*models.Identity, error) {
	m.admin = admin
	m.kind = kind
	m.transition = req
	return m.identity, m.err
}

func (m *approvalServiceMock) GetDocuments(context.Context, models.AuthorizedAdmin, string, string) (*dto.DocumentsResponse, error) {
	return m.docs, m.err
}

type courseReviewMock struct {
	decision *service.CourseDecision
	pending  []models.CourseWithTeacher
	err      error
}

func (m *courseReviewMock) ListPendingCourses(context.Context, models.AuthorizedAdmin) ([]models.CourseWithTeacher, error) {
	return m.pending, m.err
}

func (m *courseReviewMock) DecideCourse(context.Context, models.AuthorizedAdmin, string, dto.CourseDecisionRequest) (*service.CourseDecision, error) {
	return m.decision, m.err
}

type exporterMock struct {
	format string
	err    error
}

func (m *exporterMock) ExportApprovalQueue(_ context.Context, _ models.AuthorizedAdmin, format string) (*service.ExportResult, error) {
	m.format = format
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportResult{Filename: "approval-queue." + format, ContentType: "text/csv", Body: []byte("Kind,ID\n")}, nil
}

type courseServiceMock struct {
	err       error
	teacherID string
	name      string
	courseID  string
	studentID string
}

func (m *courseServiceMock) CreateCourse(_ context.Context, teacherID, name string, _ dto.CreateCourseRequest) (*models.Course, error) {
	m.teacherID, m.name = teacherID, name
	return &models.Course{ID: "crs-1", Name: strings.ToLower(name), TeacherID: teacherID}, m.err
}

func (m *courseServiceMock) GetCourse(_ context.Context, id string) (*models.CourseWithTeacher, error) {
	m.courseID = id
	if m.err != nil {
		return nil, m.err
	}
	return &models.CourseWithTeacher{}, nil
}

func (m *courseServiceMock) CatalogByName(_ context.Context, name string) ([]models.CourseWithTeacher, error) {
	m.name = name
	return []models.CourseWithTeacher{}, m.err
}

func (m *courseServiceMock) ListTeacherCourses(_ context.Context, teacherID string) ([]models.CourseWithTeacher, error) {
	m.teacherID = teacherID
	return []models.CourseWithTeacher{}, m.err
}

func (m *courseServiceMock) ListStudentCourses(_ context.Context, studentID string) ([]models.CourseWithTeacher, error) {
	m.studentID = studentID
	return []models.CourseWithTeacher{}, m.err
}

func (m *courseServiceMock) Enroll(_ context.Context, studentID, courseID string) (*models.CourseEnrollment, error) {
	m.studentID, m.courseID = studentID, courseID
	return &models.CourseEnrollment{}, m.err
}

func (m *courseServiceMock) AddLiveClass(_ context.Context, courseID, teacherID string, _ dto.AddLiveClassRequest) (*models.LiveClass, error) {
	m.courseID, m.teacherID = courseID, teacherID
	return &models.LiveClass{}, m.err
}

func (m *courseServiceMock) UpdateLiveClassStatus(_ context.Context, _, teacherID string, _ dto.UpdateLiveClassStatusRequest) (*models.LiveClass, error) {
	m.teacherID = teacherID
	return &models.LiveClass{}, m.err
}

func (m *courseServiceMock) ListTeacherClasses(_ context.Context, teacherID string) ([]models.LiveClassView, error) {
	m.teacherID = teacherID
	return []models.LiveClassView{}, m.err
}

func (m *courseServiceMock) ListStudentClasses(_ context.Context, studentID string) ([]models.LiveClassView, error) {
	m.studentID = studentID
	return []models.LiveClassView{}, m.err
}

type contactServiceMock struct {
	err    error
	marked string
}

func (m *contactServiceMock) Send(_ context.Context, req dto.ContactRequest) (*models.ContactMessage, error) {
	return &models.ContactMessage{ID: "msg-1", Name: req.Name, Email: req.Email}, m.err
}

func (m *contactServiceMock) ListUnread(context.Context) ([]models.ContactMessage, error) {
	return []models.ContactMessage{{ID: "msg-1"}}, m.err
}

func (m *contactServiceMock) MarkRead(_ context.Context, req dto.MarkReadRequest) (*models.ContactMessage, error) {
	m.marked = req.MessageID
	if m.err != nil {
		return nil, m.err
	}
	return &models.ContactMessage{ID: req.MessageID, Read: true}, nil
}
