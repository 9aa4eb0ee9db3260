package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type approvalService interface {
	ListPending(ctx context.Context, admin models.AuthorizedAdmin, filter service.PendingFilter) (*dto.PendingQueueResponse, *models.Pagination, error)
	TransitionIdentity(ctx context.Context, admin models.AuthorizedAdmin, kind, targetID string, req dto.TransitionRequest) (*models.Identity, error)
	GetDocuments(ctx context.Context, admin models.AuthorizedAdmin, kind, targetID string) (*dto.DocumentsResponse, error)
}

type courseReviewService interface {
	ListPendingCourses(ctx context.Context, admin models.AuthorizedAdmin) ([]models.CourseWithTeacher, error)
	DecideCourse(ctx context.Context, admin models.AuthorizedAdmin, courseID string, req dto.CourseDecisionRequest) (*service.CourseDecision, error)
}

type queueExporter interface {
	ExportApprovalQueue(ctx context.Context, admin models.AuthorizedAdmin, format string) (*service.ExportResult, error)
}

// ApprovalHandler exposes the admin review queue.
type ApprovalHandler struct {
	approvals approvalService
	courses   courseReviewService
	exports   queueExporter
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(approvals approvalService, courses courseReviewService, exports queueExporter) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, courses: courses, exports: exports}
}

// ListPending godoc
// @Summary List students and teachers for review
// @Tags Admin
// @Produce json
// @Param adminId path string true "Admin ID"
// @Param status query string false "pending, approved, rejected, reupload-requested or unset"
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/{adminId}/approve [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	admin, ok := adminFromContext(c)
	if !ok {
		return
	}
	filter := service.PendingFilter{
		Status:   c.Query("status"),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}

	queue, pagination, err := h.approvals.ListPending(c.Request.Context(), admin, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, queue, pagination)
}

// Transition godoc
// @Summary Approve, reject or request re-upload
// @Tags Admin
// @Accept json
// @Produce json
// @Param adminId path string true "Admin ID"
// @Param kind path string true "student or teacher"
// @Param targetId path string true "Identity ID"
// @Param payload body dto.TransitionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/{adminId}/approve/{kind}/{targetId} [post]
func (h *ApprovalHandler) Transition(c *gin.Context) {
	admin, ok := adminFromContext(c)
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if !bindJSON(c, &req, "invalid decision payload") {
		return
	}

	identity, err := h.approvals.TransitionIdentity(c.Request.Context(), admin, c.Param("kind"), c.Param("targetId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, c.Param("kind")+" status updated", identity)
}

// Documents godoc
// @Summary Inspect submitted documents
// @Tags Admin
// @Produce json
// @Param adminId path string true "Admin ID"
// @Param kind path string true "student or teacher"
// @Param targetId path string true "Identity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/{adminId}/documents/{kind}/{targetId} [get]
func (h *ApprovalHandler) Documents(c *gin.Context) {
	admin, ok := adminFromContext(c)
	if !ok {
		return
	}
	docs, err := h.approvals.GetDocuments(c.Request.Context(), admin, c.Param("kind"), c.Param("targetId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, docs.Message, docs)
}

// PendingCourses godoc
// @Summary List courses awaiting review
// @Tags Admin
// @Produce json
// @Param adminId path string true "Admin ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/{adminId}/approve/course [get]
func (h *ApprovalHandler) PendingCourses(c *gin.Context) {
	admin, ok := adminFromContext(c)
	if !ok {
		return
	}
	courses, err := h.courses.ListPendingCourses(c.Request.Context(), admin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// DecideCourse godoc
// @Summary Approve or reject a course
// @Description Rejection deletes the course.
// @Tags Admin
// @Accept json
// @Produce json
// @Param adminId path string true "Admin ID"
// @Param courseId path string true "Course ID"
// @Param payload body dto.CourseDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/{adminId}/approve/course/{courseId} [post]
func (h *ApprovalHandler) DecideCourse(c *gin.Context) {
	admin, ok := adminFromContext(c)
	if !ok {
		return
	}
	var req dto.CourseDecisionRequest
	if !bindJSON(c, &req, "invalid decision payload") {
		return
	}

	decision, err := h.courses.DecideCourse(c.Request.Context(), admin, c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	message := "course approved"
	if !decision.Approved {
		message = "course rejected and removed"
	}
	response.Message(c, http.StatusOK, message, decision)
}

// Export godoc
// @Summary Download the review queue
// @Tags Admin
// @Produce octet-stream
// @Param adminId path string true "Admin ID"
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/{adminId}/approve/export [get]
func (h *ApprovalHandler) Export(c *gin.Context) {
	admin, ok := adminFromContext(c)
	if !ok {
		return
	}
	result, err := h.exports.ExportApprovalQueue(c.Request.Context(), admin, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.ContentType, result.Filename, result.Body)
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
