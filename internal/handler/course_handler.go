package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type courseService interface {
	CreateCourse(ctx context.Context, teacherID, name string, req dto.CreateCourseRequest) (*models.Course, error)
	GetCourse(ctx context.Context, id string) (*models.CourseWithTeacher, error)
	CatalogByName(ctx context.Context, name string) ([]models.CourseWithTeacher, error)
	ListTeacherCourses(ctx context.Context, teacherID string) ([]models.CourseWithTeacher, error)
	ListStudentCourses(ctx context.Context, studentID string) ([]models.CourseWithTeacher, error)
	Enroll(ctx context.Context, studentID, courseID string) (*models.CourseEnrollment, error)
	AddLiveClass(ctx context.Context, courseID, teacherID string, req dto.AddLiveClassRequest) (*models.LiveClass, error)
	UpdateLiveClassStatus(ctx context.Context, classID, teacherID string, req dto.UpdateLiveClassStatusRequest) (*models.LiveClass, error)
	ListTeacherClasses(ctx context.Context, teacherID string) ([]models.LiveClassView, error)
	ListStudentClasses(ctx context.Context, studentID string) ([]models.LiveClassView, error)
}

// CourseHandler serves course, enrollment and live class routes. The first
// path segment of course-scoped routes is bound as "course".
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// Create godoc
// @Summary Propose a course
// @Tags Course
// @Accept json
// @Produce json
// @Param courseName path string true "Course name"
// @Param teacherId path string true "Teacher ID"
// @Param payload body dto.CreateCourseRequest true "Description and weekly schedule"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /course/{courseName}/create/{teacherId} [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req dto.CreateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.CreateCourse(c.Request.Context(), c.Param("teacherId"), c.Param("course"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "course submitted for approval", course)
}

// Detail godoc
// @Summary Get an approved course
// @Tags Course
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /course/detail/{courseId} [get]
func (h *CourseHandler) Detail(c *gin.Context) {
	course, err := h.service.GetCourse(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Catalog godoc
// @Summary Find approved courses by name
// @Tags Course
// @Produce json
// @Param courseName path string true "Course name"
// @Success 200 {object} response.Envelope
// @Router /course/catalog/{courseName} [get]
func (h *CourseHandler) Catalog(c *gin.Context) {
	courses, err := h.service.CatalogByName(c.Request.Context(), c.Param("courseName"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// TeacherCourses godoc
// @Summary List a teacher's courses
// @Tags Course
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /course/teacher/{teacherId}/enrolled [get]
func (h *CourseHandler) TeacherCourses(c *gin.Context) {
	courses, err := h.service.ListTeacherCourses(c.Request.Context(), c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// StudentCourses godoc
// @Summary List a student's enrolled courses
// @Tags Course
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /course/student/{studentId}/enrolled [get]
func (h *CourseHandler) StudentCourses(c *gin.Context) {
	courses, err := h.service.ListStudentCourses(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Enroll godoc
// @Summary Enroll in an approved course
// @Tags Course
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /course/{courseId}/enroll/{studentId} [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	enrollment, err := h.service.Enroll(c.Request.Context(), c.Param("studentId"), c.Param("course"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "enrolled", enrollment)
}

// AddClass godoc
// @Summary Schedule a live class
// @Tags Course
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param teacherId path string true "Teacher ID"
// @Param payload body dto.AddLiveClassRequest true "Live class"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /course/{courseId}/teacher/{teacherId}/add-class [post]
func (h *CourseHandler) AddClass(c *gin.Context) {
	var req dto.AddLiveClassRequest
	if !bindJSON(c, &req, "invalid live class payload") {
		return
	}
	class, err := h.service.AddLiveClass(c.Request.Context(), c.Param("course"), c.Param("teacherId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "live class scheduled", class)
}

// UpdateClassStatus godoc
// @Summary Mark a live class done or cancelled
// @Tags Course
// @Accept json
// @Produce json
// @Param classId path string true "Live class ID"
// @Param teacherId path string true "Teacher ID"
// @Param payload body dto.UpdateLiveClassStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /course/classes/{classId}/teacher/{teacherId}/status [patch]
func (h *CourseHandler) UpdateClassStatus(c *gin.Context) {
	var req dto.UpdateLiveClassStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	class, err := h.service.UpdateLiveClassStatus(c.Request.Context(), c.Param("classId"), c.Param("teacherId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// TeacherClasses godoc
// @Summary List a teacher's live classes
// @Tags Course
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /course/classes/teacher/{teacherId} [get]
func (h *CourseHandler) TeacherClasses(c *gin.Context) {
	classes, err := h.service.ListTeacherClasses(c.Request.Context(), c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// StudentClasses godoc
// @Summary List live classes of a student's courses
// @Tags Course
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /course/classes/student/{studentId} [get]
func (h *CourseHandler) StudentClasses(c *gin.Context) {
	classes, err := h.service.ListStudentClasses(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}
