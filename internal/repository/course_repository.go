package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnhub-api/internal/models"
)

const courseColumns = `id, name, description, teacher_id, approval_status, schedule, created_at, updated_at`

const courseWithTeacherSelect = `SELECT c.id, c.name, c.description, c.teacher_id, c.approval_status, c.schedule, c.created_at, c.updated_at,
i.first_name AS teacher_first_name, i.last_name AS teacher_last_name, i.email AS teacher_email,
(SELECT COUNT(*) FROM course_enrollments e WHERE e.course_id = c.id) AS enrolled_count
FROM courses c JOIN identities i ON i.id = c.teacher_id`

// CourseRepository persists courses and enrollments.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new instance of CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a pending course. A duplicate name for the same teacher
// yields ErrDuplicate.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	if course.ApprovalStatus == "" {
		course.ApprovalStatus = models.CourseStatusPending
	}

	const query = `INSERT INTO courses (id, name, description, teacher_id, approval_status, schedule, created_at, updated_at) VALUES (:id, :name, :description, :teacher_id, :approval_status, :schedule, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// ExistsForTeacher reports whether teacherID already owns a course called name.
func (r *CourseRepository) ExistsForTeacher(ctx context.Context, teacherID, name string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM courses WHERE teacher_id = $1 AND name = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, teacherID, name); err != nil {
		return false, fmt.Errorf("check course name: %w", err)
	}
	return exists, nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindWithTeacher returns a course joined with its teacher.
func (r *CourseRepository) FindWithTeacher(ctx context.Context, id string) (*models.CourseWithTeacher, error) {
	query := courseWithTeacherSelect + ` WHERE c.id = $1 LIMIT 1`
	var course models.CourseWithTeacher
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find course with teacher: %w", err)
	}
	return &course, nil
}

// ListPendingWithTeacher returns courses awaiting review, oldest first.
func (r *CourseRepository) ListPendingWithTeacher(ctx context.Context) ([]models.CourseWithTeacher, error) {
	query := courseWithTeacherSelect + ` WHERE c.approval_status = $1 ORDER BY c.created_at ASC`
	var courses []models.CourseWithTeacher
	if err := r.db.SelectContext(ctx, &courses, query, models.CourseStatusPending); err != nil {
		return nil, fmt.Errorf("list pending courses: %w", err)
	}
	return courses, nil
}

// ListByTeacher returns every course owned by teacherID.
func (r *CourseRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.CourseWithTeacher, error) {
	query := courseWithTeacherSelect + ` WHERE c.teacher_id = $1 ORDER BY c.created_at DESC`
	var courses []models.CourseWithTeacher
	if err := r.db.SelectContext(ctx, &courses, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher courses: %w", err)
	}
	return courses, nil
}

// ListApprovedByName returns approved courses called name across teachers.
func (r *CourseRepository) ListApprovedByName(ctx context.Context, name string) ([]models.CourseWithTeacher, error) {
	query := courseWithTeacherSelect + ` WHERE c.name = $1 AND c.approval_status = $2 ORDER BY i.first_name ASC`
	var courses []models.CourseWithTeacher
	if err := r.db.SelectContext(ctx, &courses, query, name, models.CourseStatusApproved); err != nil {
		return nil, fmt.Errorf("list approved courses by name: %w", err)
	}
	return courses, nil
}

// ListByStudent returns the courses a student is enrolled in.
func (r *CourseRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CourseWithTeacher, error) {
	query := courseWithTeacherSelect + ` JOIN course_enrollments ce ON ce.course_id = c.id WHERE ce.student_id = $1 ORDER BY ce.enrolled_at DESC`
	var courses []models.CourseWithTeacher
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	return courses, nil
}

// Approve marks a pending course approved. It returns sql.ErrNoRows when the
// course does not exist.
func (r *CourseRepository) Approve(ctx context.Context, id string) (*models.Course, error) {
	query := `UPDATE courses SET approval_status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + courseColumns
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id, models.CourseStatusApproved, time.Now().UTC()); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("approve course: %w", err)
	}
	return &course, nil
}

// Delete removes a course, cascading to its live classes and enrollments, and
// returns the deleted row.
func (r *CourseRepository) Delete(ctx context.Context, id string) (*models.Course, error) {
	query := `DELETE FROM courses WHERE id = $1 RETURNING ` + courseColumns
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("delete course: %w", err)
	}
	return &course, nil
}

// Enroll links a student to a course. Repeated enrollment yields ErrDuplicate.
func (r *CourseRepository) Enroll(ctx context.Context, enrollment *models.CourseEnrollment) error {
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_enrollments (course_id, student_id, enrolled_at) VALUES (:course_id, :student_id, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}
