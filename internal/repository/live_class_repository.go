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

const liveClassColumns = `id, course_id, teacher_id, title, scheduled_date, start_minute, link, status, created_at, updated_at`

const liveClassViewSelect = `SELECT lc.id, lc.course_id, lc.teacher_id, lc.title, lc.scheduled_date, lc.start_minute, lc.link, lc.status, lc.created_at, lc.updated_at, c.name AS course_name
FROM live_classes lc JOIN courses c ON c.id = lc.course_id`

// LiveClassRepository persists live class sessions.
type LiveClassRepository struct {
	db *sqlx.DB
}

// NewLiveClassRepository creates a new instance of LiveClassRepository.
func NewLiveClassRepository(db *sqlx.DB) *LiveClassRepository {
	return &LiveClassRepository{db: db}
}

// Create inserts a live class.
func (r *LiveClassRepository) Create(ctx context.Context, class *models.LiveClass) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	if class.Status == "" {
		class.Status = models.LiveClassUpcoming
	}
	const query = `INSERT INTO live_classes (id, course_id, teacher_id, title, scheduled_date, start_minute, link, status, created_at, updated_at) VALUES (:id, :course_id, :teacher_id, :title, :scheduled_date, :start_minute, :link, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create live class: %w", err)
	}
	return nil
}

// FindByID returns a live class by identifier.
func (r *LiveClassRepository) FindByID(ctx context.Context, id string) (*models.LiveClass, error) {
	query := `SELECT ` + liveClassColumns + ` FROM live_classes WHERE id = $1 LIMIT 1`
	var class models.LiveClass
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find live class: %w", err)
	}
	return &class, nil
}

// UpdateStatus moves a class from one status to another for its owning
// teacher. It returns sql.ErrNoRows when no class matched.
func (r *LiveClassRepository) UpdateStatus(ctx context.Context, id, teacherID string, from, to models.LiveClassStatus) (*models.LiveClass, error) {
	query := `UPDATE live_classes SET status = $4, updated_at = $5 WHERE id = $1 AND teacher_id = $2 AND status = $3 RETURNING ` + liveClassColumns
	var class models.LiveClass
	if err := r.db.GetContext(ctx, &class, query, id, teacherID, from, to, time.Now().UTC()); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("update live class status: %w", err)
	}
	return &class, nil
}

// ListByTeacher returns classes taught by teacherID in date order.
func (r *LiveClassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.LiveClassView, error) {
	query := liveClassViewSelect + ` WHERE lc.teacher_id = $1 ORDER BY lc.scheduled_date ASC, lc.start_minute ASC`
	var classes []models.LiveClassView
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher classes: %w", err)
	}
	return classes, nil
}

// ListByStudent returns classes of the courses a student is enrolled in.
func (r *LiveClassRepository) ListByStudent(ctx context.Context, studentID string) ([]models.LiveClassView, error) {
	query := liveClassViewSelect + ` JOIN course_enrollments ce ON ce.course_id = lc.course_id WHERE ce.student_id = $1 ORDER BY lc.scheduled_date ASC, lc.start_minute ASC`
	var classes []models.LiveClassView
	if err := r.db.SelectContext(ctx, &classes, query, studentID); err != nil {
		return nil, fmt.Errorf("list student classes: %w", err)
	}
	return classes, nil
}
