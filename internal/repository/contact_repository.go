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

// ContactRepository persists contact form messages.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository creates a new instance of ContactRepository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create stores an unread message.
func (r *ContactRepository) Create(ctx context.Context, msg *models.ContactMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO contact_messages (id, name, email, body, read, created_at) VALUES (:id, :name, :email, :body, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create contact message: %w", err)
	}
	return nil
}

// ListUnread returns unread messages, newest first.
func (r *ContactRepository) ListUnread(ctx context.Context) ([]models.ContactMessage, error) {
	const query = `SELECT id, name, email, body, read, read_at, created_at FROM contact_messages WHERE read = FALSE ORDER BY created_at DESC`
	var messages []models.ContactMessage
	if err := r.db.SelectContext(ctx, &messages, query); err != nil {
		return nil, fmt.Errorf("list unread messages: %w", err)
	}
	return messages, nil
}

// MarkRead flags a message read and returns it. Unknown ids yield
// sql.ErrNoRows; marking an already read message is a no-op.
func (r *ContactRepository) MarkRead(ctx context.Context, id string) (*models.ContactMessage, error) {
	const query = `UPDATE contact_messages SET read = TRUE, read_at = COALESCE(read_at, $2) WHERE id = $1 RETURNING id, name, email, body, read, read_at, created_at`
	var msg models.ContactMessage
	if err := r.db.GetContext(ctx, &msg, query, id, time.Now().UTC()); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("mark message read: %w", err)
	}
	return &msg, nil
}
