package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/database"
)

const bundleColumns = `id, owner_id, owner_role, phone, address, profile, documents, created_at, updated_at`

// DocumentRepository persists verification document bundles.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new instance of DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// FindByID returns a bundle by identifier.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.DocumentBundle, error) {
	query := `SELECT ` + bundleColumns + ` FROM document_bundles WHERE id = $1 LIMIT 1`
	var bundle models.DocumentBundle
	if err := r.db.GetContext(ctx, &bundle, query, id); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find document bundle: %w", err)
	}
	return &bundle, nil
}

// FindByOwner returns the bundle owned by an identity.
func (r *DocumentRepository) FindByOwner(ctx context.Context, ownerID string) (*models.DocumentBundle, error) {
	query := `SELECT ` + bundleColumns + ` FROM document_bundles WHERE owner_id = $1 LIMIT 1`
	var bundle models.DocumentBundle
	if err := r.db.GetContext(ctx, &bundle, query, ownerID); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find document bundle by owner: %w", err)
	}
	return &bundle, nil
}

// PhoneInUse reports whether another owner already registered phone.
func (r *DocumentRepository) PhoneInUse(ctx context.Context, phone, ownerID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM document_bundles WHERE phone = $1 AND owner_id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, phone, ownerID); err != nil {
		return false, fmt.Errorf("check phone: %w", err)
	}
	return exists, nil
}

// Submit stores bundle for its owner and moves the owner to pending in one
// transaction. The owner must still be in a submittable state; otherwise
// ErrStaleState is returned and nothing is written. A previous bundle for the
// same owner is replaced in place and keeps its id.
func (r *DocumentRepository) Submit(ctx context.Context, bundle *models.DocumentBundle) error {
	if bundle.ID == "" {
		bundle.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = now
	}
	bundle.UpdatedAt = now

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const upsert = `INSERT INTO document_bundles (id, owner_id, owner_role, phone, address, profile, documents, created_at, updated_at)
VALUES (:id, :owner_id, :owner_role, :phone, :address, :profile, :documents, :created_at, :updated_at)
ON CONFLICT (owner_id) DO UPDATE SET phone = EXCLUDED.phone, address = EXCLUDED.address, profile = EXCLUDED.profile, documents = EXCLUDED.documents, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
		stmt, err := tx.PrepareNamedContext(ctx, upsert)
		if err != nil {
			return fmt.Errorf("prepare bundle upsert: %w", err)
		}
		defer stmt.Close() //nolint:errcheck

		var stored struct {
			ID        string    `db:"id"`
			CreatedAt time.Time `db:"created_at"`
		}
		if err := stmt.GetContext(ctx, &stored, bundle); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("upsert document bundle: %w", err)
		}
		bundle.ID = stored.ID
		bundle.CreatedAt = stored.CreatedAt

		const attach = `UPDATE identities SET document_bundle_id = $2, approval_status = $3, remarks = NULL, updated_at = $4 WHERE id = $1 AND role = $5 AND approval_status IN ($6, $7)`
		res, err := tx.ExecContext(ctx, attach, bundle.OwnerID, bundle.ID, models.ApprovalPending, now, bundle.OwnerRole, models.ApprovalUnset, models.ApprovalReupload)
		if err != nil {
			return fmt.Errorf("attach document bundle: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("attach document bundle rows: %w", err)
		}
		if affected == 0 {
			return ErrStaleState
		}
		return nil
	})
}
