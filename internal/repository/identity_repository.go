package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/learnhub-api/internal/models"
)

const identityColumns = `id, role, email, first_name, last_name, password_hash, email_verified, approval_status, document_bundle_id, remarks, reset_token_hash, reset_token_expires_at, last_login, created_at, updated_at`

// IdentityRepository provides database access for students, teachers and admins.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new instance of IdentityRepository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts a new identity. A clashing email yields ErrDuplicate.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	const query = `INSERT INTO identities (id, role, email, first_name, last_name, password_hash, email_verified, approval_status, created_at, updated_at) VALUES (:id, :role, :email, :first_name, :last_name, :password_hash, :email_verified, :approval_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, identity); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// FindByEmail returns an identity by email, case-insensitively.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, strings.TrimSpace(email)); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find identity by email: %w", err)
	}
	return &identity, nil
}

// FindByID returns an identity by identifier.
func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, id); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find identity by id: %w", err)
	}
	return &identity, nil
}

// FindByIDAndRole returns the identity only when it carries role.
func (r *IdentityRepository) FindByIDAndRole(ctx context.Context, id string, role models.Role) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1 AND role = $2 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, id, role); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find %s by id: %w", role, err)
	}
	return &identity, nil
}

// MarkEmailVerified flips email_verified and reports whether a row changed.
func (r *IdentityRepository) MarkEmailVerified(ctx context.Context, id string, role models.Role) (bool, error) {
	const query = `UPDATE identities SET email_verified = TRUE, updated_at = $3 WHERE id = $1 AND role = $2 AND email_verified = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, role, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark email verified: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark email verified rows: %w", err)
	}
	return affected > 0, nil
}

// UpdateApprovalStatus is the single writer of an identity's verdict. It
// matches on id and role and returns sql.ErrNoRows when nothing matched.
func (r *IdentityRepository) UpdateApprovalStatus(ctx context.Context, id string, role models.Role, status models.ApprovalStatus, remarks *string) (*models.Identity, error) {
	query := `UPDATE identities SET approval_status = $3, remarks = $4, updated_at = $5 WHERE id = $1 AND role = $2 RETURNING ` + identityColumns
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, id, role, status, remarks, time.Now().UTC()); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("update approval status: %w", err)
	}
	return &identity, nil
}

// ListForReview returns identities matching filter with total count.
func (r *IdentityRepository) ListForReview(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, int, error) {
	baseQuery := `FROM identities WHERE 1=1`
	var conditions []string
	var args []interface{}

	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			roles = append(roles, string(role))
		}
		conditions = append(conditions, fmt.Sprintf("role = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(roles))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("approval_status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(statuses))
	}
	if filter.EmailVerified != nil {
		conditions = append(conditions, fmt.Sprintf("email_verified = $%d", len(args)+1))
		args = append(args, *filter.EmailVerified)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(first_name || ' ' || last_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY updated_at DESC LIMIT %d OFFSET %d", identityColumns, baseQuery, pageSize, offset)
	var identities []models.Identity
	if err := r.db.SelectContext(ctx, &identities, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list identities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}
	return identities, total, nil
}

// SummarizeStatuses counts verified students and teachers per status.
func (r *IdentityRepository) SummarizeStatuses(ctx context.Context) ([]models.IdentitySummary, error) {
	const query = `SELECT role, approval_status, COUNT(*) AS total FROM identities WHERE role IN ('student', 'teacher') AND email_verified = TRUE GROUP BY role, approval_status ORDER BY role, approval_status`
	var rows []models.IdentitySummary
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("summarize identity statuses: %w", err)
	}
	return rows, nil
}

// CountByRole returns the number of identities with role.
func (r *IdentityRepository) CountByRole(ctx context.Context, role models.Role) (int, error) {
	const query = `SELECT COUNT(*) FROM identities WHERE role = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, role); err != nil {
		return 0, fmt.Errorf("count identities by role: %w", err)
	}
	return total, nil
}

// UpdateLastLogin updates the last_login timestamp.
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE identities SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// SetResetToken stores the hash of a password reset token.
func (r *IdentityRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	const query = `UPDATE identities SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, tokenHash, expiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return nil
}

// FindByResetToken returns the identity holding an unexpired reset token.
func (r *IdentityRepository) FindByResetToken(ctx context.Context, role models.Role, tokenHash string, now time.Time) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE role = $1 AND reset_token_hash = $2 AND reset_token_expires_at > $3 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, role, tokenHash, now); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find identity by reset token: %w", err)
	}
	return &identity, nil
}

// UpdatePassword replaces the password hash and clears any reset token.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE identities SET password_hash = $2, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *IdentityRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token_hash, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by its hash.
func (r *IdentityRepository) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token_hash, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token_hash = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, tokenHash); err != nil {
		if isNotFound(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *IdentityRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all refresh tokens for an identity.
func (r *IdentityRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *IdentityRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
