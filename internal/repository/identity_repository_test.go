package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var identityCols = []string{"id", "role", "email", "first_name", "last_name", "password_hash", "email_verified", "approval_status", "document_bundle_id", "remarks", "reset_token_hash", "reset_token_expires_at", "last_login", "created_at", "updated_at"}

func identityRow(id string, role models.Role, status models.ApprovalStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(identityCols).
		AddRow(id, string(role), "asha@example.com", "Asha", "Rao", "hash", true, string(status), nil, nil, nil, nil, nil, now, now)
}

func TestIdentityFindByEmailIsCaseInsensitive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM identities WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("Asha@Example.com").
		WillReturnRows(identityRow("s1", models.RoleStudent, models.ApprovalUnset))

	identity, err := repo.FindByEmail(context.Background(), " Asha@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, identity.Role)
	assert.Equal(t, models.ApprovalUnset, identity.ApprovalStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityFindByIDPassesThroughNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery("FROM identities WHERE id = \\$1").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestIdentityCreateMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec("INSERT INTO identities").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Identity{Role: models.RoleStudent, Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestIdentityCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec("INSERT INTO identities").WillReturnResult(sqlmock.NewResult(1, 1))

	identity := &models.Identity{Role: models.RoleTeacher, Email: "t@example.com"}
	require.NoError(t, repo.Create(context.Background(), identity))
	assert.NotEmpty(t, identity.ID)
	assert.False(t, identity.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateApprovalStatusMatchesIDAndRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	remarks := "clear scans"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE identities SET approval_status = $3, remarks = $4, updated_at = $5 WHERE id = $1 AND role = $2 RETURNING")).
		WithArgs("t1", models.RoleTeacher, models.ApprovalApproved, &remarks, sqlmock.AnyArg()).
		WillReturnRows(identityRow("t1", models.RoleTeacher, models.ApprovalApproved))

	identity, err := repo.UpdateApprovalStatus(context.Background(), "t1", models.RoleTeacher, models.ApprovalApproved, &remarks)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, identity.ApprovalStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateApprovalStatusNoMatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery("UPDATE identities SET approval_status").WillReturnRows(sqlmock.NewRows(identityCols))

	_, err := repo.UpdateApprovalStatus(context.Background(), "s1", models.RoleTeacher, models.ApprovalRejected, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMalformedIDsReadAsNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)
	invalid := &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "not-a-uuid"`}

	mock.ExpectQuery("UPDATE identities SET approval_status").WillReturnError(invalid)
	_, err := repo.UpdateApprovalStatus(context.Background(), "not-a-uuid", models.RoleStudent, models.ApprovalApproved, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery("FROM identities WHERE id = \\$1").WillReturnError(invalid)
	_, err = repo.FindByIDAndRole(context.Background(), "not-a-uuid", models.RoleTeacher)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery("FROM identities WHERE id = \\$1").WillReturnError(&pq.Error{Code: "57014"})
	_, err = repo.FindByID(context.Background(), "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEmailVerified(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET email_verified = TRUE")).
		WithArgs("s1", models.RoleStudent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkEmailVerified(context.Background(), "s1", models.RoleStudent)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForReview(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	verified := true
	mock.ExpectQuery(regexp.QuoteMeta("FROM identities WHERE 1=1 AND role = ANY($1) AND approval_status = ANY($2) AND email_verified = $3 ORDER BY updated_at DESC LIMIT 50 OFFSET 0")).
		WillReturnRows(identityRow("s1", models.RoleStudent, models.ApprovalPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM identities WHERE 1=1 AND role = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	identities, total, err := repo.ListForReview(context.Background(), models.IdentityFilter{
		Roles:         []models.Role{models.RoleStudent, models.RoleTeacher},
		Statuses:      []models.ApprovalStatus{models.ApprovalPending},
		EmailVerified: &verified,
	})
	require.NoError(t, err)
	assert.Len(t, identities, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByResetToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE role = $1 AND reset_token_hash = $2 AND reset_token_expires_at > $3")).
		WithArgs(models.RoleStudent, "hash", now).
		WillReturnRows(identityRow("s1", models.RoleStudent, models.ApprovalUnset))

	identity, err := repo.FindByResetToken(context.Background(), models.RoleStudent, "hash", now)
	require.NoError(t, err)
	assert.Equal(t, "s1", identity.ID)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := &models.RefreshToken{UserID: "u1", TokenHash: "abc", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	require.NotEmpty(t, token.ID)
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), token.ID, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
