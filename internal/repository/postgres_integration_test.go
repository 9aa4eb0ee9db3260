//go:build integration

package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/migrations"
	"github.com/noah-isme/learnhub-api/pkg/database"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("learnhub"),
		postgres.WithUsername("learnhub"),
		postgres.WithPassword("learnhub"),
		tc.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = pg.Terminate(stopCtx)
	})

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Open("postgres", uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, database.Migrate(db, migrations.FS, "."))
	return db
}

func TestPostgresIdentityAndCourseLifecycle(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	identities := NewIdentityRepository(db)
	courses := NewCourseRepository(db)

	teacher := &models.Identity{Role: models.RoleTeacher, Email: "Ada@Example.com", FirstName: "Ada", LastName: "Lovelace", PasswordHash: "x"}
	require.NoError(t, identities.Create(ctx, teacher))

	clash := &models.Identity{Role: models.RoleStudent, Email: "ada@example.com", FirstName: "Other", PasswordHash: "x"}
	assert.ErrorIs(t, identities.Create(ctx, clash), ErrDuplicate)

	found, err := identities.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, found.ID)

	verified, err := identities.MarkEmailVerified(ctx, teacher.ID, models.RoleTeacher)
	require.NoError(t, err)
	assert.True(t, verified)

	student := &models.Identity{Role: models.RoleStudent, Email: "grace@example.com", FirstName: "Grace", PasswordHash: "x"}
	require.NoError(t, identities.Create(ctx, student))

	course := &models.Course{
		Name:        "algebra",
		Description: "Linear algebra basics",
		TeacherID:   teacher.ID,
		Schedule:    models.Schedule{{Weekday: 1, StartMinute: 600, EndMinute: 660}},
	}
	require.NoError(t, courses.Create(ctx, course))
	assert.ErrorIs(t, courses.Create(ctx, &models.Course{Name: "algebra", Description: "again", TeacherID: teacher.ID, Schedule: course.Schedule}), ErrDuplicate)

	pending, err := courses.ListPendingWithTeacher(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Ada", pending[0].TeacherFirstName)

	catalog, err := courses.ListApprovedByName(ctx, "algebra")
	require.NoError(t, err)
	assert.Empty(t, catalog)

	approved, err := courses.Approve(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusApproved, approved.ApprovalStatus)
	assert.Equal(t, course.Schedule, approved.Schedule)

	require.NoError(t, courses.Enroll(ctx, &models.CourseEnrollment{CourseID: course.ID, StudentID: student.ID}))
	assert.ErrorIs(t, courses.Enroll(ctx, &models.CourseEnrollment{CourseID: course.ID, StudentID: student.ID}), ErrDuplicate)

	catalog, err = courses.ListApprovedByName(ctx, "algebra")
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, 1, catalog[0].EnrolledCount)

	enrolled, err := courses.ListByStudent(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.Equal(t, course.ID, enrolled[0].ID)

	_, err = courses.Delete(ctx, course.ID)
	require.NoError(t, err)
	enrolled, err = courses.ListByStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, enrolled)
}

func TestPostgresContactInbox(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	contacts := NewContactRepository(db)

	older := &models.ContactMessage{Name: "A", Email: "a@example.com", Body: "first", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &models.ContactMessage{Name: "B", Email: "b@example.com", Body: "second"}
	require.NoError(t, contacts.Create(ctx, older))
	require.NoError(t, contacts.Create(ctx, newer))

	unread, err := contacts.ListUnread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, newer.ID, unread[0].ID)

	read, err := contacts.MarkRead(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	again, err := contacts.MarkRead(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, read.ReadAt.Equal(*again.ReadAt))

	_, err = contacts.MarkRead(ctx, "8c1b2f8e-9f57-4d0c-9f2e-3f1f0b8a6c11")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = contacts.MarkRead(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	unread, err = contacts.ListUnread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, newer.ID, unread[0].ID)
}
