package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	"github.com/noah-isme/learnhub-api/pkg/storage"
)

type fakeNotifier struct {
	mu     sync.Mutex
	emails []EmailNotification
	alerts []string
	err    error
}

func (f *fakeNotifier) NotifyEmail(msg EmailNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, msg)
	return nil
}

func (f *fakeNotifier) NotifyAdmins(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, text)
	return nil
}

type memoryIdentityRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.Identity
	refresh   map[string]*models.RefreshToken
	audits    []*models.AuditLog
	updateErr error
}

func newMemoryIdentityRepo(identities ...*models.Identity) *memoryIdentityRepo {
	repo := &memoryIdentityRepo{byID: map[string]*models.Identity{}, refresh: map[string]*models.RefreshToken{}}
	for _, identity := range identities {
		repo.byID[identity.ID] = identity
	}
	return repo
}

func (m *memoryIdentityRepo) get(id string) *models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil
	}
	cp := *identity
	return &cp
}

func (m *memoryIdentityRepo) Create(ctx context.Context, identity *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, identity.Email) {
			return repository.ErrDuplicate
		}
	}
	cp := *identity
	m.byID[identity.ID] = &cp
	return nil
}

func (m *memoryIdentityRepo) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if strings.EqualFold(identity.Email, strings.TrimSpace(email)) {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryIdentityRepo) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	if identity := m.get(id); identity != nil {
		return identity, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryIdentityRepo) FindByIDAndRole(ctx context.Context, id string, role models.Role) (*models.Identity, error) {
	if identity := m.get(id); identity != nil && identity.Role == role {
		return identity, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryIdentityRepo) MarkEmailVerified(ctx context.Context, id string, role models.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok || identity.Role != role || identity.EmailVerified {
		return false, nil
	}
	identity.EmailVerified = true
	return true, nil
}

func (m *memoryIdentityRepo) CountByRole(ctx context.Context, role models.Role) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, identity := range m.byID {
		if identity.Role == role {
			total++
		}
	}
	return total, nil
}

func (m *memoryIdentityRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.byID[id]; ok {
		identity.LastLogin = &ts
	}
	return nil
}

func (m *memoryIdentityRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.byID[id]; ok {
		identity.ResetTokenHash = &tokenHash
		identity.ResetTokenExpiresAt = &expiresAt
	}
	return nil
}

func (m *memoryIdentityRepo) FindByResetToken(ctx context.Context, role models.Role, tokenHash string, now time.Time) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Role != role || identity.ResetTokenHash == nil || *identity.ResetTokenHash != tokenHash {
			continue
		}
		if identity.ResetTokenExpiresAt == nil || now.After(*identity.ResetTokenExpiresAt) {
			continue
		}
		cp := *identity
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryIdentityRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.byID[id]; ok {
		identity.PasswordHash = passwordHash
		identity.ResetTokenHash = nil
		identity.ResetTokenExpiresAt = nil
	}
	return nil
}

func (m *memoryIdentityRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.refresh {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *memoryIdentityRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[token.TokenHash] = token
	return nil
}

func (m *memoryIdentityRepo) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.refresh[tokenHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *token
	return &cp, nil
}

func (m *memoryIdentityRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.refresh {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *memoryIdentityRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, log)
	return nil
}

func (m *memoryIdentityRepo) UpdateApprovalStatus(ctx context.Context, id string, role models.Role, status models.ApprovalStatus, remarks *string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	identity, ok := m.byID[id]
	if !ok || identity.Role != role {
		return nil, sql.ErrNoRows
	}
	identity.ApprovalStatus = status
	identity.Remarks = remarks
	cp := *identity
	return &cp, nil
}

func (m *memoryIdentityRepo) ListForReview(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Identity
	for _, identity := range m.byID {
		if len(filter.Roles) > 0 && !containsRole(filter.Roles, identity.Role) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, identity.ApprovalStatus) {
			continue
		}
		if filter.EmailVerified != nil && identity.EmailVerified != *filter.EmailVerified {
			continue
		}
		out = append(out, *identity)
	}
	return out, len(out), nil
}

func (m *memoryIdentityRepo) SummarizeStatuses(ctx context.Context) ([]models.IdentitySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[models.IdentitySummary]int{}
	for _, identity := range m.byID {
		if identity.Role.Reviewable() && identity.EmailVerified {
			counts[models.IdentitySummary{Role: identity.Role, Status: identity.ApprovalStatus}]++
		}
	}
	out := make([]models.IdentitySummary, 0, len(counts))
	for key, total := range counts {
		key.Total = total
		out = append(out, key)
	}
	return out, nil
}

func containsRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func containsStatus(statuses []models.ApprovalStatus, status models.ApprovalStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type memoryBundleRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.DocumentBundle
	phones    map[string]string
	identity  *memoryIdentityRepo
	submitErr error
	submits   int
}

func newMemoryBundleRepo(identities *memoryIdentityRepo) *memoryBundleRepo {
	return &memoryBundleRepo{byID: map[string]*models.DocumentBundle{}, phones: map[string]string{}, identity: identities}
}

func (m *memoryBundleRepo) FindByID(ctx context.Context, id string) (*models.DocumentBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bundle, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *bundle
	return &cp, nil
}

func (m *memoryBundleRepo) FindByOwner(ctx context.Context, ownerID string) (*models.DocumentBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bundle := range m.byID {
		if bundle.OwnerID == ownerID {
			cp := *bundle
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryBundleRepo) PhoneInUse(ctx context.Context, phone, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.phones[phone]
	return ok && owner != ownerID, nil
}

// Submit mirrors the transactional repository: the bundle is only kept when
// the owner is still in a submittable state.
func (m *memoryBundleRepo) Submit(ctx context.Context, bundle *models.DocumentBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits++
	if m.submitErr != nil {
		return m.submitErr
	}
	m.identity.mu.Lock()
	defer m.identity.mu.Unlock()
	owner, ok := m.identity.byID[bundle.OwnerID]
	if !ok || owner.Role != bundle.OwnerRole || !owner.ApprovalStatus.AcceptsSubmission() {
		return repository.ErrStaleState
	}
	for id, existing := range m.byID {
		if existing.OwnerID == bundle.OwnerID {
			bundle.ID = id
		}
	}
	if bundle.ID == "" {
		bundle.ID = uuid.NewString()
	}
	cp := *bundle
	m.byID[bundle.ID] = &cp
	m.phones[bundle.Phone] = bundle.OwnerID
	owner.DocumentBundleID = &cp.ID
	owner.ApprovalStatus = models.ApprovalPending
	owner.Remarks = nil
	return nil
}

var errBlobUnavailable = errors.New("blob store unavailable")

type fakeBlobStore struct {
	mu       sync.Mutex
	uploaded map[string]string
	deleted  []string
	failOn   string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{uploaded: map[string]string{}}
}

func (f *fakeBlobStore) Upload(ctx context.Context, obj storage.Object) (string, error) {
	if f.failOn != "" && strings.Contains(obj.Key, f.failOn) {
		return "", errBlobUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	url := "https://blobs.test/" + obj.Key
	f.mu.Lock()
	f.uploaded[url] = obj.ContentType
	f.mu.Unlock()
	return url, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	delete(f.uploaded, url)
	return nil
}

func (f *fakeBlobStore) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploaded)
}

type memoryCourseRepo struct {
	mu          sync.Mutex
	courses     map[string]*models.Course
	enrollments map[string]bool
	identities  *memoryIdentityRepo
}

func newMemoryCourseRepo(identities *memoryIdentityRepo) *memoryCourseRepo {
	return &memoryCourseRepo{courses: map[string]*models.Course{}, enrollments: map[string]bool{}, identities: identities}
}

func (m *memoryCourseRepo) Create(ctx context.Context, course *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.courses {
		if existing.TeacherID == course.TeacherID && existing.Name == course.Name {
			return repository.ErrDuplicate
		}
	}
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	cp := *course
	m.courses[course.ID] = &cp
	return nil
}

func (m *memoryCourseRepo) ExistsForTeacher(ctx context.Context, teacherID, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.courses {
		if existing.TeacherID == teacherID && existing.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *course
	return &cp, nil
}

func (m *memoryCourseRepo) withTeacher(course models.Course) models.CourseWithTeacher {
	out := models.CourseWithTeacher{Course: course}
	if teacher := m.identities.get(course.TeacherID); teacher != nil {
		out.TeacherFirstName = teacher.FirstName
		out.TeacherLastName = teacher.LastName
		out.TeacherEmail = teacher.Email
	}
	return out
}

func (m *memoryCourseRepo) FindWithTeacher(ctx context.Context, id string) (*models.CourseWithTeacher, error) {
	course, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := m.withTeacher(*course)
	return &out, nil
}

func (m *memoryCourseRepo) list(match func(models.Course) bool) []models.CourseWithTeacher {
	m.mu.Lock()
	var matched []models.Course
	for _, course := range m.courses {
		if match(*course) {
			matched = append(matched, *course)
		}
	}
	m.mu.Unlock()
	out := make([]models.CourseWithTeacher, 0, len(matched))
	for _, course := range matched {
		out = append(out, m.withTeacher(course))
	}
	return out
}

func (m *memoryCourseRepo) ListPendingWithTeacher(ctx context.Context) ([]models.CourseWithTeacher, error) {
	return m.list(func(c models.Course) bool { return c.ApprovalStatus == models.CourseStatusPending }), nil
}

func (m *memoryCourseRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.CourseWithTeacher, error) {
	return m.list(func(c models.Course) bool { return c.TeacherID == teacherID }), nil
}

func (m *memoryCourseRepo) ListApprovedByName(ctx context.Context, name string) ([]models.CourseWithTeacher, error) {
	return m.list(func(c models.Course) bool { return c.Name == name && c.ApprovalStatus == models.CourseStatusApproved }), nil
}

func (m *memoryCourseRepo) ListByStudent(ctx context.Context, studentID string) ([]models.CourseWithTeacher, error) {
	m.mu.Lock()
	enrolled := map[string]bool{}
	for key := range m.enrollments {
		if parts := strings.SplitN(key, "|", 2); parts[1] == studentID {
			enrolled[parts[0]] = true
		}
	}
	m.mu.Unlock()
	return m.list(func(c models.Course) bool { return enrolled[c.ID] }), nil
}

func (m *memoryCourseRepo) Approve(ctx context.Context, id string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	course.ApprovalStatus = models.CourseStatusApproved
	cp := *course
	return &cp, nil
}

func (m *memoryCourseRepo) Delete(ctx context.Context, id string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	delete(m.courses, id)
	return course, nil
}

func (m *memoryCourseRepo) Enroll(ctx context.Context, enrollment *models.CourseEnrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := enrollment.CourseID + "|" + enrollment.StudentID
	if m.enrollments[key] {
		return repository.ErrDuplicate
	}
	m.enrollments[key] = true
	return nil
}

type memoryLiveClassRepo struct {
	mu      sync.Mutex
	classes map[string]*models.LiveClass
}

func newMemoryLiveClassRepo() *memoryLiveClassRepo {
	return &memoryLiveClassRepo{classes: map[string]*models.LiveClass{}}
}

func (m *memoryLiveClassRepo) Create(ctx context.Context, class *models.LiveClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	cp := *class
	m.classes[class.ID] = &cp
	return nil
}

func (m *memoryLiveClassRepo) FindByID(ctx context.Context, id string) (*models.LiveClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	class, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *class
	return &cp, nil
}

func (m *memoryLiveClassRepo) UpdateStatus(ctx context.Context, id, teacherID string, from, to models.LiveClassStatus) (*models.LiveClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	class, ok := m.classes[id]
	if !ok || class.TeacherID != teacherID || class.Status != from {
		return nil, sql.ErrNoRows
	}
	class.Status = to
	cp := *class
	return &cp, nil
}

func (m *memoryLiveClassRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.LiveClassView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LiveClassView
	for _, class := range m.classes {
		if class.TeacherID == teacherID {
			out = append(out, models.LiveClassView{LiveClass: *class})
		}
	}
	return out, nil
}

func (m *memoryLiveClassRepo) ListByStudent(ctx context.Context, studentID string) ([]models.LiveClassView, error) {
	return nil, nil
}

func verifiedIdentity(id string, role models.Role, status models.ApprovalStatus) *models.Identity {
	return &models.Identity{
		ID:             id,
		Role:           role,
		Email:          id + "@example.com",
		FirstName:      strings.ToUpper(id[:1]) + id[1:],
		LastName:       "Tester",
		EmailVerified:  true,
		ApprovalStatus: status,
	}
}
