package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type memoryCacheRepo struct {
	values  map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.failGet {
		return errors.New("redis: connection refused")
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			delete(m.values, key)
		}
	}
	return nil
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)

	svc.Set(context.Background(), cacheKeyCatalog+"algebra", []string{"c1"}, 0)
	assert.Equal(t, time.Minute, repo.ttls[cacheKeyCatalog+"algebra"])

	var got []string
	require.True(t, svc.Get(context.Background(), cacheKeyCatalog+"algebra", &got))
	assert.Equal(t, []string{"c1"}, got)

	svc.Invalidate(context.Background(), cacheKeyCatalog+"*")
	assert.False(t, svc.Get(context.Background(), cacheKeyCatalog+"algebra", &got))
}

func TestCacheServiceFailsOpen(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.failGet = true
	svc := NewCacheService(repo, nil, 0, zap.NewNop(), true)

	var got []string
	assert.False(t, svc.Get(context.Background(), "k", &got))

	disabled := NewCacheService(newMemoryCacheRepo(), nil, 0, zap.NewNop(), false)
	disabled.Set(context.Background(), "k", "v", 0)
	assert.False(t, disabled.Get(context.Background(), "k", &got))

	var nilService *CacheService
	assert.False(t, nilService.Get(context.Background(), "k", &got))
	nilService.Invalidate(context.Background(), "*")
}

func TestCatalogIsCachedUntilDecision(t *testing.T) {
	f := newCourseFixture(verifiedIdentity("teacher1", models.RoleTeacher, models.ApprovalApproved))
	f.svc.cache = NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)

	approvedCourse(t, f, "teacher1", "algebra")
	first, err := f.svc.CatalogByName(context.Background(), "algebra")
	require.NoError(t, err)
	require.Len(t, first, 1)

	f.identities.byID["teacher2"] = verifiedIdentity("teacher2", models.RoleTeacher, models.ApprovalApproved)
	second, err := f.svc.CreateCourse(context.Background(), "teacher2", "algebra", mondayCourse())
	require.NoError(t, err)

	cached, err := f.svc.CatalogByName(context.Background(), "algebra")
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	approved := true
	_, err = f.svc.DecideCourse(context.Background(), testAdmin, second.ID, dto.CourseDecisionRequest{IsApproved: &approved})
	require.NoError(t, err)

	fresh, err := f.svc.CatalogByName(context.Background(), "algebra")
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}
