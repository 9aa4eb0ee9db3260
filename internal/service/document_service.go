package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/storage"
	"github.com/noah-isme/learnhub-api/pkg/validation"
)

type documentIdentityRepository interface {
	FindByIDAndRole(ctx context.Context, id string, role models.Role) (*models.Identity, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type documentBundleRepository interface {
	FindByOwner(ctx context.Context, ownerID string) (*models.DocumentBundle, error)
	PhoneInUse(ctx context.Context, phone, ownerID string) (bool, error)
	Submit(ctx context.Context, bundle *models.DocumentBundle) error
}

type stagingArea interface {
	SaveStream(key string, r io.Reader, limit int64) (int64, error)
	Path(key string) (string, error)
	RemoveAll(prefix string) error
}

// DocumentUpload is one file of a verification submission.
type DocumentUpload struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// DocumentConfig bounds accepted files.
type DocumentConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	Concurrency  int
}

type stagedDocument struct {
	name     string
	key      string
	path     string
	mimeType string
}

// DocumentService accepts verification submissions: it validates fields and
// files, uploads every file to the blob store and only then persists the
// bundle and the pending status together.
type DocumentService struct {
	identities documentIdentityRepository
	bundles    documentBundleRepository
	staging    stagingArea
	blobs      storage.BlobStore
	notifier   Notifier
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        DocumentConfig
	mimeSet    map[string]struct{}
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(identities documentIdentityRepository, bundles documentBundleRepository, staging stagingArea, blobs storage.BlobStore, notifier Notifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg DocumentConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, m := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &DocumentService{
		identities: identities,
		bundles:    bundles,
		staging:    staging,
		blobs:      blobs,
		notifier:   notifier,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		mimeSet:    mimeSet,
	}
}

// Submit validates and stores the documents of identity id. When any upload
// fails nothing is persisted and the identity keeps its previous status.
func (s *DocumentService) Submit(ctx context.Context, role models.Role, id string, req dto.SubmitDocumentsRequest, files map[string]DocumentUpload) (*models.DocumentBundle, error) {
	if !role.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only students and teachers submit documents")
	}
	identity, err := findIdentity(ctx, s.identities, role, id)
	if err != nil {
		return nil, err
	}
	if !identity.EmailVerified {
		return nil, appErrors.Clone(appErrors.ErrEmailNotVerified, "verify your email before uploading documents")
	}
	if !identity.ApprovalStatus.AcceptsSubmission() {
		status, _ := identity.ApprovalStatus.MarshalText()
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("documents cannot be submitted while status is %s", status))
	}

	if err := s.validateFields(role, &req); err != nil {
		return nil, err
	}
	inUse, err := s.bundles.PhoneInUse(ctx, req.Phone, identity.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check phone number")
	}
	if inUse {
		return nil, appErrors.Clone(appErrors.ErrConflict, "phone number is already registered")
	}

	required := models.RequiredDocuments(role)
	mimeTypes := make(map[string]string, len(required))
	for _, name := range required {
		mimeType, err := s.checkFile(name, files[name])
		if err != nil {
			return nil, err
		}
		mimeTypes[name] = mimeType
	}

	batch := path.Join(string(role), identity.ID, uuid.NewString())
	defer func() {
		if err := s.staging.RemoveAll(batch); err != nil {
			s.logger.Warn("failed to clean staging batch", zap.String("batch", batch), zap.Error(err))
		}
	}()
	staged, err := s.stage(batch, required, files, mimeTypes)
	if err != nil {
		return nil, err
	}

	urls, err := s.uploadAll(ctx, staged)
	if err != nil {
		return nil, err
	}

	previous, err := s.bundles.FindByOwner(ctx, identity.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.discard(ctx, urls)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous documents")
	}

	bundle := &models.DocumentBundle{
		OwnerID:   identity.ID,
		OwnerRole: role,
		Phone:     req.Phone,
		Address:   strings.TrimSpace(req.Address),
		Profile:   profileFromRequest(req),
		Documents: models.DocumentSet(urls),
	}
	if err := s.bundles.Submit(ctx, bundle); err != nil {
		s.discard(ctx, urls)
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return nil, appErrors.Clone(appErrors.ErrConflict, "documents were already submitted")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "phone number is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save documents")
	}

	if previous != nil {
		replaced := make(map[string]string, len(previous.Documents))
		for name, url := range previous.Documents {
			if urls[name] != url {
				replaced[name] = url
			}
		}
		s.discard(ctx, replaced)
	}

	s.afterSubmit(ctx, identity, bundle)
	return bundle, nil
}

func (s *DocumentService) validateFields(role models.Role, req *dto.SubmitDocumentsRequest) error {
	req.Phone = strings.TrimSpace(req.Phone)
	req.HighestEducation = strings.TrimSpace(req.HighestEducation)
	req.SecondarySchool = strings.TrimSpace(req.SecondarySchool)
	req.HigherSchool = strings.TrimSpace(req.HigherSchool)
	req.UGCollege = strings.TrimSpace(req.UGCollege)
	req.PGCollege = strings.TrimSpace(req.PGCollege)

	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}
	if role != models.RoleTeacher {
		return nil
	}
	teacher := dto.TeacherFields{
		UGCollege: req.UGCollege,
		PGCollege: req.PGCollege,
		UGMarks:   req.UGMarks,
		PGMarks:   req.PGMarks,
	}
	if err := s.validator.Struct(teacher); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}
	return nil
}

func (s *DocumentService) checkFile(name string, file DocumentUpload) (string, error) {
	if file.Content == nil || file.Size <= 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, name+" is required")
	}
	if file.Size > s.cfg.MaxFileSize {
		return "", appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("%s exceeds %d bytes limit", name, s.cfg.MaxFileSize))
	}
	header := make([]byte, 512)
	n, err := file.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect "+name)
	}
	if _, err := file.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, name+" is empty")
	}
	detected := http.DetectContentType(header[:n])
	mediaType, _, err := mime.ParseMediaType(detected)
	if err != nil {
		mediaType = detected
	}
	if _, ok := s.mimeSet[strings.ToLower(mediaType)]; !ok {
		return "", appErrors.Clone(appErrors.ErrUnsupportedMedia, fmt.Sprintf("%s has unsupported type %s", name, mediaType))
	}
	return mediaType, nil
}

func (s *DocumentService) stage(batch string, names []string, files map[string]DocumentUpload, mimeTypes map[string]string) ([]stagedDocument, error) {
	staged := make([]stagedDocument, 0, len(names))
	for _, name := range names {
		key := path.Join(batch, name+extensionFor(mimeTypes[name], files[name].Filename))
		if _, err := s.staging.SaveStream(key, files[name].Content, s.cfg.MaxFileSize); err != nil {
			if errors.Is(err, storage.ErrTooLarge) {
				return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("%s exceeds %d bytes limit", name, s.cfg.MaxFileSize))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage "+name)
		}
		fullPath, err := s.staging.Path(key)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage "+name)
		}
		staged = append(staged, stagedDocument{name: name, key: key, path: fullPath, mimeType: mimeTypes[name]})
	}
	return staged, nil
}

// uploadAll pushes every staged file concurrently. The first failure cancels
// the rest and removes whatever was already uploaded.
func (s *DocumentService) uploadAll(ctx context.Context, staged []stagedDocument) (map[string]string, error) {
	var mu sync.Mutex
	urls := make(map[string]string, len(staged))
	start := time.Now()

	p := pool.New().WithMaxGoroutines(s.cfg.Concurrency).WithContext(ctx).WithCancelOnError()
	for _, doc := range staged {
		p.Go(func(ctx context.Context) error {
			url, err := s.blobs.Upload(ctx, storage.Object{Key: doc.key, Path: doc.path, ContentType: doc.mimeType})
			if err != nil {
				return fmt.Errorf("upload %s: %w", doc.name, err)
			}
			mu.Lock()
			urls[doc.name] = url
			mu.Unlock()
			return nil
		})
	}
	err := p.Wait()
	s.metrics.ObserveUpload(err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("document upload failed", zap.Int("uploaded", len(urls)), zap.Int("total", len(staged)), zap.Error(err))
		s.discard(ctx, urls)
		return nil, appErrors.Wrap(err, appErrors.ErrUploadFailed.Code, appErrors.ErrUploadFailed.Status, "document upload failed, please try again")
	}
	return urls, nil
}

// discard deletes blobs best effort.
func (s *DocumentService) discard(ctx context.Context, urls map[string]string) {
	ctx = context.WithoutCancel(ctx)
	for name, url := range urls {
		if err := s.blobs.Delete(ctx, url); err != nil {
			s.logger.Warn("failed to delete uploaded document", zap.String("document", name), zap.Error(err))
		}
	}
}

func (s *DocumentService) afterSubmit(ctx context.Context, identity *models.Identity, bundle *models.DocumentBundle) {
	names := make([]string, 0, len(bundle.Documents))
	for name := range bundle.Documents {
		names = append(names, name)
	}
	payload, _ := json.Marshal(map[string]interface{}{"bundle_id": bundle.ID, "documents": names})
	ownerID := identity.ID
	if err := s.identities.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &ownerID,
		Action:     models.AuditActionDocumentsSubmit,
		Resource:   string(identity.Role),
		ResourceID: &ownerID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", models.AuditActionDocumentsSubmit), zap.Error(err))
	}

	s.cache.Invalidate(ctx, cacheKeyPendingQueue+"*")

	alert := fmt.Sprintf("New %s verification awaiting review: %s <%s>", identity.Role, identity.FullName(), identity.Email)
	if err := s.notifier.NotifyAdmins(alert); err != nil {
		s.logger.Warn("failed to queue admin alert", zap.String("identity_id", identity.ID), zap.Error(err))
	}
}

func profileFromRequest(req dto.SubmitDocumentsRequest) models.DocumentProfile {
	profile := models.DocumentProfile{
		HighestEducation: req.HighestEducation,
		SecondarySchool:  req.SecondarySchool,
		HigherSchool:     req.HigherSchool,
		UGCollege:        req.UGCollege,
		PGCollege:        req.PGCollege,
		UGMarks:          req.UGMarks,
		PGMarks:          req.PGMarks,
		ExperienceYears:  req.ExperienceYears,
	}
	if req.SecondaryMarks != nil {
		profile.SecondaryMarks = *req.SecondaryMarks
	}
	if req.HigherMarks != nil {
		profile.HigherMarks = *req.HigherMarks
	}
	return profile
}

func extensionFor(mimeType, filename string) string {
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".bin"
}
