package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type identityLookupRepository interface {
	FindByIDAndRole(ctx context.Context, id string, role models.Role) (*models.Identity, error)
}

type bundleLookupRepository interface {
	FindByID(ctx context.Context, id string) (*models.DocumentBundle, error)
}

// DocumentLookup is an identity together with its document bundle.
type DocumentLookup struct {
	Identity *models.Identity
	Bundle   *models.DocumentBundle
	Dangling bool
	Uploaded bool
}

// Message describes the lookup outcome for API responses.
func (l DocumentLookup) Message() string {
	switch {
	case l.Dangling:
		return "documents are referenced but could not be found"
	case !l.Uploaded:
		return "documents not uploaded"
	default:
		return "documents retrieved"
	}
}

// IdentityService serves self-service profile reads.
type IdentityService struct {
	identities identityLookupRepository
	documents  bundleLookupRepository
	logger     *zap.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(identities identityLookupRepository, documents bundleLookupRepository, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{identities: identities, documents: documents, logger: logger}
}

// GetProfile returns the identity of role with id.
func (s *IdentityService) GetProfile(ctx context.Context, role models.Role, id string) (*models.Identity, error) {
	return findIdentity(ctx, s.identities, role, id)
}

// GetDocuments returns the caller's own document bundle.
func (s *IdentityService) GetDocuments(ctx context.Context, role models.Role, id string) (*DocumentLookup, error) {
	return lookupDocuments(ctx, s.identities, s.documents, s.logger, role, id)
}

func findIdentity(ctx context.Context, repo identityLookupRepository, role models.Role, id string) (*models.Identity, error) {
	identity, err := repo.FindByIDAndRole(ctx, id, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, string(role)+" not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+string(role))
	}
	return identity, nil
}

// lookupDocuments treats a missing bundle as a normal outcome. A reference to
// a bundle that no longer exists is reported as dangling instead of failing.
func lookupDocuments(ctx context.Context, identities identityLookupRepository, documents bundleLookupRepository, logger *zap.Logger, role models.Role, id string) (*DocumentLookup, error) {
	identity, err := findIdentity(ctx, identities, role, id)
	if err != nil {
		return nil, err
	}
	out := &DocumentLookup{Identity: identity}
	if identity.DocumentBundleID == nil || *identity.DocumentBundleID == "" {
		return out, nil
	}

	out.Uploaded = true
	bundle, err := documents.FindByID(ctx, *identity.DocumentBundleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Warn("identity references missing document bundle",
				zap.String("identity_id", identity.ID),
				zap.String("bundle_id", *identity.DocumentBundleID),
			)
			out.Dangling = true
			return out, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	out.Bundle = bundle
	return out, nil
}
