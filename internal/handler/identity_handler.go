package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

// multipartMemory is how much of a submission gin keeps in memory before
// spilling parts to temporary files.
const multipartMemory = 8 << 20

type identityReader interface {
	GetProfile(ctx context.Context, role models.Role, id string) (*models.Identity, error)
	GetDocuments(ctx context.Context, role models.Role, id string) (*service.DocumentLookup, error)
}

type documentSubmitter interface {
	Submit(ctx context.Context, role models.Role, id string, req dto.SubmitDocumentsRequest, files map[string]service.DocumentUpload) (*models.DocumentBundle, error)
}

// IdentityHandler serves self-service routes for students and teachers.
type IdentityHandler struct {
	identities identityReader
	documents  documentSubmitter
	role       models.Role
	maxBody    int64
}

// NewIdentityHandler binds the handler to role. maxBody caps a whole
// multipart submission; zero disables the cap.
func NewIdentityHandler(identities identityReader, documents documentSubmitter, role models.Role, maxBody int64) *IdentityHandler {
	return &IdentityHandler{identities: identities, documents: documents, role: role, maxBody: maxBody}
}

// Profile godoc
// @Summary Get own profile
// @Tags Identity
// @Produce json
// @Param role path string true "student or teacher"
// @Param id path string true "Identity ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /{role}/{id} [get]
func (h *IdentityHandler) Profile(c *gin.Context) {
	identity, err := h.identities.GetProfile(c.Request.Context(), h.role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, identity, nil)
}

// Documents godoc
// @Summary Get own verification documents
// @Description Returns the identity with its bundle. documents is null when nothing was uploaded.
// @Tags Identity
// @Produce json
// @Param role path string true "student or teacher"
// @Param id path string true "Identity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /{role}/{id}/documents [get]
func (h *IdentityHandler) Documents(c *gin.Context) {
	lookup, err := h.identities.GetDocuments(c.Request.Context(), h.role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := gin.H{
		"identity":  lookup.Identity,
		"documents": lookup.Bundle,
	}
	if lookup.Dangling {
		payload["documents_missing"] = true
	}
	response.Message(c, http.StatusOK, lookup.Message(), payload)
}

// SubmitDocuments godoc
// @Summary Submit verification documents
// @Description Multipart form with profile fields and one file part per required document.
// @Tags Identity
// @Accept mpfd
// @Produce json
// @Param role path string true "student or teacher"
// @Param id path string true "Identity ID"
// @Param identity_proof formData file true "Identity proof"
// @Param secondary_marksheet formData file true "Secondary marksheet"
// @Param higher_marksheet formData file true "Higher secondary marksheet"
// @Param ug_certificate formData file false "UG certificate (teachers)"
// @Param pg_certificate formData file false "PG certificate (teachers)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Security BearerAuth
// @Router /{role}/verification/{id} [post]
func (h *IdentityHandler) SubmitDocuments(c *gin.Context) {
	if h.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, "submission exceeds the allowed size"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart form required"))
		return
	}
	defer c.Request.MultipartForm.RemoveAll() //nolint:errcheck

	var req dto.SubmitDocumentsRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission fields"))
		return
	}

	files := make(map[string]service.DocumentUpload)
	for _, name := range models.RequiredDocuments(h.role) {
		header, err := c.FormFile(name)
		if err != nil {
			continue
		}
		src, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open "+name))
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(src)
		files[name] = service.DocumentUpload{Filename: header.Filename, Size: header.Size, Content: src}
	}

	bundle, err := h.documents.Submit(c.Request.Context(), h.role, c.Param("id"), req, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "documents submitted for review", bundle)
}
