package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

func multipartRequest(t *testing.T, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for name, content := range files {
		part, err := writer.CreateFormFile(name, name+".pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func studentFields() map[string]string {
	return map[string]string{
		"phone":             "9876543210",
		"address":           "12 MG Road",
		"highest_education": "higher-secondary",
		"secondary_school":  "City School",
		"higher_school":     "City College",
		"secondary_marks":   "88.5",
		"higher_marks":      "91",
	}
}

func TestIdentityHandlerSubmitDocumentsBuildsUploads(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sub := &submitterMock{bundle: &models.DocumentBundle{ID: "bnd-1"}}
	h := NewIdentityHandler(&identityServiceMock{}, sub, models.RoleStudent, 0)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, "/student/verification/stu-1", studentFields(), map[string]string{
		models.DocIdentityProof:      "%PDF-id",
		models.DocSecondaryMarksheet: "%PDF-10",
		models.DocHigherMarksheet:    "%PDF-12",
		"unrelated":                  "ignored",
	})
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	h.SubmitDocuments(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, sub.called)
	assert.Equal(t, models.RoleStudent, sub.role)
	assert.Equal(t, "stu-1", sub.ownerID)
	assert.Equal(t, "9876543210", sub.req.Phone)
	require.NotNil(t, sub.req.SecondaryMarks)
	assert.InDelta(t, 88.5, *sub.req.SecondaryMarks, 0.001)
	assert.Len(t, sub.files, 3)
	assert.Equal(t, "identity_proof.pdf:%PDF-id", sub.files[models.DocIdentityProof])
	assert.NotContains(t, sub.files, "unrelated")
}

func TestIdentityHandlerSubmitDocumentsRejectsOversizedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sub := &submitterMock{}
	h := NewIdentityHandler(&identityServiceMock{}, sub, models.RoleStudent, 64)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, "/student/verification/stu-1", studentFields(), map[string]string{
		models.DocIdentityProof: string(bytes.Repeat([]byte("x"), 1024)),
	})
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	h.SubmitDocuments(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, sub.called)
}

func TestIdentityHandlerSubmitDocumentsRequiresMultipart(t *testing.T) {
	h := NewIdentityHandler(&identityServiceMock{}, &submitterMock{}, models.RoleTeacher, 0)

	c, w := newJSONContext(http.MethodPost, "/teacher/verification/tea-1", `{"phone":"9876543210"}`)
	h.SubmitDocuments(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdentityHandlerSubmitDocumentsPropagatesUploadFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sub := &submitterMock{err: appErrors.Clone(appErrors.ErrUploadFailed, "document upload failed")}
	h := NewIdentityHandler(&identityServiceMock{}, sub, models.RoleStudent, 0)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, "/student/verification/stu-1", studentFields(), map[string]string{
		models.DocIdentityProof: "%PDF-id",
	})
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	h.SubmitDocuments(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestIdentityHandlerDocuments(t *testing.T) {
	identity := &models.Identity{ID: "stu-1", Role: models.RoleStudent}

	t.Run("not uploaded", func(t *testing.T) {
		h := NewIdentityHandler(&identityServiceMock{lookup: &service.DocumentLookup{Identity: identity}}, &submitterMock{}, models.RoleStudent, 0)
		c, w := newJSONContext(http.MethodGet, "/student/stu-1/documents", "")
		h.Documents(c)

		require.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope(t, w)
		assert.Equal(t, "documents not uploaded", env.Message)
		data := env.Data.(map[string]interface{})
		assert.Nil(t, data["documents"])
		assert.NotContains(t, data, "documents_missing")
	})

	t.Run("dangling bundle", func(t *testing.T) {
		lookup := &service.DocumentLookup{Identity: identity, Dangling: true, Uploaded: true}
		h := NewIdentityHandler(&identityServiceMock{lookup: lookup}, &submitterMock{}, models.RoleStudent, 0)
		c, w := newJSONContext(http.MethodGet, "/student/stu-1/documents", "")
		h.Documents(c)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeEnvelope(t, w).Data.(map[string]interface{})
		assert.Nil(t, data["documents"])
		assert.Equal(t, true, data["documents_missing"])
	})
}

func TestIdentityHandlerProfileNotFound(t *testing.T) {
	h := NewIdentityHandler(&identityServiceMock{}, &submitterMock{}, models.RoleStudent, 0)

	c, w := newJSONContext(http.MethodGet, "/student/stu-9", "")
	c.Params = gin.Params{{Key: "id", Value: "stu-9"}}
	h.Profile(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
