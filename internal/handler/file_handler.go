package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type fileResolver interface {
	Resolve(token string) (io.ReadSeekCloser, string, error)
}

// FileHandler serves documents kept by the local blob store.
type FileHandler struct {
	files fileResolver
}

// NewFileHandler constructs the handler.
func NewFileHandler(files fileResolver) *FileHandler {
	return &FileHandler{files: files}
}

// Download godoc
// @Summary Download a stored document
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	file, name, err := h.files.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "file not found or link expired"))
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, name, time.Time{}, file)
}
