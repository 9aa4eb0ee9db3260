package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestFromErrorKeepsTyped(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Clone(ErrConflict, "phone already registered"))
	err := FromError(wrapped)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, "phone already registered", err.Message)
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrNotFound, "course not found")
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.Equal(t, "course not found", clone.Message)
}

func TestIsComparesCodes(t *testing.T) {
	assert.True(t, Is(Clone(ErrUploadFailed, "aadhaar upload failed"), ErrUploadFailed))
	assert.False(t, Is(ErrConflict, ErrNotFound))
	assert.False(t, Is(nil, ErrNotFound))
}

func TestIsServerError(t *testing.T) {
	assert.True(t, IsServerError(ErrUploadFailed))
	assert.True(t, IsServerError(fmt.Errorf("boom")))
	assert.False(t, IsServerError(ErrValidation))
}
