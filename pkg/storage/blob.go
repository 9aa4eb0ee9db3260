package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

var (
	// ErrTooLarge is returned when a stream exceeds its size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrInvalidKey is returned for keys escaping the storage root.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Object describes a staged file ready for upload.
type Object struct {
	Key         string
	Path        string
	ContentType string
}

// BlobStore persists verification documents and returns a retrievable URL.
type BlobStore interface {
	Upload(ctx context.Context, obj Object) (string, error)
	Delete(ctx context.Context, url string) error
}

// LocalBlobStore copies staged files into a directory and serves them through
// signed download tokens.
type LocalBlobStore struct {
	files   *LocalStorage
	signer  *SignedURLSigner
	baseURL string
}

// NewLocalBlobStore builds a store whose URLs look like {baseURL}/files/{token}.
func NewLocalBlobStore(files *LocalStorage, signer *SignedURLSigner, baseURL string) *LocalBlobStore {
	return &LocalBlobStore{files: files, signer: signer, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload implements BlobStore.
func (s *LocalBlobStore) Upload(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(obj.Path)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer src.Close() //nolint:errcheck

	if _, err := s.files.SaveStream(obj.Key, src, 0); err != nil {
		return "", err
	}
	token, _, err := s.signer.Generate(obj.Key)
	if err != nil {
		return "", fmt.Errorf("sign document url: %w", err)
	}
	return s.baseURL + "/files/" + token, nil
}

// Delete implements BlobStore. Unknown URLs are ignored.
func (s *LocalBlobStore) Delete(ctx context.Context, url string) error {
	token := path.Base(url)
	key, _, err := s.signer.Parse(token)
	if err != nil {
		return nil
	}
	return s.files.Delete(key)
}

// Resolve maps a download token to an open file.
func (s *LocalBlobStore) Resolve(token string) (io.ReadSeekCloser, string, error) {
	key, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", err
	}
	file, err := s.files.Open(key)
	if err != nil {
		return nil, "", err
	}
	return file, path.Base(key), nil
}
