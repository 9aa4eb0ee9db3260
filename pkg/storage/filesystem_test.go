package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveStreamLimit(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	n, err := store.SaveStream("batch/ok.pdf", strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = store.SaveStream("batch/big.pdf", strings.NewReader("123456"), 5)
	require.ErrorIs(t, err, ErrTooLarge)
	p, _ := store.Path("batch/big.pdf")
	_, statErr := os.Stat(p)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.txt", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = store.Path("/etc/passwd")
	require.ErrorIs(t, err, ErrInvalidKey)
	require.Error(t, store.RemoveAll("."))
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("old/a.pdf", []byte("a"))
	require.NoError(t, err)
	_, err = store.Save("new/b.pdf", []byte("b"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old", "a.pdf"), past, past))

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old/a.pdf"}, deleted)
}

func TestLocalBlobStoreUploadResolveDelete(t *testing.T) {
	staging, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	docs, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = staging.Save("b1/identity_proof.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	stagedPath, _ := staging.Path("b1/identity_proof.pdf")

	blobs := NewLocalBlobStore(docs, NewSignedURLSigner("secret", time.Hour), "http://api.local/")
	url, err := blobs.Upload(context.Background(), Object{Key: "students/s1/identity_proof.pdf", Path: stagedPath})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://api.local/files/"))

	token := strings.TrimPrefix(url, "http://api.local/files/")
	rc, name, err := blobs.Resolve(token)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "%PDF-1.4", string(body))
	assert.Equal(t, "identity_proof.pdf", name)

	require.NoError(t, blobs.Delete(context.Background(), url))
	_, _, err = blobs.Resolve(token)
	assert.Error(t, err)
	assert.NoError(t, blobs.Delete(context.Background(), "https://elsewhere.example/x"))
}
