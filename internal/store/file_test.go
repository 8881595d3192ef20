package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	return &FileStore{Dir: t.TempDir(), BaseURL: "http://localhost:8080"}
}

func TestFileStorePersistWritesAndResolvesAbsoluteURL(t *testing.T) {
	s := newTestFileStore(t)
	data := []byte("\x89PNG\r\n\x1a\nfake")

	url, err := s.Persist(context.Background(), Params{Data: data, ContentType: "image/png"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/generated/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	name := url[strings.LastIndex(url, "/")+1:]
	written, err := os.ReadFile(filepath.Join(s.Dir, name))
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestFileStoreNeverOverwrites(t *testing.T) {
	s := newTestFileStore(t)

	first, err := s.Persist(context.Background(), Params{Data: []byte("one"), ContentType: "image/png"})
	require.NoError(t, err)
	second, err := s.Persist(context.Background(), Params{Data: []byte("two"), ContentType: "image/png"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "every persist gets a fresh name")

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileStoreExtensionFollowsContentType(t *testing.T) {
	s := newTestFileStore(t)

	url, err := s.Persist(context.Background(), Params{Data: []byte("x"), ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".jpg"), url)
}

func TestFileStoreOwnership(t *testing.T) {
	s := newTestFileStore(t)

	assert.True(t, s.Owns("http://localhost:8080/generated/abc.png"))
	assert.False(t, s.Owns("https://replicate.delivery/pbxt/abc.png"))
	assert.False(t, s.Owns("http://localhost:8080/other/abc.png"))
}

func TestFileStoreRemove(t *testing.T) {
	s := newTestFileStore(t)

	url, err := s.Persist(context.Background(), Params{Data: []byte("x"), ContentType: "image/png"})
	require.NoError(t, err)

	require.NoError(t, s.Remove(context.Background(), url))
	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Removing an already-gone artifact is not an error.
	assert.NoError(t, s.Remove(context.Background(), url))
}

func TestFileStoreRemoveRefusesTraversal(t *testing.T) {
	s := newTestFileStore(t)
	assert.Error(t, s.Remove(context.Background(), "http://localhost:8080/generated/.."))
}
