package objectstore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchive_StoresHTMLUnderConversationURLTimestampKey(t *testing.T) {
	store := NewMemoryStore()
	archiver := NewArchiver(store)
	fetchedAt := time.Unix(1700000000, 0).UTC()

	err := archiver.Archive(context.Background(), "42", "https://example.com/page", []byte("<html>hi</html>"), fetchedAt)
	require.NoError(t, err)

	key := rawKey("42", "https://example.com/page", fetchedAt)
	assert.Contains(t, key, "raw/42/")
	assert.Contains(t, key, "/1700000000.html")

	rc, attrs, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<html>hi</html>", string(data))
	assert.Equal(t, "text/html; charset=utf-8", attrs.ContentType)
}

func TestArchive_DifferentURLsProduceDifferentKeys(t *testing.T) {
	fetchedAt := time.Unix(1700000000, 0).UTC()
	keyA := rawKey("1", "https://example.com/a", fetchedAt)
	keyB := rawKey("1", "https://example.com/b", fetchedAt)
	assert.NotEqual(t, keyA, keyB)
}

func TestMemoryStore_GetMissingKeyReturnsErrNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, _, err := store.Get(context.Background(), "raw/missing/key.html")
	assert.ErrorIs(t, err, ErrNotFound)
}
