package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestStorage_MetadataRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	item := models.NewSyncItem(models.ItemTypeConfig, "cfg", []byte("a=1"), models.CRDTKindLWWRegister, "node-a")
	require.NoError(t, s.UploadMetadata(ctx, item.ID, item))

	got, err := s.DownloadMetadata(ctx, item.ID)
	require.NoError(t, err)

	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, item.Content, got.Content)
	require.NotNil(t, got.CRDT)
	assert.Equal(t, item.CRDT.Clock, got.CRDT.Clock)
}

func TestStorage_DownloadMetadata_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.DownloadMetadata(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
}

func TestStorage_ChunkRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UploadChunk(ctx, "item-1", 0, []byte("chunk zero")))
	require.NoError(t, s.UploadChunk(ctx, "item-1", 1, []byte("chunk one")))

	data, err := s.DownloadChunk(ctx, "item-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk one"), data)

	// Перезапись того же chunk идемпотентна
	require.NoError(t, s.UploadChunk(ctx, "item-1", 0, []byte("chunk zero v2")))
	data, err = s.DownloadChunk(ctx, "item-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk zero v2"), data)
}

func TestStorage_DownloadChunk_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.DownloadChunk(context.Background(), "item-1", 99)
	assert.ErrorIs(t, err, storage.ErrChunkNotFound)
}

func TestStorage_List_FilterByType(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cfg := models.NewSyncItem(models.ItemTypeConfig, "cfg", []byte("a"), models.CRDTKindLWWRegister, "n")
	snip := models.NewSyncItem(models.ItemTypeSnippet, "snip", []byte("b"), models.CRDTKindLWWRegister, "n")
	require.NoError(t, s.UploadMetadata(ctx, cfg.ID, cfg))
	require.NoError(t, s.UploadMetadata(ctx, snip.ID, snip))

	configs, err := s.List(ctx, models.ItemTypeConfig)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, cfg.ID, configs[0].ID)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStorage_Delete_RemovesChunks(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	item := models.NewSyncItem(models.ItemTypeBinary, "blob", nil, models.CRDTKindLWWRegister, "n")
	require.NoError(t, s.UploadMetadata(ctx, item.ID, item))
	require.NoError(t, s.UploadChunk(ctx, item.ID, 0, []byte("data")))

	require.NoError(t, s.Delete(ctx, item.ID))

	_, err := s.DownloadMetadata(ctx, item.ID)
	assert.ErrorIs(t, err, storage.ErrItemNotFound)

	_, err = s.DownloadChunk(ctx, item.ID, 0)
	assert.ErrorIs(t, err, storage.ErrChunkNotFound)
}

func TestStorage_Connection(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.TestConnection(ctx))
	require.NoError(t, s.Disconnect(ctx))
}
