package httpremote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/storage"
	"github.com/iudanet/confsync/pkg/api"
)

// fakePeer эмулирует HTTP API пира в памяти
type fakePeer struct {
	items  map[string]api.Item
	chunks map[string][]byte
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		items:  make(map[string]api.Item),
		chunks: make(map[string][]byte),
	}
}

func (p *fakePeer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		itemType := r.URL.Query().Get("type")
		resp := api.ListResponse{Items: []api.Item{}}
		for _, item := range p.items {
			if itemType == "" || item.Type == itemType {
				resp.Items = append(resp.Items, item)
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/api/v1/items/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/items/")
		segs := strings.Split(rest, "/")

		switch {
		case len(segs) == 1: // /api/v1/items/{id}
			id := segs[0]
			switch r.Method {
			case http.MethodPut:
				var item api.Item
				if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				p.items[id] = item
			case http.MethodGet:
				item, ok := p.items[id]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				_ = json.NewEncoder(w).Encode(item)
			case http.MethodDelete:
				delete(p.items, id)
				for key := range p.chunks {
					if strings.HasPrefix(key, id+"/") {
						delete(p.chunks, key)
					}
				}
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case len(segs) == 3 && segs[1] == "chunks": // /api/v1/items/{id}/chunks/{n}
			key := segs[0] + "/" + segs[2]
			switch r.Method {
			case http.MethodPut:
				data, err := io.ReadAll(r.Body)
				if err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				p.chunks[key] = data
			case http.MethodGet:
				data, ok := p.chunks[key]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				_, _ = w.Write(data)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	return mux
}

func newTestStore(t *testing.T) (*Store, *fakePeer) {
	t.Helper()

	peer := newFakePeer()
	server := httptest.NewServer(peer.handler())
	t.Cleanup(server.Close)

	store := New(Config{
		BaseURL:  server.URL,
		Timeout:  5 * time.Second,
		RetryMax: 1,
	})
	return store, peer
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Connect(ctx))

	item := models.NewSyncItem(models.ItemTypeConfig, "cfg", []byte("a=1"), models.CRDTKindLWWRegister, "node-a")
	require.NoError(t, store.UploadMetadata(ctx, item.ID, item))

	got, err := store.DownloadMetadata(ctx, item.ID)
	require.NoError(t, err)

	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, item.Content, got.Content)
	require.NotNil(t, got.CRDT)
	assert.Equal(t, item.CRDT.Kind, got.CRDT.Kind)
	assert.Equal(t, item.CRDT.Clock, got.CRDT.Clock)
}

func TestStore_DownloadMetadata_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.DownloadMetadata(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
}

func TestStore_ChunkRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UploadChunk(ctx, "item-1", 3, []byte("chunk data")))

	data, err := store.DownloadChunk(ctx, "item-1", 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk data"), data)

	_, err = store.DownloadChunk(ctx, "item-1", 4)
	assert.ErrorIs(t, err, storage.ErrChunkNotFound)
}

func TestStore_ListAndDelete(t *testing.T) {
	store, peer := newTestStore(t)
	ctx := context.Background()

	cfg := models.NewSyncItem(models.ItemTypeConfig, "cfg", []byte("a"), models.CRDTKindLWWRegister, "n")
	snip := models.NewSyncItem(models.ItemTypeSnippet, "snip", []byte("b"), models.CRDTKindLWWRegister, "n")
	require.NoError(t, store.UploadMetadata(ctx, cfg.ID, cfg))
	require.NoError(t, store.UploadMetadata(ctx, snip.ID, snip))
	require.NoError(t, store.UploadChunk(ctx, cfg.ID, 0, []byte("x")))

	configs, err := store.List(ctx, models.ItemTypeConfig)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, cfg.ID, configs[0].ID)

	require.NoError(t, store.Delete(ctx, cfg.ID))
	assert.Empty(t, peer.chunks, "peer drops chunks with the item")

	remaining, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, snip.ID, remaining[0].ID)
}

func TestStore_ChunkIndexInPath(t *testing.T) {
	store, peer := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UploadChunk(ctx, "item-1", 12, []byte("c")))

	_, ok := peer.chunks["item-1/"+strconv.Itoa(12)]
	assert.True(t, ok)
}
