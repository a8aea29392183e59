// Package memory provides in-memory implementations of the storage
// interfaces. Used in tests and as an ephemeral store when persistence
// is not required.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/storage"
)

// Local is an in-memory LocalStore.
type Local struct {
	items map[string]*models.SyncItem
	mu    sync.RWMutex
}

// NewLocal creates an empty in-memory local store.
func NewLocal() *Local {
	return &Local{items: make(map[string]*models.SyncItem)}
}

func (l *Local) Get(_ context.Context, id string) (*models.SyncItem, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	item, ok := l.items[id]
	if !ok {
		return nil, storage.ErrItemNotFound
	}
	return item.Clone(), nil
}

func (l *Local) GetAll(_ context.Context, itemType string) ([]*models.SyncItem, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.SyncItem, 0, len(l.items))
	for _, item := range l.items {
		if itemType == "" || item.Type == itemType {
			result = append(result, item.Clone())
		}
	}
	return result, nil
}

func (l *Local) Save(_ context.Context, item *models.SyncItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items[item.ID] = item.Clone()
	return nil
}

func (l *Local) Delete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.items, id)
	return nil
}

func (l *Local) List(_ context.Context, itemType string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.items))
	for id, item := range l.items {
		if itemType == "" || item.Type == itemType {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (l *Local) Has(_ context.Context, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.items[id]
	return ok, nil
}

// Remote is an in-memory RemoteStore.
type Remote struct {
	items     map[string]*models.SyncItem
	chunks    map[string][]byte
	connected bool
	mu        sync.RWMutex
}

// NewRemote creates an empty in-memory remote store.
func NewRemote() *Remote {
	return &Remote{
		items:  make(map[string]*models.SyncItem),
		chunks: make(map[string][]byte),
	}
}

func chunkKey(itemID string, chunkIndex int) string {
	return fmt.Sprintf("%s/%d", itemID, chunkIndex)
}

func (r *Remote) Connect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connected = true
	return nil
}

func (r *Remote) Disconnect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connected = false
	return nil
}

func (r *Remote) TestConnection(_ context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.connected {
		return storage.ErrNotConnected
	}
	return nil
}

func (r *Remote) UploadChunk(_ context.Context, itemID string, chunkIndex int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chunks[chunkKey(itemID, chunkIndex)] = append([]byte(nil), data...)
	return nil
}

func (r *Remote) DownloadChunk(_ context.Context, itemID string, chunkIndex int) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.chunks[chunkKey(itemID, chunkIndex)]
	if !ok {
		return nil, storage.ErrChunkNotFound
	}
	return append([]byte(nil), data...), nil
}

func (r *Remote) UploadMetadata(_ context.Context, itemID string, item *models.SyncItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[itemID] = item.Clone()
	return nil
}

func (r *Remote) DownloadMetadata(_ context.Context, itemID string) (*models.SyncItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemID]
	if !ok {
		return nil, storage.ErrItemNotFound
	}
	return item.Clone(), nil
}

func (r *Remote) List(_ context.Context, itemType string) ([]*models.SyncItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.SyncItem, 0, len(r.items))
	for _, item := range r.items {
		if itemType == "" || item.Type == itemType {
			result = append(result, item.Clone())
		}
	}
	return result, nil
}

func (r *Remote) Delete(_ context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, itemID)
	for key := range r.chunks {
		if len(key) > len(itemID) && key[:len(itemID)] == itemID && key[len(itemID)] == '/' {
			delete(r.chunks, key)
		}
	}
	return nil
}
