package storage

import (
	"context"

	"github.com/iudanet/confsync/internal/models"
)

// LocalStore defines the interface for the local item store.
// Implementations must be idempotent under repeated Save of the same item.
type LocalStore interface {
	// Get retrieves an item by ID.
	// Returns ErrItemNotFound if the item doesn't exist.
	Get(ctx context.Context, id string) (*models.SyncItem, error)

	// GetAll returns all items of the given type. Empty type means all types.
	GetAll(ctx context.Context, itemType string) ([]*models.SyncItem, error)

	// Save stores or overwrites an item.
	Save(ctx context.Context, item *models.SyncItem) error

	// Delete removes an item by ID. Deleting a missing item is not an error.
	Delete(ctx context.Context, id string) error

	// List returns IDs of all items of the given type. Empty type means all.
	List(ctx context.Context, itemType string) ([]string, error)

	// Has reports whether an item with the given ID exists.
	Has(ctx context.Context, id string) (bool, error)
}

// RemoteStore defines the interface for a pluggable remote peer store.
// The sync and transfer engines never speak to the network themselves;
// all remote I/O goes through an implementation of this interface.
type RemoteStore interface {
	// Connect establishes the connection to the backend.
	Connect(ctx context.Context) error

	// Disconnect releases the connection.
	Disconnect(ctx context.Context) error

	// TestConnection verifies the backend is reachable.
	TestConnection(ctx context.Context) error

	// UploadChunk stores one chunk of an item's payload.
	UploadChunk(ctx context.Context, itemID string, chunkIndex int, data []byte) error

	// DownloadChunk retrieves one chunk of an item's payload.
	// Returns ErrChunkNotFound if the chunk doesn't exist.
	DownloadChunk(ctx context.Context, itemID string, chunkIndex int) ([]byte, error)

	// UploadMetadata stores an item's metadata record.
	UploadMetadata(ctx context.Context, itemID string, item *models.SyncItem) error

	// DownloadMetadata retrieves an item's metadata record.
	// Returns ErrItemNotFound if the item doesn't exist.
	DownloadMetadata(ctx context.Context, itemID string) (*models.SyncItem, error)

	// List returns metadata of all remote items of the given type.
	// Empty type means all types.
	List(ctx context.Context, itemType string) ([]*models.SyncItem, error)

	// Delete removes an item and all its chunks.
	Delete(ctx context.Context, itemID string) error
}
