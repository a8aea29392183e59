package storage

import "errors"

// Common storage errors
var (
	// ErrItemNotFound indicates that the sync item was not found
	ErrItemNotFound = errors.New("sync item not found")

	// ErrChunkNotFound indicates that the payload chunk was not found
	ErrChunkNotFound = errors.New("payload chunk not found")

	// ErrNotConnected indicates that the remote store is not connected
	ErrNotConnected = errors.New("remote store is not connected")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
