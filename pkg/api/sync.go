package api

import (
	"encoding/json"
	"time"
)

// CRDTSnapshot представляет CRDT метаданные записи на проводе
type CRDTSnapshot struct {
	Clock map[string]int64 `json:"clock"`
	Kind  string           `json:"kind"`
	State json.RawMessage  `json:"state,omitempty"`
}

// Item представляет одну синхронизируемую запись на проводе
type Item struct {
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CRDT        *CRDTSnapshot `json:"crdt,omitempty"`
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Name        string        `json:"name"`
	ContentHash string        `json:"content_hash"`
	ModifiedBy  string        `json:"modified_by"`
	PayloadHash string        `json:"payload_hash,omitempty"`
	Content     []byte        `json:"content,omitempty"`
	Version     int64         `json:"version"`
	PayloadSize int64         `json:"payload_size,omitempty"`
	ChunkCount  int           `json:"chunk_count,omitempty"`
	Chunked     bool          `json:"chunked,omitempty"`
	Encrypted   bool          `json:"encrypted"`
}

// ListResponse представляет ответ пира на запрос списка записей
type ListResponse struct {
	Items []Item `json:"items"`
}

// ErrorResponse представляет ответ пира с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}
