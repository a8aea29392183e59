package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/confsync/internal/crdt"
)

// ItemType константы для типов синхронизируемых записей
const (
	ItemTypeConfig     = "config"     // конфигурационный файл
	ItemTypeSnippet    = "snippet"    // текстовый фрагмент
	ItemTypeBinary     = "binary"     // бинарные данные
	ItemTypePreference = "preference" // пользовательская настройка
)

// CRDTKind определяет, какой CRDT управляет слиянием записи.
// Закрытое множество: sync engine делает исчерпывающий switch по нему.
type CRDTKind string

const (
	CRDTKindLWWRegister CRDTKind = "lww-register"
	CRDTKindGCounter    CRDTKind = "g-counter"
	CRDTKindORSet       CRDTKind = "or-set"
)

// CRDTSnapshot привязывает к записи тип CRDT, его сериализованное
// состояние и векторные часы для определения причинного порядка.
type CRDTSnapshot struct {
	Clock crdt.VectorClock `json:"clock"`
	Kind  CRDTKind         `json:"kind"`
	State json.RawMessage  `json:"state"`
}

// Clone создает глубокую копию снапшота.
func (s *CRDTSnapshot) Clone() *CRDTSnapshot {
	if s == nil {
		return nil
	}
	return &CRDTSnapshot{
		Clock: s.Clock.Clone(),
		Kind:  s.Kind,
		State: append(json.RawMessage(nil), s.State...),
	}
}

// SyncItem представляет синхронизируемую запись.
// Создается через NewSyncItem, мутируется только через локальное хранилище
// владеющего узла, сливается (никогда не правится вручную) при
// реконсиляции с пиром.
type SyncItem struct {
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

// NewSyncItem создает новую запись с UUID, хешем содержимого и
// инициализированным CRDT снапшотом.
func NewSyncItem(itemType, name string, content []byte, kind CRDTKind, nodeID string) *SyncItem {
	now := time.Now().UTC()
	clock := crdt.NewVectorClock()
	clock.Increment(nodeID)

	return &SyncItem{
		ID:          uuid.New().String(),
		Type:        itemType,
		Name:        name,
		Content:     append([]byte(nil), content...),
		ContentHash: HashContent(content),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ModifiedBy:  nodeID,
		CRDT: &CRDTSnapshot{
			Kind:  kind,
			Clock: clock,
		},
	}
}

// HashContent вычисляет SHA-256 хеш содержимого в hex.
// ContentHash записи всегда считается по plaintext содержимому,
// независимо от того, шифруется ли payload при передаче.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Touch фиксирует локальное изменение: обновляет содержимое, хеш,
// версию, часы и отметку времени.
func (i *SyncItem) Touch(content []byte, nodeID string) {
	i.Content = append([]byte(nil), content...)
	i.ContentHash = HashContent(content)
	i.Version++
	i.UpdatedAt = time.Now().UTC()
	i.ModifiedBy = nodeID
	if i.CRDT != nil {
		if i.CRDT.Clock == nil {
			i.CRDT.Clock = crdt.NewVectorClock()
		}
		i.CRDT.Clock.Increment(nodeID)
	}
}

// Clone создает глубокую копию записи.
func (i *SyncItem) Clone() *SyncItem {
	clone := *i
	clone.Content = append([]byte(nil), i.Content...)
	clone.CRDT = i.CRDT.Clone()
	return &clone
}
