package httpremote

import (
	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/pkg/api"
)

// toAPIItem конвертирует внутреннюю модель в проводной формат
func toAPIItem(item *models.SyncItem) *api.Item {
	apiItem := &api.Item{
		ID:          item.ID,
		Type:        item.Type,
		Name:        item.Name,
		Content:     item.Content,
		ContentHash: item.ContentHash,
		Version:     item.Version,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
		ModifiedBy:  item.ModifiedBy,
		Encrypted:   item.Encrypted,
		Chunked:     item.Chunked,
		ChunkCount:  item.ChunkCount,
		PayloadSize: item.PayloadSize,
		PayloadHash: item.PayloadHash,
	}
	if item.CRDT != nil {
		apiItem.CRDT = &api.CRDTSnapshot{
			Kind:  string(item.CRDT.Kind),
			State: item.CRDT.State,
			Clock: map[string]int64(item.CRDT.Clock),
		}
	}
	return apiItem
}

// fromAPIItem конвертирует проводной формат во внутреннюю модель
func fromAPIItem(apiItem *api.Item) *models.SyncItem {
	item := &models.SyncItem{
		ID:          apiItem.ID,
		Type:        apiItem.Type,
		Name:        apiItem.Name,
		Content:     apiItem.Content,
		ContentHash: apiItem.ContentHash,
		Version:     apiItem.Version,
		CreatedAt:   apiItem.CreatedAt,
		UpdatedAt:   apiItem.UpdatedAt,
		ModifiedBy:  apiItem.ModifiedBy,
		Encrypted:   apiItem.Encrypted,
		Chunked:     apiItem.Chunked,
		ChunkCount:  apiItem.ChunkCount,
		PayloadSize: apiItem.PayloadSize,
		PayloadHash: apiItem.PayloadHash,
	}
	if apiItem.CRDT != nil {
		clock := crdt.VectorClock(apiItem.CRDT.Clock)
		if clock == nil {
			clock = crdt.NewVectorClock()
		}
		item.CRDT = &models.CRDTSnapshot{
			Kind:  models.CRDTKind(apiItem.CRDT.Kind),
			State: apiItem.CRDT.State,
			Clock: clock,
		}
	}
	return item
}
