package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/storage"
)

// Connect проверяет доступность БД. Соединение открывается в New,
// поэтому здесь только ping.
func (s *Storage) Connect(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect для файлового peer store - no-op: соединение живет
// до Close.
func (s *Storage) Disconnect(_ context.Context) error {
	return nil
}

// TestConnection проверяет доступность БД.
func (s *Storage) TestConnection(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// UploadChunk сохраняет chunk payload (идемпотентная перезапись).
func (s *Storage) UploadChunk(ctx context.Context, itemID string, chunkIndex int, data []byte) error {
	query := `
		INSERT INTO chunks (item_id, chunk_index, data)
		VALUES (?, ?, ?)
		ON CONFLICT (item_id, chunk_index) DO UPDATE SET data = excluded.data`

	if _, err := s.db.ExecContext(ctx, query, itemID, chunkIndex, data); err != nil {
		return fmt.Errorf("failed to upload chunk %d of %s: %w", chunkIndex, itemID, err)
	}
	return nil
}

// DownloadChunk возвращает chunk payload.
func (s *Storage) DownloadChunk(ctx context.Context, itemID string, chunkIndex int) ([]byte, error) {
	query := `SELECT data FROM chunks WHERE item_id = ? AND chunk_index = ?`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, itemID, chunkIndex).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download chunk %d of %s: %w", chunkIndex, itemID, err)
	}
	return data, nil
}

// UploadMetadata сохраняет metadata запись (идемпотентная перезапись).
func (s *Storage) UploadMetadata(ctx context.Context, itemID string, item *models.SyncItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	query := `
		INSERT INTO items (id, item_type, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			item_type = excluded.item_type,
			payload = excluded.payload,
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, itemID, item.Type, string(payload), item.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to upload metadata for %s: %w", itemID, err)
	}
	return nil
}

// DownloadMetadata возвращает metadata запись.
func (s *Storage) DownloadMetadata(ctx context.Context, itemID string) (*models.SyncItem, error) {
	query := `SELECT payload FROM items WHERE id = ?`

	var payload string
	err := s.db.QueryRowContext(ctx, query, itemID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download metadata for %s: %w", itemID, err)
	}

	item := &models.SyncItem{}
	if err := json.Unmarshal([]byte(payload), item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return item, nil
}

// List возвращает metadata всех записей заданного типа.
func (s *Storage) List(ctx context.Context, itemType string) ([]*models.SyncItem, error) {
	query := `SELECT payload FROM items`
	args := []any{}
	if itemType != "" {
		query += ` WHERE item_type = ?`
		args = append(args, itemType)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*models.SyncItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		item := &models.SyncItem{}
		if err := json.Unmarshal([]byte(payload), item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// Delete удаляет запись вместе со всеми chunks.
func (s *Storage) Delete(ctx context.Context, itemID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", itemID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", itemID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}
