package syncer

import (
	"context"
	"fmt"

	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/models"
)

// pushItem отправляет запись на peer. Payload шифруется, если шифрование
// включено, и уходит фрагментами через transfer engine, когда превышает
// порог. ContentHash всегда считается по plaintext; целостность передачи
// проверяется по тем байтам, которые реально передаются.
func (e *Engine) pushItem(ctx context.Context, item *models.SyncItem, force bool) error {
	if !force {
		remoteMeta, err := e.remote.DownloadMetadata(ctx, item.ID)
		if err == nil &&
			remoteMeta.ContentHash == item.ContentHash &&
			!remoteMeta.UpdatedAt.Before(item.UpdatedAt) {
			e.logger.Debug("Remote item is up to date, skipping push", "item_id", item.ID)
			return nil
		}
	}

	payload, encrypted, err := e.outboundPayload(item)
	if err != nil {
		return err
	}

	remoteItem := item.Clone()
	remoteItem.Encrypted = encrypted

	if e.cfg.Transfer != nil && len(payload) > e.cfg.ChunkThreshold {
		// Крупный payload: метаданные без содержимого, байты - фрагментами
		state, err := e.cfg.Transfer.Upload(ctx, payload, item.ID, e.remote.UploadChunk, nil)
		if err != nil {
			return fmt.Errorf("chunked upload failed: %w", err)
		}

		remoteItem.Content = nil
		remoteItem.Chunked = true
		remoteItem.ChunkCount = state.TotalChunks
		remoteItem.PayloadSize = state.TotalSize
		remoteItem.PayloadHash = state.ContentHash
	} else {
		remoteItem.Content = payload
		remoteItem.Chunked = false
		remoteItem.ChunkCount = 0
		remoteItem.PayloadSize = 0
		remoteItem.PayloadHash = ""
	}

	if err := e.remote.UploadMetadata(ctx, item.ID, remoteItem); err != nil {
		return fmt.Errorf("failed to upload metadata: %w", err)
	}

	e.logger.Debug("Item pushed",
		"item_id", item.ID,
		"chunked", remoteItem.Chunked,
		"encrypted", encrypted)
	return nil
}

// pullItem скачивает запись с peer и сохраняет в локальное хранилище.
func (e *Engine) pullItem(ctx context.Context, meta *models.SyncItem, force bool) error {
	if !force {
		localItem, err := e.local.Get(ctx, meta.ID)
		if err == nil &&
			localItem.ContentHash == meta.ContentHash &&
			!localItem.UpdatedAt.Before(meta.UpdatedAt) {
			e.logger.Debug("Local item is up to date, skipping pull", "item_id", meta.ID)
			return nil
		}
	}

	content, err := e.fetchContent(ctx, meta)
	if err != nil {
		return err
	}

	localItem := meta.Clone()
	localItem.Content = content
	// Transfer-поля описывают удаленное представление, локально не нужны
	localItem.Chunked = false
	localItem.ChunkCount = 0
	localItem.PayloadSize = 0
	localItem.PayloadHash = ""

	if err := e.local.Save(ctx, localItem); err != nil {
		return fmt.Errorf("failed to save pulled item: %w", err)
	}

	e.logger.Debug("Item pulled", "item_id", meta.ID)
	return nil
}

// fetchContent получает plaintext содержимое удаленной записи:
// скачивает payload (фрагментами или inline), расшифровывает при
// необходимости и сверяет хеш plaintext с метаданными.
func (e *Engine) fetchContent(ctx context.Context, meta *models.SyncItem) ([]byte, error) {
	var payload []byte

	if meta.Chunked {
		if e.cfg.Transfer == nil {
			return nil, fmt.Errorf("item %s is chunked but no transfer engine configured", meta.ID)
		}

		data, _, err := e.cfg.Transfer.Download(ctx, meta.ID, meta.ChunkCount, meta.PayloadSize, meta.PayloadHash, e.remote.DownloadChunk, nil)
		if err != nil {
			return nil, fmt.Errorf("chunked download failed: %w", err)
		}
		payload = data
	} else {
		payload = append([]byte(nil), meta.Content...)
	}

	content, err := e.inboundPayload(payload, meta.Encrypted)
	if err != nil {
		return nil, err
	}

	if meta.ContentHash != "" && models.HashContent(content) != meta.ContentHash {
		return nil, fmt.Errorf("content hash mismatch for item %s", meta.ID)
	}

	return content, nil
}

// outboundPayload готовит байты для отправки: envelope при включенном
// шифровании, plaintext иначе. При включенном, но не инициализированном
// шифровании отправка запрещена.
func (e *Engine) outboundPayload(item *models.SyncItem) ([]byte, bool, error) {
	if !e.cfg.EncryptionEnabled {
		return append([]byte(nil), item.Content...), false, nil
	}

	if e.cfg.Encryption == nil || !e.cfg.Encryption.IsReady() {
		return nil, false, fmt.Errorf("encryption is enabled but not initialized")
	}

	env, err := e.cfg.Encryption.Encrypt(item.Content)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	data, err := env.Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return data, true, nil
}

// inboundPayload восстанавливает plaintext из полученных байт.
func (e *Engine) inboundPayload(payload []byte, encrypted bool) ([]byte, error) {
	if !encrypted {
		return payload, nil
	}

	if e.cfg.Encryption == nil || !e.cfg.Encryption.IsReady() {
		return nil, fmt.Errorf("item is encrypted but encryption is not initialized")
	}

	env, err := crypto.UnmarshalEnvelope(payload)
	if err != nil {
		return nil, err
	}

	content, err := e.cfg.Encryption.Decrypt(env)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}

	return content, nil
}

