// Package httpremote implements RemoteStore over a peer's HTTP item API.
// Транзиентные сетевые ошибки ретраятся на уровне транспорта
// (retryablehttp), поверх них transfer engine ведет собственный
// поштучный retry.
package httpremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/storage"
	"github.com/iudanet/confsync/pkg/api"
)

// Config параметры HTTP remote adapter.
type Config struct {
	BaseURL string
	// Token - опциональный bearer token, передается как есть.
	// Аутентификация - забота пира, не этого адаптера.
	Token        string
	Timeout      time.Duration
	RetryWaitMin time.Duration
	RetryMax     int
}

// Store implements storage.RemoteStore over a peer HTTP endpoint.
type Store struct {
	client  *retryablehttp.Client
	baseURL string
	token   string
}

// New creates an HTTP remote store.
func New(cfg Config) *Store {
	client := retryablehttp.NewClient()
	client.Logger = nil
	if cfg.RetryMax > 0 {
		client.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}

	return &Store{
		client:  client,
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

// do выполняет запрос и декодирует JSON ответ в result (если не nil).
func (s *Store) do(ctx context.Context, method, path string, body []byte, result any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return storage.ErrItemNotFound
	}
	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("peer returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// doRaw выполняет запрос с сырым телом и возвращает сырой ответ.
func (s *Store) doRaw(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, storage.ErrChunkNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// Connect проверяет доступность пира.
func (s *Store) Connect(ctx context.Context) error {
	return s.TestConnection(ctx)
}

// Disconnect закрывает idle соединения.
func (s *Store) Disconnect(_ context.Context) error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}

// TestConnection проверяет health endpoint пира.
func (s *Store) TestConnection(ctx context.Context) error {
	if err := s.do(ctx, http.MethodGet, "/api/v1/health", nil, nil); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// UploadChunk отправляет один chunk payload.
func (s *Store) UploadChunk(ctx context.Context, itemID string, chunkIndex int, data []byte) error {
	path := fmt.Sprintf("/api/v1/items/%s/chunks/%d", url.PathEscape(itemID), chunkIndex)
	if _, err := s.doRaw(ctx, http.MethodPut, path, data); err != nil {
		return fmt.Errorf("failed to upload chunk %d of %s: %w", chunkIndex, itemID, err)
	}
	return nil
}

// DownloadChunk получает один chunk payload.
func (s *Store) DownloadChunk(ctx context.Context, itemID string, chunkIndex int) ([]byte, error) {
	path := fmt.Sprintf("/api/v1/items/%s/chunks/%d", url.PathEscape(itemID), chunkIndex)
	return s.doRaw(ctx, http.MethodGet, path, nil)
}

// UploadMetadata отправляет metadata запись.
func (s *Store) UploadMetadata(ctx context.Context, itemID string, item *models.SyncItem) error {
	body, err := json.Marshal(toAPIItem(item))
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	path := "/api/v1/items/" + url.PathEscape(itemID)
	if err := s.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("failed to upload metadata for %s: %w", itemID, err)
	}
	return nil
}

// DownloadMetadata получает metadata запись.
func (s *Store) DownloadMetadata(ctx context.Context, itemID string) (*models.SyncItem, error) {
	var apiItem api.Item
	path := "/api/v1/items/" + url.PathEscape(itemID)
	if err := s.do(ctx, http.MethodGet, path, nil, &apiItem); err != nil {
		return nil, err
	}
	return fromAPIItem(&apiItem), nil
}

// List возвращает metadata всех записей заданного типа.
func (s *Store) List(ctx context.Context, itemType string) ([]*models.SyncItem, error) {
	path := "/api/v1/items"
	if itemType != "" {
		path += "?type=" + url.QueryEscape(itemType)
	}

	var resp api.ListResponse
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	items := make([]*models.SyncItem, 0, len(resp.Items))
	for i := range resp.Items {
		items = append(items, fromAPIItem(&resp.Items[i]))
	}
	return items, nil
}

// Delete удаляет запись вместе с chunks на стороне пира.
func (s *Store) Delete(ctx context.Context, itemID string) error {
	path := "/api/v1/items/" + url.PathEscape(itemID)
	if err := s.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete %s: %w", itemID, err)
	}
	return nil
}
