package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/storage"
)

var (
	// BoltDB bucket names
	bucketItems = []byte("items")
)

// Storage represents BoltDB-backed LocalStore implementation
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketItems); err != nil {
			return fmt.Errorf("failed to create items bucket: %w", err)
		}
		return nil
	})
}

// Get возвращает запись по ID
func (s *Storage) Get(_ context.Context, id string) (*models.SyncItem, error) {
	var item *models.SyncItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketItems).Get([]byte(id))
		if data == nil {
			return storage.ErrItemNotFound
		}

		item = &models.SyncItem{}
		if err := json.Unmarshal(data, item); err != nil {
			return fmt.Errorf("failed to unmarshal item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetAll возвращает все записи заданного типа (пустой тип - все записи)
func (s *Storage) GetAll(_ context.Context, itemType string) ([]*models.SyncItem, error) {
	var items []*models.SyncItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(_, data []byte) error {
			item := &models.SyncItem{}
			if err := json.Unmarshal(data, item); err != nil {
				return fmt.Errorf("failed to unmarshal item: %w", err)
			}
			if itemType == "" || item.Type == itemType {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Save сохраняет запись (идемпотентная перезапись)
func (s *Storage) Save(_ context.Context, item *models.SyncItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketItems).Put([]byte(item.ID), data); err != nil {
			return fmt.Errorf("failed to save item: %w", err)
		}
		return nil
	})
}

// Delete удаляет запись. Удаление отсутствующей записи не является ошибкой.
func (s *Storage) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketItems).Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		return nil
	})
}

// List возвращает ID всех записей заданного типа
func (s *Storage) List(ctx context.Context, itemType string) ([]string, error) {
	items, err := s.GetAll(ctx, itemType)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// Has проверяет существование записи
func (s *Storage) Has(_ context.Context, id string) (bool, error) {
	var exists bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketItems).Get([]byte(id)) != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}
