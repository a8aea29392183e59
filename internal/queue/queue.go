// Package queue реализует очередь офлайн-операций: изменения, сделанные
// без связи с peer, накапливаются и воспроизводятся при восстановлении
// сети. Опционально очередь переживает рестарт процесса через bbolt.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// OperationType тип отложенной операции.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// Event событие очереди, доставляется подписчикам синхронно.
type Event string

const (
	EventProcessing     Event = "queue:processing"
	EventIdle           Event = "queue:idle"
	EventNetworkOnline  Event = "network:online"
	EventNetworkOffline Event = "network:offline"
)

// QueuedOperation отложенная операция синхронизации.
type QueuedOperation struct {
	ID         string          `json:"id"`
	Type       OperationType   `json:"type"`
	ItemType   string          `json:"item_type"`
	ItemID     string          `json:"item_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Retries    int             `json:"retries"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	seq uint64 // ключ в bbolt, 0 = не персистирована
}

// Handler обрабатывает одну операцию при разгрузке очереди.
type Handler func(ctx context.Context, op QueuedOperation) error

// State снимок состояния очереди.
type State struct {
	Pending    int
	Online     bool
	Processing bool
}

// Config параметры очереди.
type Config struct {
	// Persistence - сохранять ли операции в bbolt
	Persistence bool
	// Path - путь к файлу bbolt, обязателен при Persistence
	Path string
	// MaxRetries - количество попыток на операцию, после превышения
	// операция отбрасывается с записью в лог
	MaxRetries int
}

var bucketOps = []byte("queue_ops")

// Queue очередь офлайн-операций. Потокобезопасна.
type Queue struct {
	mu          sync.Mutex
	ops         []QueuedOperation
	online      bool
	processing  bool
	maxRetries  int
	db          *bbolt.DB
	subscribers []func(Event)
	logger      *slog.Logger
}

// New создает очередь. При включенной персистентности операции,
// накопленные до рестарта, загружаются из bbolt в порядке добавления.
func New(cfg Config, logger *slog.Logger) (*Queue, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	q := &Queue{
		maxRetries: cfg.MaxRetries,
		online:     true,
		logger:     logger,
	}

	if cfg.Persistence {
		if cfg.Path == "" {
			return nil, fmt.Errorf("queue persistence enabled without db path")
		}

		db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open queue db: %w", err)
		}

		if err := db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketOps)
			return err
		}); err != nil {
			db.Close() //nolint:errcheck // уже возвращаем ошибку
			return nil, fmt.Errorf("failed to create queue bucket: %w", err)
		}

		q.db = db

		if err := q.loadPersisted(); err != nil {
			db.Close() //nolint:errcheck
			return nil, err
		}

		logger.Info("Offline queue restored", "pending", len(q.ops))
	}

	return q, nil
}

// Close закрывает хранилище очереди.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.db == nil {
		return nil
	}
	err := q.db.Close()
	q.db = nil
	return err
}

// Subscribe регистрирует подписчика событий очереди.
// Подписчики вызываются синхронно, без блокировки очереди.
func (q *Queue) Subscribe(fn func(Event)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.subscribers = append(q.subscribers, fn)
}

// Enqueue добавляет операцию в хвост очереди.
func (q *Queue) Enqueue(opType OperationType, itemType, itemID string, payload json.RawMessage) (QueuedOperation, error) {
	op := QueuedOperation{
		ID:         uuid.NewString(),
		Type:       opType,
		ItemType:   itemType,
		ItemID:     itemID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.db != nil {
		if err := q.persist(&op); err != nil {
			return QueuedOperation{}, err
		}
	}

	q.ops = append(q.ops, op)

	q.logger.Debug("Operation queued",
		"op_id", op.ID,
		"type", op.Type,
		"item_id", op.ItemID,
		"pending", len(q.ops))

	return op, nil
}

// Process разгружает очередь FIFO через handler. В офлайне ничего не
// делает. Операция, провалившаяся меньше MaxRetries раз, остается в
// очереди до следующего вызова; исчерпавшая попытки - отбрасывается.
func (q *Queue) Process(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	if !q.online {
		q.mu.Unlock()
		q.logger.Debug("Queue processing skipped: offline")
		return nil
	}
	if q.processing {
		q.mu.Unlock()
		return nil
	}
	if len(q.ops) == 0 {
		q.mu.Unlock()
		return nil
	}

	q.processing = true
	batch := append([]QueuedOperation(nil), q.ops...)
	q.mu.Unlock()

	q.emit(EventProcessing)
	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
		q.emit(EventIdle)
	}()

	var retained []QueuedOperation

	for i, op := range batch {
		if err := ctx.Err(); err != nil {
			// Необработанный остаток сохраняем как есть
			retained = append(retained, batch[i:]...)
			q.replaceOps(batch, retained)
			return err
		}

		err := handler(ctx, op)
		if err == nil {
			q.remove(&op)
			continue
		}

		op.Retries++
		if op.Retries >= q.maxRetries {
			q.logger.Warn("Dropping queued operation: retries exhausted",
				"op_id", op.ID,
				"type", op.Type,
				"item_id", op.ItemID,
				"retries", op.Retries,
				"error", err)
			q.remove(&op)
			continue
		}

		q.logger.Debug("Queued operation failed, will retry",
			"op_id", op.ID,
			"retries", op.Retries,
			"error", err)
		q.update(&op)
		retained = append(retained, op)
	}

	q.replaceOps(batch, retained)
	return nil
}

// GetState возвращает снимок состояния очереди.
func (q *Queue) GetState() State {
	q.mu.Lock()
	defer q.mu.Unlock()

	return State{
		Pending:    len(q.ops),
		Online:     q.online,
		Processing: q.processing,
	}
}

// SetNetworkStatus переключает статус сети. Смена статуса порождает
// событие network:online или network:offline; повторная установка
// того же статуса событий не порождает.
func (q *Queue) SetNetworkStatus(online bool) {
	q.mu.Lock()
	if q.online == online {
		q.mu.Unlock()
		return
	}
	q.online = online
	q.mu.Unlock()

	if online {
		q.logger.Info("Network is online")
		q.emit(EventNetworkOnline)
	} else {
		q.logger.Info("Network is offline")
		q.emit(EventNetworkOffline)
	}
}

// IsOnline сообщает текущий статус сети.
func (q *Queue) IsOnline() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.online
}

// emit доставляет событие всем подписчикам. Вызывается без q.mu.
func (q *Queue) emit(event Event) {
	q.mu.Lock()
	subs := append([]func(Event){}, q.subscribers...)
	q.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}

// replaceOps заменяет обработанный снимок очереди его остатком.
// Операции, добавленные конкурентно во время обработки, сохраняются
// в хвосте.
func (q *Queue) replaceOps(batch, retained []QueuedOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	inBatch := make(map[string]struct{}, len(batch))
	for _, op := range batch {
		inBatch[op.ID] = struct{}{}
	}

	next := append([]QueuedOperation(nil), retained...)
	for _, op := range q.ops {
		if _, ok := inBatch[op.ID]; !ok {
			next = append(next, op)
		}
	}
	q.ops = next
}

// persist сохраняет операцию в bbolt под монотонным ключом,
// чтобы порядок FIFO переживал рестарт.
func (q *Queue) persist(op *QueuedOperation) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOps)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		op.seq = seq

		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to marshal operation: %w", err)
		}

		if err := bucket.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to persist operation: %w", err)
		}
		return nil
	})
}

// update перезаписывает персистированную операцию (счетчик попыток).
func (q *Queue) update(op *QueuedOperation) {
	if q.db == nil || op.seq == 0 {
		return
	}

	err := q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOps)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}
		data, err := json.Marshal(op)
		if err != nil {
			return err
		}
		return bucket.Put(seqKey(op.seq), data)
	})
	if err != nil {
		q.logger.Warn("Failed to update persisted operation", "op_id", op.ID, "error", err)
	}
}

// remove удаляет персистированную операцию после обработки или отброса.
func (q *Queue) remove(op *QueuedOperation) {
	if q.db == nil || op.seq == 0 {
		return
	}

	err := q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOps)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}
		return bucket.Delete(seqKey(op.seq))
	})
	if err != nil {
		q.logger.Warn("Failed to remove persisted operation", "op_id", op.ID, "error", err)
	}
}

// loadPersisted восстанавливает очередь из bbolt в порядке ключей.
func (q *Queue) loadPersisted() error {
	return q.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOps)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			var op QueuedOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal persisted operation: %w", err)
			}
			op.seq = binary.BigEndian.Uint64(k)
			q.ops = append(q.ops, op)
			return nil
		})
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
