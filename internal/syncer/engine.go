// Package syncer реализует оркестратор синхронизации: решает для каждой
// записи, нужен ли push, pull или CRDT-merge, и управляет передачей
// payload через transfer engine и очередью офлайн-операций.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/queue"
	"github.com/iudanet/confsync/internal/storage"
	"github.com/iudanet/confsync/internal/transfer"
)

// Direction направление синхронизации.
type Direction string

const (
	DirectionPush          Direction = "push"
	DirectionPull          Direction = "pull"
	DirectionBidirectional Direction = "bidirectional"
)

// DefaultChunkThreshold - payload крупнее этого порога уходит через
// transfer engine фрагментами, мельче - inline в метаданных записи.
const DefaultChunkThreshold = 256 * 1024

// SyncOptions параметры одного вызова Sync.
type SyncOptions struct {
	// ItemType - фильтр по типу записей, пустой = все типы
	ItemType string
	// Direction - push, pull или bidirectional (по умолчанию)
	Direction Direction
	// Force - локальная сторона побеждает без сравнения
	Force bool
	// OnProgress вызывается после обработки каждой записи
	OnProgress func(itemID string, processed, total int)
}

// ItemError ошибка обработки одной записи. Не прерывает батч.
type ItemError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// SyncResult итог синхронизации.
type SyncResult struct {
	Pushed    []string      `json:"pushed"`
	Pulled    []string      `json:"pulled"`
	Merged    []string      `json:"merged"`
	Conflicts []string      `json:"conflicts"`
	Errors    []ItemError   `json:"errors"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
}

// Config зависимости и параметры sync engine.
type Config struct {
	// NodeID - идентификатор реплики, генерируется если пуст
	NodeID string
	// Encryption - encryption capability, опциональна
	Encryption *crypto.Service
	// EncryptionEnabled - шифровать ли payload перед отправкой.
	// При включенном шифровании plaintext никогда не уходит на peer.
	EncryptionEnabled bool
	// Queue - очередь офлайн-операций, опциональна
	Queue *queue.Queue
	// Transfer - движок фрагментированной передачи, опционален
	Transfer *transfer.Engine
	// ChunkThreshold - порог размера payload для фрагментированной передачи
	ChunkThreshold int
	// TieBias - политика ничьей LWW при структурном слиянии
	TieBias crdt.Bias
	// AutoSyncInterval - период фоновой синхронизации, <=0 выключает
	AutoSyncInterval time.Duration
	// OnEvent - события очереди и сети пробрасываются сюда verbatim
	OnEvent func(queue.Event)
}

// Engine оркестратор синхронизации между локальным и удаленным
// хранилищем. Все операции требуют предварительного Initialize.
type Engine struct {
	local  storage.LocalStore
	remote storage.RemoteStore
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	autoCancel  context.CancelFunc
	autoDone    chan struct{}
}

// New создает sync engine. remote может быть nil: тогда доступны только
// локальные операции, а Sync возвращает ошибку precondition.
func New(local storage.LocalStore, remote storage.RemoteStore, cfg Config, logger *slog.Logger) *Engine {
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = DefaultChunkThreshold
	}

	return &Engine{
		local:  local,
		remote: remote,
		cfg:    cfg,
		logger: logger,
	}
}

// NodeID возвращает идентификатор реплики.
func (e *Engine) NodeID() string {
	return e.cfg.NodeID
}

// Initialize подключает remote хранилище, подписывается на события
// очереди и запускает фоновую синхронизацию, если она настроена.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	if e.remote != nil {
		if err := e.remote.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect remote store: %w", err)
		}
	}

	if e.cfg.Queue != nil && e.cfg.OnEvent != nil {
		// События очереди пробрасываются наружу без трансформации
		e.cfg.Queue.Subscribe(e.cfg.OnEvent)
	}

	e.initialized = true
	e.logger.Info("Sync engine initialized", "node_id", e.cfg.NodeID)

	if e.cfg.AutoSyncInterval > 0 {
		e.startAutoSyncLocked()
	}

	return nil
}

// Close останавливает фоновую синхронизацию и отключает remote.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return nil
	}

	// Фоновая горутина сама берет e.mu, поэтому ждем ее без блокировки
	cancel, done := e.autoCancel, e.autoDone
	e.autoCancel, e.autoDone = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		e.logger.Info("Auto-sync stopped")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote != nil {
		if err := e.remote.Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to disconnect remote store: %w", err)
		}
	}

	e.initialized = false
	e.logger.Info("Sync engine closed")
	return nil
}

// Sync выполняет синхронизацию в заданном направлении.
// Ошибки отдельных записей накапливаются в результате и не прерывают
// батч; Success выставляется когда ошибок нет.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if err := e.checkPreconditions(); err != nil {
		return nil, err
	}

	if opts.Direction == "" {
		opts.Direction = DirectionBidirectional
	}

	start := time.Now()
	result := &SyncResult{}

	e.logger.Info("Starting sync",
		"direction", opts.Direction,
		"item_type", opts.ItemType,
		"force", opts.Force)

	// Перед синхронизацией разгружаем накопленные офлайн-операции
	if err := e.ProcessQueue(ctx); err != nil {
		e.logger.Warn("Queue drain failed", "error", err)
	}

	var err error
	switch opts.Direction {
	case DirectionPush:
		err = e.syncPush(ctx, opts, result)
	case DirectionPull:
		err = e.syncPull(ctx, opts, result)
	case DirectionBidirectional:
		err = e.syncBidirectional(ctx, opts, result)
	default:
		return nil, fmt.Errorf("unknown sync direction: %s", opts.Direction)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	result.Success = len(result.Errors) == 0

	e.logger.Info("Sync completed",
		"pushed", len(result.Pushed),
		"pulled", len(result.Pulled),
		"merged", len(result.Merged),
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors),
		"duration", result.Duration)

	return result, nil
}

// checkPreconditions проверяет, что engine готов к синхронизации.
// Нарушение - немедленная синхронная ошибка, без повторов.
func (e *Engine) checkPreconditions() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return fmt.Errorf("sync engine is not initialized")
	}
	if e.remote == nil {
		return fmt.Errorf("no remote store configured")
	}
	return nil
}

// syncPush отправляет все локальные записи запрошенного типа на peer.
func (e *Engine) syncPush(ctx context.Context, opts SyncOptions, result *SyncResult) error {
	items, err := e.local.GetAll(ctx, opts.ItemType)
	if err != nil {
		return fmt.Errorf("failed to list local items: %w", err)
	}

	for i, item := range items {
		if err := e.pushItem(ctx, item, opts.Force); err != nil {
			e.recordError(result, item.ID, err)
		} else {
			result.Pushed = append(result.Pushed, item.ID)
		}
		reportProgress(opts, item.ID, i+1, len(items))
	}
	return nil
}

// syncPull скачивает все удаленные записи запрошенного типа.
func (e *Engine) syncPull(ctx context.Context, opts SyncOptions, result *SyncResult) error {
	metas, err := e.remote.List(ctx, opts.ItemType)
	if err != nil {
		return fmt.Errorf("failed to list remote items: %w", err)
	}

	for i, meta := range metas {
		if err := e.pullItem(ctx, meta, opts.Force); err != nil {
			e.recordError(result, meta.ID, err)
		} else {
			result.Pulled = append(result.Pulled, meta.ID)
		}
		reportProgress(opts, meta.ID, i+1, len(metas))
	}
	return nil
}

// syncBidirectional классифицирует объединение локальных и удаленных
// записей: только локальная - push, только удаленная - pull, обе -
// реконсиляция по timestamp/часам/CRDT.
func (e *Engine) syncBidirectional(ctx context.Context, opts SyncOptions, result *SyncResult) error {
	localIDs, err := e.local.List(ctx, opts.ItemType)
	if err != nil {
		return fmt.Errorf("failed to list local items: %w", err)
	}

	remoteMetas, err := e.remote.List(ctx, opts.ItemType)
	if err != nil {
		return fmt.Errorf("failed to list remote items: %w", err)
	}

	remoteByID := make(map[string]*models.SyncItem, len(remoteMetas))
	for _, meta := range remoteMetas {
		remoteByID[meta.ID] = meta
	}

	localSet := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		localSet[id] = struct{}{}
	}

	total := len(localSet)
	for id := range remoteByID {
		if _, ok := localSet[id]; !ok {
			total++
		}
	}

	processed := 0

	for _, id := range localIDs {
		remoteMeta, onRemote := remoteByID[id]

		if !onRemote {
			localItem, err := e.local.Get(ctx, id)
			if err != nil {
				e.recordError(result, id, err)
			} else if err := e.pushItem(ctx, localItem, opts.Force); err != nil {
				e.recordError(result, id, err)
			} else {
				result.Pushed = append(result.Pushed, id)
			}
		} else {
			e.reconcileItem(ctx, id, remoteMeta, opts, result)
		}

		processed++
		reportProgress(opts, id, processed, total)
	}

	for id, meta := range remoteByID {
		if _, onLocal := localSet[id]; onLocal {
			continue
		}

		if err := e.pullItem(ctx, meta, opts.Force); err != nil {
			e.recordError(result, id, err)
		} else {
			result.Pulled = append(result.Pulled, id)
		}

		processed++
		reportProgress(opts, id, processed, total)
	}

	return nil
}

// ProcessQueue разгружает очередь офлайн-операций: create/update
// воспроизводятся как push актуального локального состояния, delete -
// как удаление на peer. Работает только при статусе online.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	if e.cfg.Queue == nil {
		return nil
	}
	if !e.cfg.Queue.IsOnline() {
		return nil
	}

	return e.cfg.Queue.Process(ctx, func(ctx context.Context, op queue.QueuedOperation) error {
		switch op.Type {
		case queue.OperationCreate, queue.OperationUpdate:
			item, err := e.local.Get(ctx, op.ItemID)
			if err != nil {
				// Запись удалили после постановки в очередь
				if err == storage.ErrItemNotFound {
					e.logger.Debug("Queued item no longer exists, skipping", "item_id", op.ItemID)
					return nil
				}
				return err
			}
			return e.pushItem(ctx, item, false)
		case queue.OperationDelete:
			return e.remote.Delete(ctx, op.ItemID)
		default:
			e.logger.Warn("Unknown queued operation type, dropping", "type", op.Type)
			return nil
		}
	})
}

// QueueChange ставит операцию в офлайн-очередь для последующего
// воспроизведения при восстановлении сети.
func (e *Engine) QueueChange(opType queue.OperationType, itemType, itemID string) error {
	if e.cfg.Queue == nil {
		return fmt.Errorf("offline queue is not configured")
	}
	_, err := e.cfg.Queue.Enqueue(opType, itemType, itemID, nil)
	return err
}

// SetNetworkStatus переключает статус сети офлайн-очереди.
func (e *Engine) SetNetworkStatus(online bool) {
	if e.cfg.Queue != nil {
		e.cfg.Queue.SetNetworkStatus(online)
	}
}

// startAutoSyncLocked запускает периодическую синхронизацию.
// Вызывается под e.mu.
func (e *Engine) startAutoSyncLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.autoCancel = cancel
	e.autoDone = done

	interval := e.cfg.AutoSyncInterval
	e.logger.Info("Auto-sync started", "interval", interval)

	// Горутина работает с локальными ctx/done: Close обнуляет поля
	// engine под мьютексом, не дожидаясь ее первой инструкции
	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.Sync(ctx, SyncOptions{Direction: DirectionBidirectional}); err != nil {
					e.logger.Warn("Auto-sync failed", "error", err)
				}
			}
		}
	}()
}

func (e *Engine) recordError(result *SyncResult, itemID string, err error) {
	e.logger.Warn("Item sync failed", "item_id", itemID, "error", err)
	result.Errors = append(result.Errors, ItemError{ItemID: itemID, Message: err.Error()})
}

func reportProgress(opts SyncOptions, itemID string, processed, total int) {
	if opts.OnProgress != nil {
		opts.OnProgress(itemID, processed, total)
	}
}
