// Package transfer реализует потоковую передачу больших payload
// возобновляемыми, проверяемыми фрагментами с ограничением
// параллелизма и полосы пропускания.
//
// Engine не знает про сеть: фактический ввод-вывод выполняют
// инжектированные функции upload/download фрагментов.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang/snappy"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/models"
)

// Ошибки transfer engine
var (
	// ErrTransferNotFound - передача с таким ID не зарегистрирована
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrCannotResume - возобновление допустимо только из paused/failed
	ErrCannotResume = errors.New("transfer cannot be resumed")

	// ErrAborted - передача прервана пользователем
	ErrAborted = errors.New("aborted by user")

	// ErrPaused - передача приостановлена
	ErrPaused = errors.New("transfer paused")

	// ErrIntegrityMismatch - собранный payload не совпал с ожидаемым хешем
	ErrIntegrityMismatch = errors.New("payload integrity verification failed")
)

// ChunkUploadFn отправляет один фрагмент. Поставляется remote adapter.
type ChunkUploadFn func(ctx context.Context, itemID string, chunkIndex int, data []byte) error

// ChunkDownloadFn получает один фрагмент. Поставляется remote adapter.
type ChunkDownloadFn func(ctx context.Context, itemID string, chunkIndex int) ([]byte, error)

// ProgressFn вызывается после каждого завершенного фрагмента.
type ProgressFn func(transferredBytes, totalBytes int64)

// Config параметры transfer engine.
type Config struct {
	// ChunkSize - размер фрагмента в байтах
	ChunkSize int
	// MaxConcurrent - максимум одновременных операций с фрагментами
	MaxConcurrent int
	// RetryAttempts - количество повторов на фрагмент
	RetryAttempts int
	// RetryDelay - базовая задержка повтора, растет линейно с номером попытки
	RetryDelay time.Duration
	// Timeout - таймаут одной операции с фрагментом (не всей передачи)
	Timeout time.Duration
	// BandwidthLimit - байт в секунду, 0 = без ограничения
	BandwidthLimit int64
	// Compression - сжимать ли фрагменты перед отправкой
	Compression bool
	// VerifyIntegrity - проверять ли хеш собранного payload
	VerifyIntegrity bool
}

// DefaultConfig возвращает параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       256 * 1024,
		MaxConcurrent:   3,
		RetryAttempts:   3,
		RetryDelay:      500 * time.Millisecond,
		Timeout:         30 * time.Second,
		VerifyIntegrity: true,
	}
}

// Engine управляет передачами. Состояние каждой передачи живет в
// state manager до завершения процесса; возобновление после рестарта
// начинает новую передачу.
type Engine struct {
	cfg     Config
	states  *stateManager
	limiter *bandwidthLimiter
	logger  *slog.Logger
}

// NewEngine создает transfer engine.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}

	return &Engine{
		cfg:     cfg,
		states:  newStateManager(),
		limiter: newBandwidthLimiter(cfg.BandwidthLimit),
		logger:  logger,
	}
}

// GetTransfer возвращает копию состояния передачи.
func (e *Engine) GetTransfer(transferID string) (*models.TransferState, bool) {
	return e.states.snapshot(transferID)
}

// Pause приостанавливает активную передачу: in-flight операции
// отменяются, завершенные фрагменты сохраняются для возобновления.
func (e *Engine) Pause(transferID string) error {
	if !e.states.pause(transferID) {
		return ErrTransferNotFound
	}
	e.logger.Info("Transfer paused", "transfer_id", transferID)
	return nil
}

// Abort кооперативно отменяет передачу: in-flight операции наблюдают
// сигнал отмены, передача помечается failed с причиной "aborted by user".
func (e *Engine) Abort(transferID string) error {
	if !e.states.abort(transferID) {
		return ErrTransferNotFound
	}
	e.logger.Info("Transfer aborted", "transfer_id", transferID)
	return nil
}

// Upload передает payload фрагментами через uploadFn.
// Хеш всего payload вычисляется заранее и сохраняется в состоянии
// передачи для проверки на принимающей стороне.
func (e *Engine) Upload(ctx context.Context, payload []byte, itemID string, uploadFn ChunkUploadFn, onProgress ProgressFn) (*models.TransferState, error) {
	contentHash := crypto.HashPayload(payload)
	chunks := splitChunks(payload, e.cfg.ChunkSize)

	transferID := e.states.create(itemID, models.TransferDirectionUpload, int64(len(payload)), len(chunks), contentHash)

	e.logger.Info("Starting upload",
		"transfer_id", transferID,
		"item_id", itemID,
		"total_bytes", len(payload),
		"total_chunks", len(chunks))

	return e.runUpload(ctx, transferID, chunks, uploadFn, onProgress)
}

// ResumeUpload возобновляет передачу, досылая только недостающие
// фрагменты. Допустимо только из состояния paused или failed.
func (e *Engine) ResumeUpload(ctx context.Context, transferID string, payload []byte, uploadFn ChunkUploadFn, onProgress ProgressFn) (*models.TransferState, error) {
	state, ok := e.states.snapshot(transferID)
	if !ok {
		return nil, ErrTransferNotFound
	}
	if !state.CanResume() {
		return state, fmt.Errorf("%w: status is %s", ErrCannotResume, state.Status)
	}
	if hash := crypto.HashPayload(payload); hash != state.ContentHash {
		return state, fmt.Errorf("resume payload hash mismatch: expected %s, got %s", state.ContentHash, hash)
	}

	e.logger.Info("Resuming upload",
		"transfer_id", transferID,
		"completed_chunks", len(state.CompletedChunks),
		"missing_chunks", len(state.MissingChunks()))

	chunks := splitChunks(payload, e.cfg.ChunkSize)
	return e.runUpload(ctx, transferID, chunks, uploadFn, onProgress)
}

// runUpload отправляет недостающие фрагменты передачи с ограниченным
// параллелизмом. Уже завершенные фрагменты не трогаются.
func (e *Engine) runUpload(ctx context.Context, transferID string, chunks []chunk, uploadFn ChunkUploadFn, onProgress ProgressFn) (*models.TransferState, error) {
	state, _ := e.states.snapshot(transferID)
	missing := state.MissingChunks()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.states.activate(transferID, cancel)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.cfg.MaxConcurrent)

	for _, index := range missing {
		c := chunks[index]
		g.Go(func() error {
			data := c.data
			if e.cfg.Compression {
				data = snappy.Encode(nil, data)
			}

			if err := e.limiter.Wait(gctx, len(data)); err != nil {
				return err
			}

			if err := e.sendChunk(gctx, state.ItemID, c.index, data, uploadFn); err != nil {
				return fmt.Errorf("chunk %d upload failed: %w", c.index, err)
			}

			e.states.chunkDone(transferID, c.index, nil, int64(len(c.data)))
			e.reportProgress(transferID, onProgress)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return e.finishWithError(transferID, err)
	}

	e.states.complete(transferID)
	e.logger.Info("Upload completed", "transfer_id", transferID)

	final, _ := e.states.snapshot(transferID)
	return final, nil
}

// Download получает payload фрагментами через downloadFn и собирает его
// по порядку индексов. После сборки целостность проверяется хешем всего
// payload: несовпадение проваливает передачу, даже если каждый фрагмент
// доехал успешно.
func (e *Engine) Download(ctx context.Context, itemID string, totalChunks int, totalSize int64, expectedHash string, downloadFn ChunkDownloadFn, onProgress ProgressFn) ([]byte, *models.TransferState, error) {
	transferID := e.states.create(itemID, models.TransferDirectionDownload, totalSize, totalChunks, expectedHash)

	e.logger.Info("Starting download",
		"transfer_id", transferID,
		"item_id", itemID,
		"total_chunks", totalChunks)

	return e.runDownload(ctx, transferID, downloadFn, onProgress)
}

// ResumeDownload возобновляет скачивание, дополучая только недостающие
// фрагменты. Допустимо только из состояния paused или failed.
func (e *Engine) ResumeDownload(ctx context.Context, transferID string, downloadFn ChunkDownloadFn, onProgress ProgressFn) ([]byte, *models.TransferState, error) {
	state, ok := e.states.snapshot(transferID)
	if !ok {
		return nil, nil, ErrTransferNotFound
	}
	if !state.CanResume() {
		return nil, state, fmt.Errorf("%w: status is %s", ErrCannotResume, state.Status)
	}

	e.logger.Info("Resuming download",
		"transfer_id", transferID,
		"missing_chunks", len(state.MissingChunks()))

	return e.runDownload(ctx, transferID, downloadFn, onProgress)
}

func (e *Engine) runDownload(ctx context.Context, transferID string, downloadFn ChunkDownloadFn, onProgress ProgressFn) ([]byte, *models.TransferState, error) {
	state, _ := e.states.snapshot(transferID)
	missing := state.MissingChunks()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.states.activate(transferID, cancel)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.cfg.MaxConcurrent)

	for _, index := range missing {
		index := index
		g.Go(func() error {
			data, err := e.fetchChunk(gctx, state.ItemID, index, downloadFn)
			if err != nil {
				return fmt.Errorf("chunk %d download failed: %w", index, err)
			}

			if err := e.limiter.Wait(gctx, len(data)); err != nil {
				return err
			}

			if e.cfg.Compression {
				data, err = snappy.Decode(nil, data)
				if err != nil {
					return fmt.Errorf("chunk %d decompression failed: %w", index, err)
				}
			}

			e.states.chunkDone(transferID, index, data, int64(len(data)))
			e.reportProgress(transferID, onProgress)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		failedState, finishErr := e.finishWithError(transferID, err)
		return nil, failedState, finishErr
	}

	payload := assembleChunks(e.states.downloadedChunks(transferID), state.TotalChunks)

	// Целостность - свойство всего payload, не отдельных фрагментов
	if e.cfg.VerifyIntegrity && state.ContentHash != "" {
		if err := crypto.VerifyPayload(payload, state.ContentHash); err != nil {
			wrapped := fmt.Errorf("%w: %s", ErrIntegrityMismatch, err.Error())
			e.states.fail(transferID, wrapped.Error())
			final, _ := e.states.snapshot(transferID)
			return nil, final, wrapped
		}
	}

	e.states.complete(transferID)
	e.logger.Info("Download completed", "transfer_id", transferID)

	final, _ := e.states.snapshot(transferID)
	return payload, final, nil
}

// sendChunk отправляет один фрагмент с повторами.
// Каждая попытка ограничена собственным таймаутом; задержка между
// попытками растет линейно.
func (e *Engine) sendChunk(ctx context.Context, itemID string, index int, data []byte, uploadFn ChunkUploadFn) error {
	return retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		if err := uploadFn(attemptCtx, itemID, index, data); err != nil {
			e.logger.Debug("Chunk upload attempt failed",
				"item_id", itemID,
				"chunk", index,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// fetchChunk получает один фрагмент с повторами.
func (e *Engine) fetchChunk(ctx context.Context, itemID string, index int, downloadFn ChunkDownloadFn) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		chunkData, err := downloadFn(attemptCtx, itemID, index)
		if err != nil {
			e.logger.Debug("Chunk download attempt failed",
				"item_id", itemID,
				"chunk", index,
				"error", err)
			return retry.RetryableError(err)
		}
		data = chunkData
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// backoff возвращает линейно растущую задержку повторов,
// ограниченную RetryAttempts.
func (e *Engine) backoff() retry.Backoff {
	base := e.cfg.RetryDelay
	attempt := 0
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return base * time.Duration(attempt), false
	})
	return retry.WithMaxRetries(uint64(e.cfg.RetryAttempts), linear)
}

// finishWithError финализирует прерванную или проваленную передачу.
// Пауза сохраняет статус paused; abort дает failed с фиксированной
// причиной; остальное - failed с текстом ошибки.
func (e *Engine) finishWithError(transferID string, err error) (*models.TransferState, error) {
	paused, aborted := e.states.flags(transferID)

	switch {
	case aborted:
		e.states.fail(transferID, ErrAborted.Error())
		err = ErrAborted
	case paused:
		// Статус уже paused, сохраняем для возобновления
		err = ErrPaused
	default:
		e.states.fail(transferID, err.Error())
		e.logger.Warn("Transfer failed", "transfer_id", transferID, "error", err)
	}

	state, _ := e.states.snapshot(transferID)
	return state, err
}

// reportProgress дергает callback с актуальным прогрессом.
func (e *Engine) reportProgress(transferID string, onProgress ProgressFn) {
	if onProgress == nil {
		return
	}
	if state, ok := e.states.snapshot(transferID); ok {
		onProgress(state.TransferredBytes, state.TotalSize)
	}
}
