package transfer

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/confsync/internal/models"
)

// transferJob - внутреннее состояние одной передачи.
// Публичное TransferState отдается наружу только копией; chunks хранит
// уже скачанные фрагменты для возобновления download.
type transferJob struct {
	state   *models.TransferState
	cancel  context.CancelFunc
	chunks  map[int][]byte
	aborted bool
	paused  bool
}

// stateManager владеет состоянием всех передач engine.
type stateManager struct {
	jobs map[string]*transferJob
	mu   sync.Mutex
}

func newStateManager() *stateManager {
	return &stateManager{jobs: make(map[string]*transferJob)}
}

// create регистрирует новую передачу в состоянии pending.
func (m *stateManager) create(itemID string, direction models.TransferDirection, totalSize int64, totalChunks int, contentHash string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.jobs[id] = &transferJob{
		state: &models.TransferState{
			ID:          id,
			ItemID:      itemID,
			Direction:   direction,
			Status:      models.TransferStatusPending,
			ContentHash: contentHash,
			TotalSize:   totalSize,
			TotalChunks: totalChunks,
		},
		chunks: make(map[int][]byte),
	}
	return id
}

// snapshot возвращает копию публичного состояния передачи.
func (m *stateManager) snapshot(id string) (*models.TransferState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.state.Clone(), true
}

// activate переводит передачу в active и привязывает cancel функцию.
// Сбрасывает флаги paused/aborted предыдущего запуска.
func (m *stateManager) activate(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return
	}
	job.cancel = cancel
	job.paused = false
	job.aborted = false
	job.state.Status = models.TransferStatusActive
	job.state.Error = ""
}

// chunkDone отмечает фрагмент завершенным и накапливает прогресс.
// Данные фрагмента сохраняются для download (возобновление).
func (m *stateManager) chunkDone(id string, index int, data []byte, rawLen int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return
	}

	for _, completed := range job.state.CompletedChunks {
		if completed == index {
			return
		}
	}
	job.state.CompletedChunks = append(job.state.CompletedChunks, index)
	sort.Ints(job.state.CompletedChunks)
	job.state.TransferredBytes += rawLen
	if data != nil {
		job.chunks[index] = data
	}
}

// complete переводит передачу в completed.
func (m *stateManager) complete(id string) {
	m.setStatus(id, models.TransferStatusCompleted, "")
}

// fail переводит передачу в failed с причиной.
func (m *stateManager) fail(id, reason string) {
	m.setStatus(id, models.TransferStatusFailed, reason)
}

func (m *stateManager) setStatus(id string, status models.TransferStatus, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return
	}
	job.state.Status = status
	job.state.Error = errMsg
}

// pause помечает передачу приостановленной и отменяет in-flight операции.
func (m *stateManager) pause(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.state.Status != models.TransferStatusActive {
		return false
	}
	job.paused = true
	job.state.Status = models.TransferStatusPaused
	if job.cancel != nil {
		job.cancel()
	}
	return true
}

// abort помечает передачу прерванной пользователем и отменяет
// in-flight операции. Прерывание одной передачи не затрагивает другие.
func (m *stateManager) abort(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false
	}
	job.aborted = true
	if job.cancel != nil {
		job.cancel()
	}
	return true
}

// flags возвращает текущие флаги paused/aborted.
func (m *stateManager) flags(id string) (paused, aborted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false, false
	}
	return job.paused, job.aborted
}

// downloadedChunks возвращает копию уже скачанных фрагментов.
func (m *stateManager) downloadedChunks(id string) map[int][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	chunks := make(map[int][]byte, len(job.chunks))
	for index, data := range job.chunks {
		chunks[index] = data
	}
	return chunks
}
