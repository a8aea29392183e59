package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/confsync/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	q, err := New(Config{MaxRetries: 3}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueue_EnqueueAndState(t *testing.T) {
	q := newTestQueue(t)

	op, err := q.Enqueue(OperationCreate, models.ItemTypeConfig, "item-1", json.RawMessage(`{"name":"app"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, op.ID)
	assert.Equal(t, OperationCreate, op.Type)
	assert.False(t, op.EnqueuedAt.IsZero())

	state := q.GetState()
	assert.Equal(t, 1, state.Pending)
	assert.True(t, state.Online)
	assert.False(t, state.Processing)
}

func TestQueue_ProcessDrainsFIFO(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(OperationCreate, models.ItemTypeConfig, "item-1", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(OperationUpdate, models.ItemTypeConfig, "item-2", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(OperationDelete, models.ItemTypeConfig, "item-3", nil)
	require.NoError(t, err)

	var processed []string
	err = q.Process(context.Background(), func(_ context.Context, op QueuedOperation) error {
		processed = append(processed, op.ItemID)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"item-1", "item-2", "item-3"}, processed)
	assert.Equal(t, 0, q.GetState().Pending)
}

func TestQueue_ProcessSkippedWhenOffline(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(OperationCreate, models.ItemTypeConfig, "item-1", nil)
	require.NoError(t, err)

	q.SetNetworkStatus(false)

	called := false
	err = q.Process(context.Background(), func(context.Context, QueuedOperation) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	assert.False(t, called, "offline queue must not be drained")
	assert.Equal(t, 1, q.GetState().Pending)
}

func TestQueue_FailedOperationRetained(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(OperationUpdate, models.ItemTypeConfig, "item-1", nil)
	require.NoError(t, err)

	err = q.Process(context.Background(), func(context.Context, QueuedOperation) error {
		return errors.New("peer unavailable")
	})
	require.NoError(t, err)

	state := q.GetState()
	require.Equal(t, 1, state.Pending, "failed operation stays queued")
}

func TestQueue_RetriesExhaustedDropsOperation(t *testing.T) {
	q, err := New(Config{MaxRetries: 2}, testLogger())
	require.NoError(t, err)
	defer q.Close() //nolint:errcheck

	_, err = q.Enqueue(OperationUpdate, models.ItemTypeConfig, "item-1", nil)
	require.NoError(t, err)

	fail := func(context.Context, QueuedOperation) error {
		return errors.New("peer unavailable")
	}

	require.NoError(t, q.Process(context.Background(), fail))
	assert.Equal(t, 1, q.GetState().Pending)

	// Вторая попытка исчерпывает лимит, операция отбрасывается
	require.NoError(t, q.Process(context.Background(), fail))
	assert.Equal(t, 0, q.GetState().Pending)
}

func TestQueue_Events(t *testing.T) {
	q := newTestQueue(t)

	var events []Event
	q.Subscribe(func(e Event) {
		events = append(events, e)
	})

	q.SetNetworkStatus(false)
	q.SetNetworkStatus(false) // повтор не порождает событие
	q.SetNetworkStatus(true)

	_, err := q.Enqueue(OperationCreate, models.ItemTypeConfig, "item-1", nil)
	require.NoError(t, err)

	err = q.Process(context.Background(), func(context.Context, QueuedOperation) error {
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []Event{
		EventNetworkOffline,
		EventNetworkOnline,
		EventProcessing,
		EventIdle,
	}, events)
}

func TestQueue_ProcessEmptyQueueNoEvents(t *testing.T) {
	q := newTestQueue(t)

	var events []Event
	q.Subscribe(func(e Event) {
		events = append(events, e)
	})

	err := q.Process(context.Background(), func(context.Context, QueuedOperation) error {
		t.Fatal("handler must not be called for empty queue")
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestQueue_PersistenceSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := New(Config{Persistence: true, Path: path, MaxRetries: 3}, testLogger())
	require.NoError(t, err)

	_, err = q.Enqueue(OperationCreate, models.ItemTypeSnippet, "item-1", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)
	_, err = q.Enqueue(OperationDelete, models.ItemTypeSnippet, "item-2", nil)
	require.NoError(t, err)

	require.NoError(t, q.Close())

	// "Рестарт": новая очередь поверх того же файла
	restored, err := New(Config{Persistence: true, Path: path, MaxRetries: 3}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, restored.GetState().Pending)

	var processed []string
	err = restored.Process(context.Background(), func(_ context.Context, op QueuedOperation) error {
		processed = append(processed, op.ItemID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"item-1", "item-2"}, processed)
	require.NoError(t, restored.Close())

	// Обработанные операции удалены из bbolt
	reopened, err := New(Config{Persistence: true, Path: path, MaxRetries: 3}, testLogger())
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck
	assert.Equal(t, 0, reopened.GetState().Pending)
}

func TestQueue_PersistenceRequiresPath(t *testing.T) {
	_, err := New(Config{Persistence: true}, testLogger())
	require.Error(t, err)
}
