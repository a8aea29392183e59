package crdt

import (
	"encoding/json"
	"fmt"
	"sync"
)

// GCounter представляет grow-only counter CRDT.
// Каждый узел увеличивает только собственный счетчик, общее значение -
// сумма счетчиков всех узлов. Слияние берет максимум по каждому узлу,
// поэтому значение узла монотонно не убывает ни при локальном инкременте,
// ни при слиянии.
type GCounter struct {
	counts map[string]int64
	nodeID string
	mu     sync.RWMutex
}

// GCounterState представляет сериализуемое состояние счетчика.
type GCounterState struct {
	Counts map[string]int64 `json:"counts"`
}

// NewGCounter создает новый счетчик для заданного узла.
func NewGCounter(nodeID string) *GCounter {
	return &GCounter{
		counts: make(map[string]int64),
		nodeID: nodeID,
	}
}

// Increment увеличивает счетчик локального узла.
// Отрицательная величина отклоняется: grow-only counter не умеет убывать.
func (c *GCounter) Increment(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("g-counter increment must be non-negative, got %d", amount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[c.nodeID] += amount
	return nil
}

// Value возвращает текущее значение счетчика (сумма по всем узлам).
func (c *GCounter) Value() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for _, count := range c.counts {
		total += count
	}
	return total
}

// NodeID возвращает идентификатор локального узла.
func (c *GCounter) NodeID() string {
	return c.nodeID
}

// Merge объединяет счетчик с удаленным состоянием, беря максимум по каждому
// узлу. Неизвестные узлы перенимаются. Возвращает true, если локальное
// состояние изменилось. Операция коммутативна, ассоциативна и идемпотентна.
func (c *GCounter) Merge(remote GCounterState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for nodeID, count := range remote.Counts {
		if count > c.counts[nodeID] {
			c.counts[nodeID] = count
			changed = true
		}
	}
	return changed
}

// State возвращает копию текущего состояния для сериализации и слияния.
func (c *GCounter) State() GCounterState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[string]int64, len(c.counts))
	for nodeID, count := range c.counts {
		counts[nodeID] = count
	}
	return GCounterState{Counts: counts}
}

// MarshalState сериализует состояние счетчика в JSON.
func (c *GCounter) MarshalState() ([]byte, error) {
	state := c.State()
	return json.Marshal(state)
}

// UnmarshalState восстанавливает состояние счетчика из JSON,
// заменяя текущее состояние.
func (c *GCounter) UnmarshalState(data []byte) error {
	var state GCounterState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal g-counter state: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts = make(map[string]int64, len(state.Counts))
	for nodeID, count := range state.Counts {
		c.counts[nodeID] = count
	}
	return nil
}

// MergeGCounterStates объединяет два сериализованных состояния g-counter,
// не создавая экземпляр счетчика. Используется sync engine при структурном
// слиянии конкурентных версий записи.
func MergeGCounterStates(a, b GCounterState) GCounterState {
	merged := GCounterState{Counts: make(map[string]int64, len(a.Counts))}
	for nodeID, count := range a.Counts {
		merged.Counts[nodeID] = count
	}
	for nodeID, count := range b.Counts {
		if count > merged.Counts[nodeID] {
			merged.Counts[nodeID] = count
		}
	}
	return merged
}
