package crdt

import (
	"encoding/json"
	"fmt"
)

// PNCounter представляет counter CRDT с поддержкой инкремента и декремента.
// Реализован как пара grow-only счетчиков: positive накапливает инкременты,
// negative - декременты. Значение = positive - negative.
type PNCounter struct {
	positive *GCounter
	negative *GCounter
}

// PNCounterState представляет сериализуемое состояние PN-счетчика.
type PNCounterState struct {
	Positive GCounterState `json:"positive"`
	Negative GCounterState `json:"negative"`
}

// NewPNCounter создает новый PN-счетчик для заданного узла.
func NewPNCounter(nodeID string) *PNCounter {
	return &PNCounter{
		positive: NewGCounter(nodeID),
		negative: NewGCounter(nodeID),
	}
}

// Increment увеличивает счетчик. Отрицательная величина перенаправляется
// в Decrement, сохраняя инвариант неотрицательности базовых счетчиков.
func (c *PNCounter) Increment(amount int64) error {
	if amount < 0 {
		return c.Decrement(-amount)
	}
	return c.positive.Increment(amount)
}

// Decrement уменьшает счетчик. Отрицательная величина перенаправляется
// в Increment.
func (c *PNCounter) Decrement(amount int64) error {
	if amount < 0 {
		return c.Increment(-amount)
	}
	return c.negative.Increment(amount)
}

// Value возвращает текущее значение счетчика.
func (c *PNCounter) Value() int64 {
	return c.positive.Value() - c.negative.Value()
}

// NodeID возвращает идентификатор локального узла.
func (c *PNCounter) NodeID() string {
	return c.positive.NodeID()
}

// Merge объединяет счетчик с удаленным состоянием.
// Возвращает true, если локальное состояние изменилось.
func (c *PNCounter) Merge(remote PNCounterState) bool {
	posChanged := c.positive.Merge(remote.Positive)
	negChanged := c.negative.Merge(remote.Negative)
	return posChanged || negChanged
}

// State возвращает копию текущего состояния.
func (c *PNCounter) State() PNCounterState {
	return PNCounterState{
		Positive: c.positive.State(),
		Negative: c.negative.State(),
	}
}

// MarshalState сериализует состояние счетчика в JSON.
func (c *PNCounter) MarshalState() ([]byte, error) {
	return json.Marshal(c.State())
}

// UnmarshalState восстанавливает состояние счетчика из JSON.
func (c *PNCounter) UnmarshalState(data []byte) error {
	var state PNCounterState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal pn-counter state: %w", err)
	}

	nodeID := c.NodeID()
	c.positive = NewGCounter(nodeID)
	c.negative = NewGCounter(nodeID)
	c.positive.Merge(state.Positive)
	c.negative.Merge(state.Negative)
	return nil
}
