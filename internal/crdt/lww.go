package crdt

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Bias определяет политику разрешения ничьей в LWW-регистре
// при равных timestamps.
type Bias int

const (
	// BiasHighestNode - при равных timestamps побеждает лексикографически
	// больший nodeID. Правило по умолчанию.
	BiasHighestNode Bias = iota
	// BiasLowestNode - при равных timestamps побеждает лексикографически
	// меньший nodeID.
	BiasLowestNode
)

// LWWRegister представляет Last-Write-Wins регистр CRDT.
// Хранит единственное значение вместе с timestamp и nodeID записавшего узла.
// Конфликты разрешаются в пользу большего timestamp; при равных timestamps
// детерминированно сравниваются nodeID. Обе политики ничьей детерминированы,
// но все узлы реплики обязаны использовать одну и ту же.
type LWWRegister struct {
	value     json.RawMessage
	nodeID    string
	ownerID   string
	timestamp int64
	bias      Bias
	mu        sync.RWMutex
}

// LWWRegisterState представляет сериализуемое состояние регистра.
type LWWRegisterState struct {
	Value     json.RawMessage `json:"value"`
	NodeID    string          `json:"node_id"`
	Timestamp int64           `json:"timestamp"`
}

// NewLWWRegister создает новый пустой регистр для заданного узла.
func NewLWWRegister(nodeID string) *LWWRegister {
	return &LWWRegister{
		ownerID: nodeID,
		bias:    BiasHighestNode,
	}
}

// NewLWWRegisterWithBias создает регистр с явной политикой ничьей.
func NewLWWRegisterWithBias(nodeID string, bias Bias) *LWWRegister {
	return &LWWRegister{
		ownerID: nodeID,
		bias:    bias,
	}
}

// Set записывает значение с заданным timestamp от имени локального узла.
// Запись применяется только если она побеждает текущую по правилам LWW,
// иначе это тихий no-op. Возвращает true, если значение было записано.
func (r *LWWRegister) Set(value json.RawMessage, timestamp int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.shouldUpdate(timestamp, r.ownerID) {
		return false
	}

	r.value = append(json.RawMessage(nil), value...)
	r.timestamp = timestamp
	r.nodeID = r.ownerID
	return true
}

// Value возвращает текущее значение регистра вместе с его timestamp и nodeID.
func (r *LWWRegister) Value() (json.RawMessage, int64, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append(json.RawMessage(nil), r.value...), r.timestamp, r.nodeID
}

// Merge сливает удаленное состояние по правилам LWW.
// Возвращает true, если локальное состояние изменилось.
// Операция коммутативна и идемпотентна: повторное слияние того же
// состояния ничего не меняет.
func (r *LWWRegister) Merge(remote LWWRegisterState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.shouldUpdate(remote.Timestamp, remote.NodeID) {
		return false
	}

	r.value = append(json.RawMessage(nil), remote.Value...)
	r.timestamp = remote.Timestamp
	r.nodeID = remote.NodeID
	return true
}

// shouldUpdate проверяет, побеждает ли кандидат текущую запись.
// 1. Больший timestamp выигрывает
// 2. При равных timestamps nodeID сравниваются согласно bias
// Вызывается под мьютексом.
func (r *LWWRegister) shouldUpdate(timestamp int64, nodeID string) bool {
	// Пустой регистр всегда принимает первую запись
	if r.timestamp == 0 && r.nodeID == "" {
		return true
	}
	if timestamp > r.timestamp {
		return true
	}
	if timestamp < r.timestamp {
		return false
	}
	// Повторное применение собственного состояния - no-op
	if nodeID == r.nodeID {
		return false
	}

	if r.bias == BiasLowestNode {
		return nodeID < r.nodeID
	}
	return nodeID > r.nodeID
}

// State возвращает копию текущего состояния для сериализации.
func (r *LWWRegister) State() LWWRegisterState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return LWWRegisterState{
		Value:     append(json.RawMessage(nil), r.value...),
		Timestamp: r.timestamp,
		NodeID:    r.nodeID,
	}
}

// MarshalState сериализует состояние регистра в JSON.
func (r *LWWRegister) MarshalState() ([]byte, error) {
	return json.Marshal(r.State())
}

// UnmarshalState восстанавливает состояние регистра из JSON.
func (r *LWWRegister) UnmarshalState(data []byte) error {
	var state LWWRegisterState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal lww-register state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.value = state.Value
	r.timestamp = state.Timestamp
	r.nodeID = state.NodeID
	return nil
}

// MergeLWWStates выбирает побеждающее из двух сериализованных состояний
// регистра по правилам LWW с заданной политикой ничьей.
func MergeLWWStates(a, b LWWRegisterState, bias Bias) LWWRegisterState {
	if b.Timestamp > a.Timestamp {
		return b
	}
	if b.Timestamp < a.Timestamp {
		return a
	}

	if bias == BiasLowestNode {
		if b.NodeID < a.NodeID {
			return b
		}
		return a
	}
	if b.NodeID > a.NodeID {
		return b
	}
	return a
}
