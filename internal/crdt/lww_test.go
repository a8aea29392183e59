package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLWWRegister_SetAndValue(t *testing.T) {
	r := NewLWWRegister("node-a")

	ok := r.Set(json.RawMessage(`"hello"`), 10)
	require.True(t, ok)

	value, ts, nodeID := r.Value()
	assert.JSONEq(t, `"hello"`, string(value))
	assert.Equal(t, int64(10), ts)
	assert.Equal(t, "node-a", nodeID)
}

func TestLWWRegister_Set_OlderTimestampIsNoop(t *testing.T) {
	r := NewLWWRegister("node-a")
	require.True(t, r.Set(json.RawMessage(`"new"`), 20))

	// Запись с меньшим timestamp - тихий no-op, не ошибка
	ok := r.Set(json.RawMessage(`"old"`), 10)
	assert.False(t, ok)

	value, _, _ := r.Value()
	assert.JSONEq(t, `"new"`, string(value))
}

func TestLWWRegister_Merge_NewerWins(t *testing.T) {
	r := NewLWWRegister("node-a")
	require.True(t, r.Set(json.RawMessage(`"local"`), 10))

	changed := r.Merge(LWWRegisterState{
		Value:     json.RawMessage(`"remote"`),
		Timestamp: 20,
		NodeID:    "node-b",
	})

	assert.True(t, changed)
	value, ts, nodeID := r.Value()
	assert.JSONEq(t, `"remote"`, string(value))
	assert.Equal(t, int64(20), ts)
	assert.Equal(t, "node-b", nodeID)
}

func TestLWWRegister_Merge_Idempotent(t *testing.T) {
	r := NewLWWRegister("node-a")

	remote := LWWRegisterState{
		Value:     json.RawMessage(`"x"`),
		Timestamp: 5,
		NodeID:    "node-b",
	}

	assert.True(t, r.Merge(remote))
	assert.False(t, r.Merge(remote), "merging same state twice must not change anything")
}

func TestLWWRegister_TieBreak_Deterministic(t *testing.T) {
	// Равные timestamps, разные nodeID: победитель не зависит от порядка слияния
	stateA := LWWRegisterState{Value: json.RawMessage(`"from-a"`), Timestamp: 100, NodeID: "aaa"}
	stateB := LWWRegisterState{Value: json.RawMessage(`"from-b"`), Timestamp: 100, NodeID: "zzz"}

	first := NewLWWRegister("x")
	first.Merge(stateA)
	first.Merge(stateB)

	second := NewLWWRegister("x")
	second.Merge(stateB)
	second.Merge(stateA)

	valueFirst, _, nodeFirst := first.Value()
	valueSecond, _, nodeSecond := second.Value()

	assert.Equal(t, nodeFirst, nodeSecond)
	assert.Equal(t, string(valueFirst), string(valueSecond))
	// Политика по умолчанию: лексикографически больший nodeID побеждает
	assert.Equal(t, "zzz", nodeFirst)
}

func TestLWWRegister_TieBreak_LowestNodeBias(t *testing.T) {
	r := NewLWWRegisterWithBias("x", BiasLowestNode)

	r.Merge(LWWRegisterState{Value: json.RawMessage(`"from-z"`), Timestamp: 100, NodeID: "zzz"})
	r.Merge(LWWRegisterState{Value: json.RawMessage(`"from-a"`), Timestamp: 100, NodeID: "aaa"})

	_, _, nodeID := r.Value()
	assert.Equal(t, "aaa", nodeID)
}

func TestMergeLWWStates(t *testing.T) {
	tests := []struct {
		name   string
		a, b   LWWRegisterState
		bias   Bias
		winner string
	}{
		{
			name:   "later timestamp wins",
			a:      LWWRegisterState{Timestamp: 10, NodeID: "a"},
			b:      LWWRegisterState{Timestamp: 20, NodeID: "b"},
			bias:   BiasHighestNode,
			winner: "b",
		},
		{
			name:   "tie highest node bias",
			a:      LWWRegisterState{Timestamp: 10, NodeID: "a"},
			b:      LWWRegisterState{Timestamp: 10, NodeID: "b"},
			bias:   BiasHighestNode,
			winner: "b",
		},
		{
			name:   "tie lowest node bias",
			a:      LWWRegisterState{Timestamp: 10, NodeID: "a"},
			b:      LWWRegisterState{Timestamp: 10, NodeID: "b"},
			bias:   BiasLowestNode,
			winner: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := MergeLWWStates(tt.a, tt.b, tt.bias)
			assert.Equal(t, tt.winner, merged.NodeID)

			// Коммутативность выбора
			reversed := MergeLWWStates(tt.b, tt.a, tt.bias)
			assert.Equal(t, tt.winner, reversed.NodeID)
		})
	}
}

func TestLWWRegister_StateRoundTrip(t *testing.T) {
	r := NewLWWRegister("node-a")
	require.True(t, r.Set(json.RawMessage(`{"k":"v"}`), 7))

	data, err := r.MarshalState()
	require.NoError(t, err)

	restored := NewLWWRegister("node-a")
	require.NoError(t, restored.UnmarshalState(data))

	value, ts, nodeID := restored.Value()
	assert.JSONEq(t, `{"k":"v"}`, string(value))
	assert.Equal(t, int64(7), ts)
	assert.Equal(t, "node-a", nodeID)
}
