package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCounter_Increment(t *testing.T) {
	c := NewGCounter("node-a")

	require.NoError(t, c.Increment(5))
	require.NoError(t, c.Increment(3))

	assert.Equal(t, int64(8), c.Value())
}

func TestGCounter_Increment_NegativeRejected(t *testing.T) {
	c := NewGCounter("node-a")

	err := c.Increment(-1)

	require.Error(t, err)
	assert.Equal(t, int64(0), c.Value(), "rejected increment must not change value")
}

func TestGCounter_Merge_TwoReplicas(t *testing.T) {
	// Две реплики инкрементируют независимо, затем обмениваются состояниями
	a := NewGCounter("a")
	b := NewGCounter("b")

	require.NoError(t, a.Increment(3))
	require.NoError(t, b.Increment(5))

	assert.True(t, a.Merge(b.State()))
	assert.True(t, b.Merge(a.State()))

	assert.Equal(t, int64(8), a.Value())
	assert.Equal(t, int64(8), b.Value())
}

func TestGCounter_Merge_Idempotent(t *testing.T) {
	a := NewGCounter("a")
	b := NewGCounter("b")

	require.NoError(t, b.Increment(7))

	state := b.State()
	assert.True(t, a.Merge(state), "first merge should change state")
	assert.False(t, a.Merge(state), "second merge of same state should be a no-op")
	assert.Equal(t, int64(7), a.Value())
}

func TestGCounter_Merge_Commutative(t *testing.T) {
	a := NewGCounter("a")
	b := NewGCounter("b")
	require.NoError(t, a.Increment(3))
	require.NoError(t, b.Increment(5))

	stateA := a.State()
	stateB := b.State()

	// Слияние в разном порядке дает одинаковый результат
	first := NewGCounter("x")
	first.Merge(stateA)
	first.Merge(stateB)

	second := NewGCounter("x")
	second.Merge(stateB)
	second.Merge(stateA)

	assert.Equal(t, first.Value(), second.Value())
	assert.Equal(t, int64(8), first.Value())
}

func TestGCounter_Merge_PerNodeMax(t *testing.T) {
	// Merge не суммирует, а берет максимум по каждому узлу
	a := NewGCounter("a")
	require.NoError(t, a.Increment(10))

	stale := GCounterState{Counts: map[string]int64{"a": 4, "b": 2}}
	assert.True(t, a.Merge(stale))

	assert.Equal(t, int64(12), a.Value(), "a stays at 10, b adopted as 2")
}

func TestGCounter_StateRoundTrip(t *testing.T) {
	a := NewGCounter("a")
	require.NoError(t, a.Increment(42))

	data, err := a.MarshalState()
	require.NoError(t, err)

	restored := NewGCounter("a")
	require.NoError(t, restored.UnmarshalState(data))

	assert.Equal(t, int64(42), restored.Value())
}

func TestMergeGCounterStates(t *testing.T) {
	a := GCounterState{Counts: map[string]int64{"a": 3, "b": 1}}
	b := GCounterState{Counts: map[string]int64{"b": 5, "c": 2}}

	merged := MergeGCounterStates(a, b)

	assert.Equal(t, int64(3), merged.Counts["a"])
	assert.Equal(t, int64(5), merged.Counts["b"])
	assert.Equal(t, int64(2), merged.Counts["c"])
}
