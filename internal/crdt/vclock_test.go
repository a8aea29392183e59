package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorClock_Increment(t *testing.T) {
	vc := NewVectorClock()

	assert.Equal(t, int64(1), vc.Increment("a"))
	assert.Equal(t, int64(2), vc.Increment("a"))
	assert.Equal(t, int64(1), vc.Increment("b"))
	assert.Equal(t, int64(2), vc.Get("a"))
}

func TestVectorClock_Compare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     VectorClock
		expected Ordering
	}{
		{
			name:     "equal empty",
			a:        VectorClock{},
			b:        VectorClock{},
			expected: OrderingEqual,
		},
		{
			name:     "equal same counters",
			a:        VectorClock{"a": 2, "b": 1},
			b:        VectorClock{"a": 2, "b": 1},
			expected: OrderingEqual,
		},
		{
			name:     "dominates",
			a:        VectorClock{"a": 3, "b": 1},
			b:        VectorClock{"a": 2, "b": 1},
			expected: OrderingDominates,
		},
		{
			name:     "dominated",
			a:        VectorClock{"a": 1},
			b:        VectorClock{"a": 1, "b": 2},
			expected: OrderingDominated,
		},
		{
			name:     "concurrent",
			a:        VectorClock{"a": 2, "b": 1},
			b:        VectorClock{"a": 1, "b": 2},
			expected: OrderingConcurrent,
		},
		{
			name:     "dominates with unknown node at zero",
			a:        VectorClock{"a": 1, "b": 0},
			b:        VectorClock{"a": 0},
			expected: OrderingDominates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Compare(tt.b))
		})
	}
}

func TestVectorClock_Merge(t *testing.T) {
	a := VectorClock{"a": 3, "b": 1}
	b := VectorClock{"b": 4, "c": 2}

	a.Merge(b)

	assert.Equal(t, int64(3), a.Get("a"))
	assert.Equal(t, int64(4), a.Get("b"))
	assert.Equal(t, int64(2), a.Get("c"))
}

func TestVectorClock_MergeThenCompare(t *testing.T) {
	// После слияния локальные часы доминируют или равны обоим источникам
	a := VectorClock{"a": 2}
	b := VectorClock{"b": 3}

	merged := a.Clone()
	merged.Merge(b)

	assert.NotEqual(t, OrderingDominated, merged.Compare(a))
	assert.NotEqual(t, OrderingDominated, merged.Compare(b))
	assert.NotEqual(t, OrderingConcurrent, merged.Compare(a))
}

func TestVectorClock_Clone(t *testing.T) {
	a := VectorClock{"a": 1}
	clone := a.Clone()

	clone.Increment("a")

	assert.Equal(t, int64(1), a.Get("a"), "clone must be independent")
	assert.Equal(t, int64(2), clone.Get("a"))
}
