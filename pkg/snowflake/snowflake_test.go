package snowflake

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode_RejectsOutOfRange(t *testing.T) {
	_, err := NewNode(-1)
	assert.ErrorIs(t, err, ErrInvalidNode)
	_, err = NewNode(1024)
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestGenerate_IsStrictlyIncreasing(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	prev := n.Generate()
	for i := 0; i < 10000; i++ {
		id := n.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerate_ClockMovesBackwards(t *testing.T) {
	clock := int64(1_800_000_000_000)
	n, err := newNode(3, func() int64 { return clock })
	require.NoError(t, err)

	first := n.Generate()
	clock -= 5000
	second := n.Generate()

	assert.Greater(t, second, first)
	assert.Equal(t, int64(3), (second>>nodeShift)&nodeMax)
}

func TestGenerate_SequenceOverflowBorrowsNextMillisecond(t *testing.T) {
	n, err := newNode(0, func() int64 { return 1_800_000_000_000 })
	require.NoError(t, err)

	seen := make(map[int64]struct{})
	prev := int64(0)
	for i := 0; i < 3*(stepMask+1); i++ {
		id := n.Generate()
		require.Greater(t, id, prev)
		seen[id] = struct{}{}
		prev = id
	}
	assert.Len(t, seen, 3*(stepMask+1))
}

func TestGenerate_Concurrent(t *testing.T) {
	n, err := NewNode(7)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := n.Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8000)
}
