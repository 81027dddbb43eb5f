package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	gen := NewIdGenerator()
	require.NotNil(t, gen)
	assert.Equal(t, Invalid, gen.Last())
	assert.Equal(t, uint64(1), gen.Next())
	assert.Equal(t, uint64(1), gen.Last())
}

func TestIdGenerator_Next_sequential(t *testing.T) {
	gen := NewIdGenerator()
	for want := uint64(1); want <= 10; want++ {
		assert.Equal(t, want, gen.Next())
	}
}

func TestIdGenerator_Next_concurrent(t *testing.T) {
	gen := NewIdGenerator()
	const n = 500
	ids := make([]uint64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			ids[idx] = gen.Next()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		assert.NotEqual(t, Invalid, id)
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, uint64(n), gen.Last())
}

func TestIdGenerator_independent(t *testing.T) {
	gen1 := NewIdGenerator()
	gen2 := NewIdGenerator()

	assert.Equal(t, uint64(1), gen1.Next())
	assert.Equal(t, uint64(1), gen2.Next())
	assert.Equal(t, uint64(2), gen1.Next())
}
