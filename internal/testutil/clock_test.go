package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_StartsAtStart(t *testing.T) {
	clock := NewDeterministicClock(1000)
	assert.Equal(t, int64(1000), clock.Current())
}

func TestDeterministicClock_NextIncrementsMonotonically(t *testing.T) {
	clock := NewDeterministicClock(1000)

	assert.Equal(t, int64(1001), clock.Next())
	assert.Equal(t, int64(1002), clock.Next())
	assert.Equal(t, int64(1003), clock.Next())
	assert.Equal(t, int64(1003), clock.Current())
}

func TestDeterministicClock_Now(t *testing.T) {
	clock := NewDeterministicClock(1700000000)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), clock.Now())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(5)
	clock.Next()
	clock.Next()

	clock.Reset()
	assert.Equal(t, int64(5), clock.Current())
	assert.Equal(t, int64(6), clock.Next())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(0)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]int64, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]int64, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, rs := range results {
		for _, v := range rs {
			assert.False(t, seen[v], "duplicate timestamp %d", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), clock.Current())
}
