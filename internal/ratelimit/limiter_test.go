package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/clock"
)

func TestLimiter_Allow(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(1000, 0))
	l := NewLimiter(3, time.Minute, clk)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("192.0.2.1"), "request %d", i+1)
	}
	assert.False(t, l.Allow("192.0.2.1"))
	assert.True(t, l.Allow("192.0.2.2"), "keys are independent")

	clk.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, l.RetryAfter("192.0.2.1"))
	assert.Zero(t, l.RetryAfter("192.0.2.2"))

	clk.Advance(40 * time.Second)
	assert.True(t, l.Allow("192.0.2.1"), "window reset")
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(1, time.Minute, nil)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
	l.Reset("k")
	assert.True(t, l.Allow("k"))
}

func TestLimiter_Prune(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(1000, 0))
	l := NewLimiter(5, time.Minute, clk)
	l.Allow("old")
	clk.Advance(45 * time.Second)
	l.Allow("new")
	clk.Advance(30 * time.Second)

	n, err := l.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l := NewLimiter(500, time.Minute, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if l.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500, allowed)
}
