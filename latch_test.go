package nijika

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountDownLatch_ReleasesAllWaiters(t *testing.T) {
	latch := NewCountDownLatch(3)

	var released atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			latch.Wait()
			released.Add(1)
		}()
	}

	latch.CountDown()
	latch.CountDown()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), released.Load(), "waiters must block until the count reaches zero")
	assert.Equal(t, 1, latch.Count())

	latch.CountDown()
	wg.Wait()
	assert.Equal(t, int32(5), released.Load())
	assert.Equal(t, 0, latch.Count())
}

func TestCountDownLatch_ExtraCountDownIgnored(t *testing.T) {
	latch := NewCountDownLatch(1)
	latch.CountDown()
	assert.NotPanics(t, func() {
		latch.CountDown()
		latch.CountDown()
	})
	assert.Equal(t, 0, latch.Count())
	latch.Wait()
}

func TestCountDownLatch_ZeroIsOpen(t *testing.T) {
	for _, n := range []int{0, -3} {
		latch := NewCountDownLatch(n)
		assert.Equal(t, 0, latch.Count())
		select {
		case <-latch.Done():
		default:
			t.Fatalf("latch created with %d should be open", n)
		}
	}
}

func TestCountDownLatch_WaitContext(t *testing.T) {
	latch := NewCountDownLatch(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := latch.WaitContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go latch.CountDown()
	require.NoError(t, latch.WaitContext(context.Background()))
}
