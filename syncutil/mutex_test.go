package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	running := 0
	maxRunning := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, "key", func() error {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxRunning, "two holders ran at once for the same key")
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	holding := make(chan struct{})
	proceed := make(chan struct{})
	go func() {
		m.WithLock(ctx, "a", func() error {
			close(holding)
			<-proceed
			return nil
		})
	}()
	<-holding

	done := make(chan error, 1)
	go func() {
		done <- m.WithLock(ctx, "b", func() error { return nil })
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked behind key a")
	}
	close(proceed)
}

func TestKeyedMutexFIFOOrder(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	holding := make(chan struct{})
	proceed := make(chan struct{})
	go func() {
		m.WithLock(ctx, "key", func() error {
			close(holding)
			<-proceed
			return nil
		})
	}()
	<-holding

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.WithLock(ctx, "key", func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Stagger submissions so the queue order is deterministic.
		time.Sleep(10 * time.Millisecond)
	}

	close(proceed)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestKeyedMutexContextCancelWhileWaiting(t *testing.T) {
	m := NewKeyedMutex()

	holding := make(chan struct{})
	proceed := make(chan struct{})
	go func() {
		m.WithLock(context.Background(), "key", func() error {
			close(holding)
			<-proceed
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	ran := false
	go func() {
		errCh <- m.WithLock(ctx, "key", func() error {
			ran = true
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran, "fn ran despite cancellation")

	// The key must still be usable after the cancelled waiter left.
	close(proceed)
	require.NoError(t, m.WithLock(context.Background(), "key", func() error { return nil }))
}

func TestKeyedSemaphoreAllowsUpToN(t *testing.T) {
	s := NewKeyedSemaphore()
	ctx := context.Background()

	var mu sync.Mutex
	running := 0
	maxRunning := 0

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.WithSemaphore(ctx, "key", 3, func() error {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxRunning, 3)
	assert.Greater(t, maxRunning, 1, "semaphore never admitted concurrent holders")
}

func TestKeyedSemaphoreLimitFloor(t *testing.T) {
	s := NewKeyedSemaphore()
	err := s.WithSemaphore(context.Background(), "key", 0, func() error { return nil })
	require.NoError(t, err)
}
