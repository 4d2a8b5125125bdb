package standing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	t.Run("serializes the same key", func(t *testing.T) {
		var (
			mu      sync.Mutex
			inside  int
			maxSeen int
			wg      sync.WaitGroup
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, "k")
				if !assert.NoError(t, err) {
					return
				}
				defer unlock()

				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
		assert.Empty(t, locker.locks, "released keys are forgotten")
	})

	t.Run("other keys are independent", func(t *testing.T) {
		unlockA, err := locker.Lock(ctx, "a")
		require.NoError(t, err)
		defer unlockA()

		unlockB, err := locker.Lock(ctx, "b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("gives up when ctx is done", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "busy")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, "busy")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		unlock()
		unlock() // releasing twice is harmless
		locker.mu.Lock()
		assert.NotContains(t, locker.locks, "busy")
		locker.mu.Unlock()
	})
}
