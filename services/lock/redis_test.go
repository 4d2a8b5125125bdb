package locksvc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examoffice/core"
)

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(&core.Config{Redis: core.RedisConfig{Addr: addr}})
	require.NoError(t, err)
	defer client.Close()

	locker := NewRedisLocker(client, time.Second, core.NopLogger{})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, t.Name())
	require.NoError(t, err)

	t.Run("held key blocks until ctx is done", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err := locker.Lock(ctx, t.Name()+"-other")
		require.NoError(t, err) // different key
		_, err = locker.Lock(ctx, "TestRedisLocker")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	unlock()
	unlock2, err := locker.Lock(ctx, t.Name())
	require.NoError(t, err)
	unlock2()
}
