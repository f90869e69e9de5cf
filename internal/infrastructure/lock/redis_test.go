package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container tests are skipped in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return "redis://" + endpoint + "/0"
}

func TestRedis_SharedAcrossProcesses(t *testing.T) {
	url := setupTestRedis(t)
	ctx := context.Background()

	// two lock instances stand in for two processes
	a, err := NewRedis(ctx, url, "chain_sync:lock:", time.Minute, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewRedis(ctx, url, "chain_sync:lock:", time.Minute, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	t.Run("skip if held", func(t *testing.T) {
		release, ok, err := a.TryAcquire(ctx, "realt:tokens")
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = b.TryAcquire(ctx, "realt:tokens")
		require.NoError(t, err)
		assert.False(t, ok, "held by the other process")

		_, ok, err = a.TryAcquire(ctx, "realt:tokens")
		require.NoError(t, err)
		assert.False(t, ok, "held by this process")

		other, ok, err := b.TryAcquire(ctx, "realt:holders")
		require.NoError(t, err)
		assert.True(t, ok, "keys are independent")
		other()

		release()
		again, ok, err := b.TryAcquire(ctx, "realt:tokens")
		require.NoError(t, err)
		assert.True(t, ok)
		again()
	})

	t.Run("release only deletes own token", func(t *testing.T) {
		release, ok, err := a.TryAcquire(ctx, "lofty:tokens")
		require.NoError(t, err)
		require.True(t, ok)

		// the lease expired and another process took the key over
		require.NoError(t, a.client.Set(ctx, "chain_sync:lock:lofty:tokens", "someone-else", time.Minute).Err())
		release()

		val, err := a.client.Get(ctx, "chain_sync:lock:lofty:tokens").Result()
		require.NoError(t, err)
		assert.Equal(t, "someone-else", val)

		_, ok, err = b.TryAcquire(ctx, "lofty:tokens")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lease expires", func(t *testing.T) {
		short, err := NewRedis(ctx, url, "chain_sync:lock:", time.Second, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = short.Close() })

		_, ok, err := short.TryAcquire(ctx, "reental:holders")
		require.NoError(t, err)
		require.True(t, ok)

		assert.Eventually(t, func() bool {
			release, ok, err := b.TryAcquire(ctx, "reental:holders")
			if err != nil || !ok {
				return false
			}
			release()
			return true
		}, 5*time.Second, 100*time.Millisecond)
	})
}
