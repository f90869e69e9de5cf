package configloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, LockLocal, cfg.Lock.Driver)
	assert.Equal(t, 9*time.Hour, cfg.Cadence.Tokens)
	assert.Equal(t, 5*time.Minute, cfg.Cadence.Holders)
	assert.Equal(t, 10*time.Second, cfg.Network.RPCCallTimeout)
	assert.Equal(t, 100, cfg.Network.BalanceBatchSize)
	assert.True(t, cfg.Partner("realt").IsEnabled())
}

func TestParse_Overrides(t *testing.T) {
	doc := `
server:
  port: ":9000"
storage:
  driver: postgres
  dsn: postgres://u:p@localhost:5432/chain_sync
lock:
  driver: redis
  redisURL: redis://localhost:6379/0
  ttl: 2h
network:
  logBlockSpan: 5000
networks:
  - identifier: gnosis
    primaryRpcUrl: https://example.invalid/gnosis
partners:
  RealT:
    enabled: false
  reental:
    holders: false
    scheduler:
      maxConcurrent: 3
      minTime: 50ms
    api:
      url: https://example.invalid/graphql
      requestTimeout: 5s
cadence:
  tokens: 1h
  holders: 30s
  runOnStart: true
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Lock.TTL)
	assert.Equal(t, uint64(5000), cfg.Network.LogBlockSpan)
	require.Len(t, cfg.Networks, 1)
	assert.Equal(t, "https://example.invalid/gnosis", cfg.Networks[0].PrimaryRPCURL)

	assert.False(t, cfg.Partner("realt").IsEnabled())
	reental := cfg.Partner("reental")
	assert.True(t, reental.IsEnabled())
	require.NotNil(t, reental.Holders)
	assert.False(t, *reental.Holders)
	require.NotNil(t, reental.Scheduler)
	assert.Equal(t, 3, reental.Scheduler.MaxConcurrent)
	assert.Equal(t, 50*time.Millisecond, reental.Scheduler.MinTime)
	assert.Equal(t, 5*time.Second, reental.API.RequestTimeout)

	assert.Equal(t, time.Hour, cfg.Cadence.Tokens)
	assert.Equal(t, 30*time.Second, cfg.Cadence.Holders)
	assert.True(t, cfg.Cadence.RunOnStart)
}

func TestParse_Validation(t *testing.T) {
	_, err := Parse([]byte("storage:\n  driver: postgres\n"))
	assert.ErrorContains(t, err, "storage.dsn")

	_, err = Parse([]byte("lock:\n  driver: redis\n"))
	assert.ErrorContains(t, err, "lock.redisURL")

	_, err = Parse([]byte("storage:\n  driver: sqlite\n"))
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
