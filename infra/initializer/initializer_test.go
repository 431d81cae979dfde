package initializer

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	infracache "github.com/amirasaad/carefund/infra/cache"
	infraeventbus "github.com/amirasaad/carefund/infra/eventbus"
	infralock "github.com/amirasaad/carefund/infra/lock"
	"github.com/amirasaad/carefund/infra/repository/memory"
	"github.com/amirasaad/carefund/pkg/config"
	"github.com/amirasaad/carefund/pkg/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func memoryConfig() *config.App {
	return &config.App{
		Env:        "test",
		Log:        &config.Log{Format: "text"},
		DB:         &config.DB{Driver: "memory"},
		EventBus:   &config.EventBus{Driver: "memory"},
		Redis:      &config.Redis{KeyPrefix: "carefund:"},
		Allocation: &config.Allocation{CacheDriver: "memory"},
		Lock:       &config.Lock{},
	}
}

func TestInitEventBus_DefaultsToMemoryAsyncWhenNoExplicitDriver(t *testing.T) {
	deps := &config.Deps{}
	cfg := &config.App{EventBus: &config.EventBus{Driver: ""}}

	bus, err := initEventBus(cfg, deps, discard())
	require.NoError(t, err)
	require.IsType(t, &infraeventbus.MemoryAsyncEventBus{}, bus)
	require.Len(t, deps.Closers, 1)
	require.NoError(t, deps.Close())
}

func TestInitEventBus_ExplicitRedisRequiresURL(t *testing.T) {
	cfg := &config.App{
		Redis:    &config.Redis{URL: ""},
		EventBus: &config.EventBus{Driver: "redis", Stream: "s", Group: "g"},
	}
	_, err := initEventBus(cfg, &config.Deps{}, discard())
	require.Error(t, err)
}

func TestInitEventBus_RedisConnectionErrorFallsBackToMemoryAsync(t *testing.T) {
	deps := &config.Deps{}
	cfg := &config.App{
		Redis:    &config.Redis{URL: "redis://127.0.0.1:1"},
		EventBus: &config.EventBus{Driver: "redis", Stream: "s", Group: "g"},
	}
	bus, err := initEventBus(cfg, deps, discard())
	require.NoError(t, err)
	require.IsType(t, &infraeventbus.MemoryAsyncEventBus{}, bus)
	require.NoError(t, deps.Close())
}

func TestInitEventBus_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	deps := &config.Deps{}
	cfg := &config.App{
		Redis:    &config.Redis{URL: "redis://" + mr.Addr()},
		EventBus: &config.EventBus{Driver: "redis", Stream: "carefund-events", Group: "carefund"},
	}
	bus, err := initEventBus(cfg, deps, discard())
	require.NoError(t, err)
	require.IsType(t, &infraeventbus.RedisEventBus{}, bus)
	require.NoError(t, deps.Close())
}

func TestInitEventBus_ExplicitKafkaRequiresBrokers(t *testing.T) {
	cfg := &config.App{EventBus: &config.EventBus{Driver: "kafka"}}
	_, err := initEventBus(cfg, &config.Deps{}, discard())
	require.Error(t, err)
}

func TestInitEventBus_KafkaConnectionErrorFallsBackToMemoryAsync(t *testing.T) {
	deps := &config.Deps{}
	cfg := &config.App{EventBus: &config.EventBus{Driver: "kafka", Brokers: []string{"127.0.0.1:1"}}}
	bus, err := initEventBus(cfg, deps, discard())
	require.NoError(t, err)
	require.IsType(t, &infraeventbus.MemoryAsyncEventBus{}, bus)
	require.NoError(t, deps.Close())
}

func TestInitEventBus_UnsupportedDriverErrors(t *testing.T) {
	cfg := &config.App{EventBus: &config.EventBus{Driver: "nope"}}
	_, err := initEventBus(cfg, &config.Deps{}, discard())
	require.Error(t, err)
}

func TestInitializeDependencies_Memory(t *testing.T) {
	deps, err := InitializeDependencies(memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	assert.IsType(t, &memory.UoW{}, deps.Uow)
	assert.IsType(t, &infraeventbus.MemoryEventBus{}, deps.EventBus)
	assert.IsType(t, &infracache.MemoryCache{}, deps.RuleCache)
	assert.Equal(t, lock.Noop{}, deps.Locker)
	assert.NotNil(t, deps.Metrics)
}

func TestInitializeDependencies_RedisCacheAndLock(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Allocation.CacheDriver = "redis"
	cfg.Lock.Enabled = true

	deps, err := InitializeDependencies(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	assert.IsType(t, &infracache.BreakerCache{}, deps.RuleCache)
	assert.IsType(t, &infralock.RedsyncLocker{}, deps.Locker)
}

func TestInitializeDependencies_PostgresWithoutURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.DB.Driver = "postgres"

	var (
		deps *config.Deps
		err  error
	)
	require.NotPanics(t, func() { deps, err = InitializeDependencies(cfg) })
	require.Error(t, err)
	assert.Nil(t, deps)
}

func TestInitializeDependencies_UnreachableRedisReleasesEarlierDeps(t *testing.T) {
	cfg := memoryConfig()
	cfg.EventBus.Driver = "memory-async"
	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	cfg.Redis.DialTimeout = 100 * time.Millisecond
	cfg.Lock.Enabled = true

	var (
		deps *config.Deps
		err  error
	)
	require.NotPanics(t, func() { deps, err = InitializeDependencies(cfg) })
	require.ErrorContains(t, err, "redis")
	assert.Nil(t, deps)
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Log{Format: "json", Prefix: "[test]"})
	logger.Info("Transfer completed", "reference", "TRANSFER_1")

	out := buf.String()
	assert.Contains(t, out, `"msg":"Transfer completed"`)
	assert.Contains(t, out, `"reference":"TRANSFER_1"`)
}
