package initializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/carefund/infra"
	infracache "github.com/amirasaad/carefund/infra/cache"
	infraeventbus "github.com/amirasaad/carefund/infra/eventbus"
	infralock "github.com/amirasaad/carefund/infra/lock"
	infrarepository "github.com/amirasaad/carefund/infra/repository"
	"github.com/amirasaad/carefund/infra/repository/memory"
	"github.com/amirasaad/carefund/pkg/cache"
	"github.com/amirasaad/carefund/pkg/config"
	"github.com/amirasaad/carefund/pkg/eventbus"
	"github.com/amirasaad/carefund/pkg/lock"
	"github.com/amirasaad/carefund/pkg/metrics"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/redis/go-redis/v9"
)

const asyncQueueSize = 256

// InitializeDependencies initializes all the application dependencies.
// Callers own the returned Deps and must Close it.
func InitializeDependencies(cfg *config.App) (*config.Deps, error) {
	logger := NewLogger(cfg.Log)
	deps := &config.Deps{Logger: logger, Config: cfg, Metrics: metrics.New()}
	var err error
	defer func() {
		if err != nil {
			if cerr := deps.Close(); cerr != nil {
				logger.Warn("Releasing partially initialized dependencies failed", "error", cerr)
			}
		}
	}()

	deps.Uow, err = initUnitOfWork(cfg, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps.EventBus, err = initEventBus(cfg, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}

	var client *redis.Client
	if cfg.Allocation.CacheDriver == "redis" || (cfg.Lock != nil && cfg.Lock.Enabled) {
		client, err = newRedisClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Closers = append(deps.Closers, client.Close)
	}

	deps.RuleCache = initRuleCache(cfg, client, deps, logger)
	deps.Locker = initLocker(cfg, client, logger)

	logger.Info("Dependencies initialized",
		"db_driver", cfg.DB.Driver,
		"event_bus", cfg.EventBus.Driver,
		"rule_cache", cfg.Allocation.CacheDriver,
		"distributed_lock", client != nil && cfg.Lock != nil && cfg.Lock.Enabled,
	)
	return deps, nil
}

func initUnitOfWork(cfg *config.App, deps *config.Deps, logger *slog.Logger) (repository.UnitOfWork, error) {
	if cfg.DB.Driver == "memory" {
		logger.Warn("Using in-memory storage; data is lost on restart")
		return memory.NewUoW(), nil
	}

	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	deps.Closers = append(deps.Closers, sqlDB.Close)

	if cfg.DB.AutoMigrate {
		if err := infra.RunMigrations(db, cfg.DB.MigrationsPath, logger); err != nil {
			return nil, err
		}
	}
	return infrarepository.NewUoW(db), nil
}

// initEventBus selects the bus by driver. A broker that cannot be reached
// degrades to the in-process async bus; a missing setting is an error.
func initEventBus(cfg *config.App, deps *config.Deps, logger *slog.Logger) (eventbus.Bus, error) {
	busCfg := cfg.EventBus
	if busCfg == nil {
		busCfg = &config.EventBus{}
	}
	fallback := func(cause error) eventbus.Bus {
		logger.Warn("Event bus unreachable, falling back to memory-async", "driver", busCfg.Driver, "error", cause)
		return newMemoryAsync(deps, logger)
	}

	switch busCfg.Driver {
	case "memory":
		return infraeventbus.NewWithMemory(logger), nil
	case "", "memory-async":
		return newMemoryAsync(deps, logger), nil
	case "redis":
		if cfg.Redis == nil || cfg.Redis.URL == "" {
			return nil, errors.New("REDIS_URL is required for the redis event bus")
		}
		bus, err := infraeventbus.NewWithRedis(cfg.Redis.URL, infraeventbus.RedisConfig{
			Stream: busCfg.Stream,
			Group:  busCfg.Group,
		}, logger)
		if err != nil {
			return fallback(err), nil
		}
		deps.Closers = append(deps.Closers, func() error { bus.Close(); return nil })
		return bus, nil
	case "kafka":
		if len(busCfg.Brokers) == 0 {
			return nil, errors.New("EVENT_BUS_BROKERS is required for the kafka event bus")
		}
		bus, err := infraeventbus.NewWithKafka(busCfg.Brokers, infraeventbus.KafkaConfig{
			GroupID:       busCfg.Group,
			TopicPrefix:   busCfg.TopicPrefix,
			SASLUsername:  busCfg.SASLUser,
			SASLPassword:  busCfg.SASLPass,
			TLSEnabled:    busCfg.TLSEnabled,
			TLSSkipVerify: busCfg.TLSInsecure,
		}, logger)
		if err != nil {
			return fallback(err), nil
		}
		deps.Closers = append(deps.Closers, bus.Close)
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus driver %q", busCfg.Driver)
	}
}

func newMemoryAsync(deps *config.Deps, logger *slog.Logger) eventbus.Bus {
	bus := infraeventbus.NewWithMemoryAsync(logger, asyncQueueSize)
	deps.Closers = append(deps.Closers, func() error { bus.Close(); return nil })
	return bus
}

func newRedisClient(cfg *config.Redis) (*redis.Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("REDIS_URL is not set")
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func initRuleCache(cfg *config.App, client *redis.Client, deps *config.Deps, logger *slog.Logger) cache.RuleCache {
	if cfg.Allocation.CacheDriver == "redis" && client != nil {
		remote := infracache.NewRedisRuleCache(client, cfg.Redis.KeyPrefix, logger)
		return infracache.NewBreakerCache(remote, "allocation-rules", 5, 30*time.Second, logger)
	}
	mc := infracache.NewMemoryCache()
	deps.Closers = append(deps.Closers, func() error { mc.Close(); return nil })
	return mc
}

func initLocker(cfg *config.App, client *redis.Client, logger *slog.Logger) lock.Locker {
	if cfg.Lock == nil || !cfg.Lock.Enabled || client == nil {
		return lock.Noop{}
	}
	return infralock.NewRedsyncLocker(client, infralock.Options{
		Expiry:     cfg.Lock.Expiry,
		Tries:      cfg.Lock.Tries,
		RetryDelay: cfg.Lock.RetryDelay,
		Prefix:     cfg.Redis.KeyPrefix,
	}, logger)
}
