package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads the first env file found among envFilePath (searching parent
// directories), falling back to ./.env, then processes the environment.
func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()
	logger.Info("Loading environment variables")

	for _, path := range envFilePath {
		foundPath, err := FindEnvFile(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path, "error", err)
			continue
		}
		if err := godotenv.Load(foundPath); err != nil {
			logger.Error("Failed to load environment file", "path", foundPath, "error", err)
			continue
		}
		logger.Info("Loaded environment from file", "path", foundPath)
		return loadFromEnv()
	}

	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found in current directory")
	}
	return loadFromEnv()
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Default().Info("App config loaded",
		"env", cfg.Env,
		"db_driver", cfg.DB.Driver,
		"db", maskValue(cfg.DB.Url),
		"event_bus", cfg.EventBus.Driver,
		"currency", cfg.Ledger.Currency,
		"allocation_default", cfg.Allocation.Default,
		"lock_enabled", cfg.Lock.Enabled,
		"rate_limit_max_requests", cfg.RateLimit.MaxRequests,
	)
	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (a *App) Validate() error {
	var errs []error
	switch a.DB.Driver {
	case "postgres":
		if a.DB.Url == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when DATABASE_DRIVER is postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q: want postgres or memory", a.DB.Driver))
	}
	switch a.EventBus.Driver {
	case "memory", "memory-async", "redis", "kafka":
	default:
		errs = append(errs, fmt.Errorf("EVENT_BUS_DRIVER %q: want memory, memory-async, redis or kafka", a.EventBus.Driver))
	}
	switch a.Allocation.CacheDriver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("ALLOCATION_CACHE_DRIVER %q: want memory or redis", a.Allocation.CacheDriver))
	}
	return errors.Join(errs...)
}

// RequireJwtSecret fails when no signing secret is configured. Only the HTTP
// server needs one.
func (a *App) RequireJwtSecret() error {
	if a.Auth == nil || a.Auth.Jwt == nil || a.Auth.Jwt.Secret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	return nil
}

func maskValue(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
