// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/kavach/internal/behavior"
	"github.com/opensource-finance/kavach/internal/domain"
	"github.com/opensource-finance/kavach/internal/risk"
)

var (
	ErrInvalidPort        = errors.New("server port must be between 1 and 65535")
	ErrInvalidDriver      = errors.New("repository driver must be sqlite or postgres")
	ErrInvalidCache       = errors.New("cache type must be memory or redis")
	ErrInvalidBus         = errors.New("event bus type must be channel or nats")
	ErrInvalidProfiles    = errors.New("profile store must be repository or cache")
	ErrInvalidVelocity    = errors.New("velocity source must be repository or cache")
	ErrInvalidWindow      = errors.New("velocity window must be positive")
	ErrInvalidWorkerCount = errors.New("worker count must be positive in async mode")
	ErrInvalidRateLimit   = errors.New("rate limit burst must be positive when rps is set")
)

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present. KAVACH_TIER=pro starts from the Pro
// defaults; every other KAVACH_* variable overrides a single field.
func Load() (*domain.Config, error) {
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if domain.Tier(getEnv("KAVACH_TIER", string(domain.TierCommunity))) == domain.TierPro {
		cfg = domain.ProConfig()
	}

	// Server
	cfg.Server.Host = getEnv("KAVACH_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("KAVACH_PORT", cfg.Server.Port)
	cfg.Server.Async = getEnvBool("KAVACH_ASYNC", cfg.Server.Async)
	cfg.Server.WorkerCount = getEnvInt("KAVACH_WORKER_COUNT", cfg.Server.WorkerCount)

	// Repository
	cfg.Repository.Driver = getEnv("KAVACH_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("KAVACH_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("KAVACH_PG_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("KAVACH_PG_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("KAVACH_PG_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("KAVACH_PG_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("KAVACH_PG_DATABASE", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("KAVACH_PG_SSLMODE", cfg.Repository.PostgresSSLMode)

	// Cache
	cfg.Cache.Type = getEnv("KAVACH_CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = getEnv("KAVACH_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("KAVACH_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("KAVACH_REDIS_DB", cfg.Cache.RedisDB)

	// Event bus
	cfg.EventBus.Type = getEnv("KAVACH_BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = getEnv("KAVACH_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("KAVACH_NATS_TOKEN", cfg.EventBus.NATSToken)

	// Profiles and scoring
	cfg.Profiles.Store = getEnv("KAVACH_PROFILE_STORE", cfg.Profiles.Store)
	cfg.Profiles.FailurePolicy = getEnv("KAVACH_FAILURE_POLICY", cfg.Profiles.FailurePolicy)
	cfg.Scoring.TimeBands = getEnv("KAVACH_TIME_BANDS", cfg.Scoring.TimeBands)
	cfg.Scoring.TrustTiering = getEnv("KAVACH_TRUST_TIERING", cfg.Scoring.TrustTiering)
	cfg.Scoring.VelocitySource = getEnv("KAVACH_VELOCITY_SOURCE", cfg.Scoring.VelocitySource)
	cfg.Scoring.VelocityWindow = getEnvDuration("KAVACH_VELOCITY_WINDOW", cfg.Scoring.VelocityWindow)
	cfg.Scoring.VelocityThreshold = getEnvInt("KAVACH_VELOCITY_THRESHOLD", cfg.Scoring.VelocityThreshold)
	cfg.Scoring.BehaviorVelocityThreshold = getEnvInt("KAVACH_BEHAVIOR_VELOCITY_THRESHOLD", cfg.Scoring.BehaviorVelocityThreshold)
	cfg.Scoring.AmountChecksNeedHistory = getEnvBool("KAVACH_AMOUNT_CHECKS_NEED_HISTORY", cfg.Scoring.AmountChecksNeedHistory)

	// Edge protection
	cfg.Auth.JWTSecret = getEnv("KAVACH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.RateLimit.RPS = getEnvFloat("KAVACH_RATE_LIMIT_RPS", cfg.RateLimit.RPS)
	cfg.RateLimit.Burst = getEnvInt("KAVACH_RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	// Observability
	if getEnvBool("KAVACH_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Level = getEnv("KAVACH_LOG_LEVEL", cfg.Logging.Level)
	cfg.Tracing.Endpoint = getEnv("KAVACH_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Enabled = cfg.Tracing.Endpoint != ""
	cfg.Tracing.ServiceName = getEnv("KAVACH_SERVICE_NAME", cfg.Tracing.ServiceName)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent settings.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Server.Port)
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCache, cfg.Cache.Type)
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.RedisAddr == "" {
		return errors.New("KAVACH_REDIS_ADDR is required for the redis cache")
	}

	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBus, cfg.EventBus.Type)
	}
	if cfg.EventBus.Type == "nats" && cfg.EventBus.NATSUrl == "" {
		return errors.New("KAVACH_NATS_URL is required for the nats bus")
	}

	switch cfg.Profiles.Store {
	case "repository", "cache":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProfiles, cfg.Profiles.Store)
	}
	if _, err := behavior.ParseFailurePolicy(cfg.Profiles.FailurePolicy); err != nil {
		return err
	}
	if _, err := risk.ParseTimeBandMode(cfg.Scoring.TimeBands); err != nil {
		return err
	}
	if _, err := behavior.ParseTrustTiering(cfg.Scoring.TrustTiering); err != nil {
		return err
	}
	switch cfg.Scoring.VelocitySource {
	case "repository", "cache":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidVelocity, cfg.Scoring.VelocitySource)
	}
	if cfg.Scoring.VelocityWindow <= 0 {
		return ErrInvalidWindow
	}
	if cfg.Scoring.BehaviorVelocityThreshold < 0 {
		return fmt.Errorf("behavior velocity threshold must not be negative: %d", cfg.Scoring.BehaviorVelocityThreshold)
	}

	if cfg.Server.Async && cfg.Server.WorkerCount <= 0 {
		return ErrInvalidWorkerCount
	}
	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst <= 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
