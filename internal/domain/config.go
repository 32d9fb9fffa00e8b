package domain

import "time"

// Config holds the complete Kavach configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier selects the backing infrastructure
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Scoring and profile settings
	Profiles ProfilesConfig `json:"profiles"`
	Scoring  ScoringConfig  `json:"scoring"`

	// Edge protection
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rateLimit"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// Async queues POST /transactions on the event bus instead of
	// scoring inline.
	Async       bool `json:"async"`
	WorkerCount int  `json:"workerCount"`
}

// ProfilesConfig selects where behavioral profiles live.
type ProfilesConfig struct {
	// Store is "repository" or "cache"
	Store string `json:"store"`

	// FailurePolicy is "fallback" or "fail-fast"
	FailurePolicy string `json:"failurePolicy"`
}

// ScoringConfig holds scorer tunables that are exposed to operators.
type ScoringConfig struct {
	// TimeBands is "exclusive" or "cumulative"
	TimeBands string `json:"timeBands"`

	// TrustTiering is "highest" or "cumulative"
	TrustTiering string `json:"trustTiering"`

	// VelocitySource is "repository" (count stored transactions) or
	// "cache" (sliding event windows)
	VelocitySource    string        `json:"velocitySource"`
	VelocityWindow    time.Duration `json:"velocityWindow"`
	VelocityThreshold int           `json:"velocityThreshold"`

	// BehaviorVelocityThreshold drives the detector's velocity check;
	// 0 turns it off.
	BehaviorVelocityThreshold int `json:"behaviorVelocityThreshold"`

	// AmountChecksNeedHistory skips the detector's amount checks for
	// profiles without transactions.
	AmountChecksNeedHistory bool `json:"amountChecksNeedHistory"`
}

// AuthConfig enables bearer-token auth when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `json:"-"`
}

// RateLimitConfig configures per-client rate limiting. Zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"` // OTLP gRPC host:port
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			WorkerCount:  4,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kavach.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Profiles: ProfilesConfig{
			Store:         "repository",
			FailurePolicy: "fallback",
		},
		Scoring: ScoringConfig{
			TimeBands:         "exclusive",
			TrustTiering:      "highest",
			VelocitySource:    "repository",
			VelocityWindow:    10 * time.Minute,
			VelocityThreshold: 3,

			BehaviorVelocityThreshold: 3,
		},
		RateLimit: RateLimitConfig{
			Burst: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kavach",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "kavach",
		PostgresSSLMode: "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "kavach",
	}
	cfg.Profiles.Store = "cache"
	cfg.Scoring.VelocitySource = "cache"
	return cfg
}
