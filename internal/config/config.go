package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlanConfigHolder),
)

// DefaultIdempotencyTTL is how long a cached mutation result stays authoritative.
const DefaultIdempotencyTTL = 24 * time.Hour

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis RedisConfig

	Sync        SyncConfig
	Idempotency IdempotencyConfig
	Usage       UsageConfig
	RateLimit   RateLimitConfig
	Events      EventsConfig
	Authz       AuthzConfig
}

// TelemetryConfig feeds the logger, tracer and OTLP metric exporter.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SyncConfig bounds the sync endpoints.
type SyncConfig struct {
	BatchTimeout     time.Duration
	MaxBatchSize     int
	FullPageSize     int
	FullMaxPageSize  int
	KeyLockEnabled   bool
	KeyLockTTL       time.Duration
	DefaultDocType   string
	ProfileCacheTTL  time.Duration
	SerializeRetries int
	// CommitLag is subtracted from the delta watermark so rows stamped just
	// before a slow commit are sent again on the next pull.
	CommitLag        time.Duration
}

type IdempotencyConfig struct {
	TTL           time.Duration
	StrictPayload bool
	SweepInterval time.Duration
	SweepBatch    int
}

type UsageConfig struct {
	Timezone         string
	NearLimitPercent int
}

type RateLimitConfig struct {
	Enabled        bool
	SyncBatchRate  float64
	SyncBatchBurst int
}

type EventsConfig struct {
	Enabled bool
	Channel string
}

type AuthzConfig struct {
	PolicyStore string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "billbook"),
		AppVersion:        getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment:       getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("NODE_ID", 1),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      getenv("LOG_LEVEL", "info"),
			LogFormat:     getenv("LOG_FORMAT", "json"),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelProtocol:  getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "billbook"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "billbook.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Sync: SyncConfig{
			BatchTimeout:     getenvDuration("SYNC_BATCH_TIMEOUT", 25*time.Second),
			MaxBatchSize:     getenvInt("SYNC_MAX_BATCH", 200),
			FullPageSize:     getenvInt("SYNC_FULL_PAGE_SIZE", 500),
			FullMaxPageSize:  getenvInt("SYNC_FULL_MAX_PAGE_SIZE", 2000),
			KeyLockEnabled:   getenvBool("SYNC_KEY_LOCK_ENABLED", false),
			KeyLockTTL:       getenvDuration("SYNC_KEY_LOCK_TTL", 30*time.Second),
			DefaultDocType:   getenv("SYNC_DEFAULT_DOCUMENT_TYPE", "invoice"),
			ProfileCacheTTL:  getenvDuration("BUSINESS_PROFILE_CACHE_TTL", 30*time.Second),
			SerializeRetries: getenvInt("SYNC_SERIALIZATION_RETRIES", 3),
			CommitLag:        getenvDuration("SYNC_COMMIT_LAG", 5*time.Second),
		},
		Idempotency: IdempotencyConfig{
			TTL:           getenvDuration("IDEMPOTENCY_TTL", DefaultIdempotencyTTL),
			StrictPayload: getenvBool("IDEMPOTENCY_STRICT_PAYLOAD", false),
			SweepInterval: getenvDuration("IDEMPOTENCY_SWEEP_INTERVAL", 15*time.Minute),
			SweepBatch:    getenvInt("IDEMPOTENCY_SWEEP_BATCH", 500),
		},
		Usage: UsageConfig{
			Timezone:         getenv("USAGE_TIMEZONE", "Asia/Kolkata"),
			NearLimitPercent: getenvInt("USAGE_NEAR_LIMIT_PERCENT", 80),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			SyncBatchRate:  getenvFloat("RATE_LIMIT_SYNC_BATCH_RATE", 5),
			SyncBatchBurst: getenvInt("RATE_LIMIT_SYNC_BATCH_BURST", 20),
		},
		Events: EventsConfig{
			Enabled: getenvBool("EVENTS_ENABLED", false),
			Channel: getenv("EVENTS_CHANNEL", "billbook.events"),
		},
		Authz: AuthzConfig{
			PolicyStore: strings.ToLower(getenv("AUTHZ_POLICY_STORE", "memory")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
