package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// Scheduler controls the aggregation loop.
	Scheduler SchedulerConfig

	// Analytics controls the federated query router.
	Analytics AnalyticsConfig

	// Cycle defaults applied when a subscriber has no provisioned cycle.
	Cycle CycleConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type SchedulerConfig struct {
	RunInterval    time.Duration
	BatchSize      int
	Workers        int
	MaxRunDuration time.Duration
	LeaseTTL       time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

type AnalyticsConfig struct {
	RetentionDays  int
	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration
	LocalTimeout   time.Duration
}

type CycleConfig struct {
	DefaultDataLimitBytes uint64
	DefaultSMSLimit       uint32
	DefaultLengthDays     int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "telemetra"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "telemetra"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),

		Scheduler: SchedulerConfig{
			RunInterval:    getenvDuration("AGGREGATION_RUN_INTERVAL", 5*time.Minute),
			BatchSize:      getenvInt("AGGREGATION_BATCH_SIZE", 500),
			Workers:        getenvInt("AGGREGATION_WORKERS", 8),
			MaxRunDuration: getenvDuration("AGGREGATION_MAX_RUN_DURATION", 4*time.Minute),
			LeaseTTL:       getenvDuration("AGGREGATION_LEASE_TTL", 5*time.Minute),
			RetryAttempts:  getenvInt("AGGREGATION_RETRY_ATTEMPTS", 3),
			RetryBaseDelay: getenvDuration("AGGREGATION_RETRY_BASE_DELAY", 250*time.Millisecond),
		},

		Analytics: AnalyticsConfig{
			RetentionDays:  getenvInt("ANALYTICS_RETENTION_DAYS", 180),
			BackendURL:     strings.TrimSpace(getenv("HISTORY_BACKEND_URL", "")),
			BackendToken:   strings.TrimSpace(getenv("HISTORY_BACKEND_TOKEN", "")),
			BackendTimeout: getenvDuration("HISTORY_BACKEND_TIMEOUT", 10*time.Second),
			LocalTimeout:   getenvDuration("ANALYTICS_LOCAL_TIMEOUT", 15*time.Second),
		},

		Cycle: CycleConfig{
			DefaultDataLimitBytes: getenvUint64("CYCLE_DEFAULT_DATA_LIMIT_BYTES", 10<<30),
			DefaultSMSLimit:       uint32(getenvInt("CYCLE_DEFAULT_SMS_LIMIT", 1000)),
			DefaultLengthDays:     getenvInt("CYCLE_DEFAULT_LENGTH_DAYS", 30),
		},

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvUint64(key string, def uint64) uint64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
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
	if err != nil {
		return def
	}
	return parsed
}
