package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all tunable engine settings. It is built once at startup and
// injected into the scheduler loop and the retry governor; nothing reads
// ambient globals after construction.
type Config struct {
	Port      string
	JWTSecret string

	// Scheduler tick intervals, independently tunable per concern.
	ExpiryInterval    time.Duration
	OverdueInterval   time.Duration
	TriggerInterval   time.Duration
	SyncInterval      time.Duration
	WorkerPoolSize    int
	DiscoveryPageSize int

	// Retry/circuit governor policy.
	FailureThreshold   int
	SyncBaseInterval   time.Duration
	BackoffCapExponent int

	// Bounded retry for transient store failures.
	StoreRetryAttempts int

	// Default SLA applied when a workflow defines none.
	DefaultSLAHours int

	// Outbound HTTP timeout for webhook and integration calls.
	DispatchTimeout time.Duration
}

// Load reads configuration from the environment, with a best-effort .env file
// load first. Missing values fall back to defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port:      getEnv("PORT", "3001"),
		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		ExpiryInterval:    getEnvDuration("EXPIRY_CHECK_INTERVAL", time.Minute),
		OverdueInterval:   getEnvDuration("OVERDUE_CHECK_INTERVAL", time.Minute),
		TriggerInterval:   getEnvDuration("TRIGGER_CHECK_INTERVAL", time.Minute),
		SyncInterval:      getEnvDuration("SYNC_CHECK_INTERVAL", time.Minute),
		WorkerPoolSize:    getEnvInt("WORKER_POOL_SIZE", 8),
		DiscoveryPageSize: getEnvInt("DISCOVERY_PAGE_SIZE", 200),

		FailureThreshold:   getEnvInt("ENDPOINT_FAILURE_THRESHOLD", 3),
		SyncBaseInterval:   getEnvDuration("SYNC_BASE_INTERVAL", 5*time.Minute),
		BackoffCapExponent: getEnvInt("BACKOFF_CAP_EXPONENT", 4),

		StoreRetryAttempts: getEnvInt("STORE_RETRY_ATTEMPTS", 3),
		DefaultSLAHours:    getEnvInt("DEFAULT_SLA_HOURS", 48),
		DispatchTimeout:    getEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ Invalid value for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ Invalid value for %s: %q, using default %v", key, v, fallback)
		return fallback
	}
	return d
}
