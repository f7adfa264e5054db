package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Store engine names accepted by STORE_ENGINE.
const (
	EngineMemory = "memory"
	EngineRedis  = "redis"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Required variables are enforced by must() and a
// missing value causes the program to exit with a fatal log message; the
// tuning knobs fall back to defaults that match a single-node dev setup.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	Port   string // HTTP port to listen on
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	StoreEngine string // "memory" or "redis", controls lock and queue backends
	AMQPURL     string // broker URL for the confirm outbox, empty disables publishing

	QueueEnabled  bool          // when false, holds skip admission checks
	QueueCapacity int64         // number of users admitted concurrently per schedule
	PassTTL       time.Duration // lifetime of an issued admission pass
	HoldTTL       time.Duration // lifetime of a seat hold

	ReaperInterval time.Duration // how often expired holds are swept
	ReaperBatch    int           // max holds reclaimed per sweep

	OutboxInterval   time.Duration // outbox dispatcher poll interval
	OutboxBatch      int           // max events claimed per dispatcher pass
	OutboxMaxRetry   int           // publish attempts before an event is marked FAILED
	ConsumerMaxAge   time.Duration // settlement consumer skips events older than this
	ConsumerPrefetch int           // unacked message window on the settlement consumer

	SSEPingInterval time.Duration // keepalive interval on seat event streams
	SeatCacheTTL    time.Duration // snapshot cache lifetime for GET seat lists, 0 disables
	BypassEnabled   bool          // honor the load-test bypass header when true

	SeedScheduleID  uint64 // schedule populated at startup when SeedRows > 0
	SeedRows        int    // number of seat rows to seed (A, B, C, ...)
	SeedSeatsPerRow int    // seats per seeded row
	SeedPriceCents  uint64 // price applied to every seeded seat

	RateLimit RateLimitConfig
}

// Load reads configuration values from environment variables and returns a
// Config. Only the HTTP port and database coordinates are mandatory.
func Load() Config {
	return Config{
		Env:    envStr("APP_ENV", "dev"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		StoreEngine: envStr("STORE_ENGINE", EngineMemory),
		AMQPURL:     os.Getenv("AMQP_URL"),

		QueueEnabled:  envBool("QUEUE_ENABLED", true),
		QueueCapacity: int64(envInt("QUEUE_CAPACITY", 100)),
		PassTTL:       envDur("QUEUE_PASS_TTL", 5*time.Minute),
		HoldTTL:       envDur("HOLD_TTL", 2*time.Minute),

		ReaperInterval: envDur("REAPER_INTERVAL", 2*time.Second),
		ReaperBatch:    envInt("REAPER_BATCH", 500),

		OutboxInterval:   envDur("OUTBOX_INTERVAL", 300*time.Millisecond),
		OutboxBatch:      envInt("OUTBOX_BATCH", 100),
		OutboxMaxRetry:   envInt("OUTBOX_MAX_RETRY", 10),
		ConsumerMaxAge:   envDur("CONSUMER_MAX_AGE", 2*time.Minute),
		ConsumerPrefetch: envInt("OUTBOX_PREFETCH", 50),

		SSEPingInterval: envDur("SSE_PING_INTERVAL", 15*time.Second),
		SeatCacheTTL:    envDur("SEAT_CACHE_TTL", 0),
		BypassEnabled:   envBool("LOADTEST_BYPASS_ENABLED", false),

		SeedScheduleID:  uint64(envInt("SEED_SCHEDULE_ID", 1)),
		SeedRows:        envInt("SEED_ROWS", 0),
		SeedSeatsPerRow: envInt("SEED_SEATS_PER_ROW", 0),
		SeedPriceCents:  uint64(envInt("SEED_PRICE_CENTS", 120000)),

		RateLimit: LoadRateLimitConfig(),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
