package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Empty DatabaseURL selects the in-memory identity store and the
	// log-only audit trail.
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// Empty RedisURL disables the session mirror; sessions then live only
	// for the lifetime of the process.
	RedisURL string

	SessionsPerUserMax int
	SessionsTotalMax   int
	WatchQueueSize     int

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("VIGIL_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("VIGIL_LOG_LEVEL", "info"),
		LogFormat: EnvString("VIGIL_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("VIGIL_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("VIGIL_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("VIGIL_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("VIGIL_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("VIGIL_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("VIGIL_DATABASE_URL", ""),
		DBSchema:    EnvString("VIGIL_DB_SCHEMA", "vigil"),
		DBMaxConns:  EnvInt32("VIGIL_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("VIGIL_DB_MIN_CONNS", 0),

		RedisURL: EnvString("VIGIL_REDIS_URL", ""),

		SessionsPerUserMax: EnvInt("VIGIL_SESSIONS_PER_USER_MAX", 64),
		SessionsTotalMax:   EnvInt("VIGIL_SESSIONS_TOTAL_MAX", 100_000),
		WatchQueueSize:     EnvInt("VIGIL_WATCH_QUEUE_SIZE", 16),

		ReadinessRequireDB: EnvBool("VIGIL_READINESS_REQUIRE_DB", false),
	}
}
