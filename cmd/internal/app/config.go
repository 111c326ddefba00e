package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Snapshot persistence selection, highest priority first:
	// DatabaseURL -> Postgres, DataDir -> Pebble, otherwise in-memory.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DataDir     string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Viewer identity. An empty id degrades to a guest session in the engine.
	SelfID     string
	SelfName   string
	SelfAvatar string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("ROAM_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("ROAM_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("ROAM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("ROAM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("ROAM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("ROAM_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("ROAM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("ROAM_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("ROAM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("ROAM_DB_MIN_CONNS", 0),
		DataDir:     EnvString("ROAM_DATA_DIR", ""),

		ReadinessRequireDB: EnvBool("ROAM_READINESS_REQUIRE_DB", false),

		SelfID:     EnvString("ROAM_SELF_ID", ""),
		SelfName:   EnvString("ROAM_SELF_NAME", ""),
		SelfAvatar: EnvString("ROAM_SELF_AVATAR", ""),
	}
}
