package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel      string // "debug" | "info" | "warn" | "error"
	PrettyLog     bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile       string // optional, rotated JSON log file
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	OwnerID string // the user whose collection this process serves
	Backend string // "redis" | "sqlite"

	RemoteTimeout    time.Duration // bound of a single remote call
	Concurrency      int           // parallel remote calls of bulk operations
	UndoWindow       time.Duration // how long a delete can be undone
	UndoCapacity     int           // max undo entries kept
	UndoSweep        time.Duration // interval of the undo sweeper
	TombstoneTTL     time.Duration // how long deleted ids block late insert echoes
	ExtensionTimeout time.Duration // open_group round trip bound (default: 250ms)
	ExtensionOrigins []string      // origin patterns accepted on /ws/extension
	ImportBatchSize  int
	ExportBatchSize  int
	ReloadInterval   time.Duration // periodic snapshot reload, 0 = manual only

	MetadataTimeout   time.Duration
	MetadataUserAgent string
	MetadataCacheTTL  time.Duration

	// Redis
	RedisAddr             string        // ex: "localhost:6379" or redis:// URL
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// SQLite
	SQLiteDSN string // file path or modernc DSN

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	RateLimit    int      // requests per minute per client IP, 0 = unlimited
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SHELF_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SHELF_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:      getenv("SHELF_LOG_LEVEL", "info"),
		PrettyLog:     mustBool("SHELF_PRETTY_LOG", true),
		LogFile:       getenv("SHELF_LOG_FILE", ""),
		LogMaxSizeMB:  getenvInt("SHELF_LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getenvInt("SHELF_LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getenvInt("SHELF_LOG_MAX_AGE_DAYS", 14),

		// Engine
		OwnerID:          requireEnv("SHELF_OWNER_ID"),
		Backend:          strings.ToLower(getenv("SHELF_BACKEND", BackendRedis)),
		RemoteTimeout:    mustDuration("SHELF_REMOTE_TIMEOUT", 10*time.Second),
		Concurrency:      getenvInt("SHELF_CONCURRENCY", 4),
		UndoWindow:       mustDuration("SHELF_UNDO_WINDOW", 10*time.Second),
		UndoCapacity:     getenvInt("SHELF_UNDO_CAPACITY", 20),
		UndoSweep:        mustDuration("SHELF_UNDO_SWEEP_INTERVAL", 5*time.Second),
		TombstoneTTL:     mustDuration("SHELF_TOMBSTONE_TTL", 10*time.Minute),
		ExtensionTimeout: mustDuration("SHELF_EXTENSION_TIMEOUT", 250*time.Millisecond),
		ExtensionOrigins: splitAndTrim(getenv("SHELF_EXTENSION_ORIGINS", "")),
		ImportBatchSize:  getenvInt("SHELF_IMPORT_BATCH_SIZE", 25),
		ExportBatchSize:  getenvInt("SHELF_EXPORT_BATCH_SIZE", 5),
		ReloadInterval:   mustDuration("SHELF_RELOAD_INTERVAL", 5*time.Minute),

		// Metadata extraction
		MetadataTimeout:   mustDuration("SHELF_METADATA_TIMEOUT", 10*time.Second),
		MetadataUserAgent: getenv("SHELF_METADATA_USER_AGENT", "shelf/1.0 (+metadata)"),
		MetadataCacheTTL:  mustDuration("SHELF_METADATA_CACHE_TTL", 24*time.Hour),

		// Redis settings
		RedisAddr:             getenv("SHELF_REDIS_ADDR", ""),
		RedisUser:             getenv("SHELF_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("SHELF_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("SHELF_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("SHELF_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// SQLite settings
		SQLiteDSN: getenv("SHELF_SQLITE_DSN", "shelf.db"),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("SHELF_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("SHELF_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("SHELF_TRUST_PROXY", false),
		RateLimit:    getenvInt("SHELF_RATE_LIMIT", 0),
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// Validate checks the settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("SHELF_REDIS_ADDR is required when SHELF_BACKEND=%s", BackendRedis)
		}
		if c.RedisPasswordRequired && c.RedisPassword == "" {
			return fmt.Errorf("SHELF_REDIS_PASSWORD is required when SHELF_REDIS_PASSWORD_REQUIRED=true")
		}
	case BackendSQLite:
		if c.SQLiteDSN == "" {
			return fmt.Errorf("SHELF_SQLITE_DSN is required when SHELF_BACKEND=%s", BackendSQLite)
		}
	default:
		return fmt.Errorf("unknown SHELF_BACKEND %q (want %s or %s)", c.Backend, BackendRedis, BackendSQLite)
	}
	if c.UndoWindow <= 0 {
		return fmt.Errorf("SHELF_UNDO_WINDOW must be positive")
	}
	if c.ExtensionTimeout <= 0 {
		return fmt.Errorf("SHELF_EXTENSION_TIMEOUT must be positive")
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
