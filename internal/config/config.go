package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default trusted proxies: RFC1918 private ranges plus localhost.
const defaultTrustedProxies = "127.0.0.1,::1,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"

// Config holds all application configuration
type Config struct {
	Port string

	// SQL storage (credentials, and admission state unless AdmissionStore is redis)
	DBType     string // "sqlite" or "postgresql"
	DBPath     string
	PostgreSQL *PostgreSQLConfig

	// AdmissionStore selects the block registry / rate limit backend: "sql" or "redis".
	AdmissionStore string
	Redis          *RedisConfig

	// Client identity
	TrustProxyHeaders string // "auto", "true", "false"
	TrustedProxyIPs   string // comma-separated IPs and CIDR ranges

	// Administrator bootstrap (both or neither)
	AdminUsername string
	AdminPassword string

	// Member tokens
	JWTSecret     string
	JWTTTLMinutes int

	// Admission policies
	PolicyFile string
	Policies   *PolicySet

	// Background pruning of stale rate limit windows
	PruneIntervalMinutes    int
	RateLimitRetentionHours int

	// HTTP server
	MaxConnections      int // 0 = unlimited
	ReadTimeoutSeconds  int
	WriteTimeoutSeconds int
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		DBType:                  strings.ToLower(getEnv("DB_TYPE", "sqlite")),
		DBPath:                  getEnv("DB_PATH", "./velvetrope.db"),
		AdmissionStore:          strings.ToLower(getEnv("ADMISSION_STORE", "sql")),
		TrustProxyHeaders:       strings.ToLower(getEnv("TRUST_PROXY_HEADERS", "auto")),
		TrustedProxyIPs:         getEnv("TRUSTED_PROXY_IPS", defaultTrustedProxies),
		AdminUsername:           getEnv("ADMIN_USERNAME", ""),
		AdminPassword:           getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		JWTTTLMinutes:           getEnvInt("JWT_TTL_MINUTES", 60),
		PolicyFile:              getEnv("ADMISSION_POLICY_FILE", ""),
		PruneIntervalMinutes:    getEnvInt("PRUNE_INTERVAL_MINUTES", 60),
		RateLimitRetentionHours: getEnvInt("RATE_LIMIT_RETENTION_HOURS", 24),
		MaxConnections:          getEnvInt("MAX_CONNECTIONS", 0),
		ReadTimeoutSeconds:      getEnvInt("READ_TIMEOUT_SECONDS", 15),
		WriteTimeoutSeconds:     getEnvInt("WRITE_TIMEOUT_SECONDS", 15),
	}

	if cfg.DBType == DBTypePostgreSQL {
		cfg.PostgreSQL = loadPostgreSQLConfig()
	}
	if cfg.AdmissionStore == AdmissionStoreRedis {
		cfg.Redis = loadRedisConfig()
	}

	defaults := EndpointPolicy{
		MaxRequests:         getEnvInt("DEFAULT_MAX_REQUESTS", 10),
		Window:              time.Duration(getEnvInt64("DEFAULT_WINDOW_MS", 60000)) * time.Millisecond,
		OnStorageError:      OnStorageErrorAllow,
		AutoBlockMultiplier: getEnvInt("AUTO_BLOCK_MULTIPLIER", 3),
		AutoBlockDuration:   time.Duration(getEnvInt("AUTO_BLOCK_MINUTES", 60)) * time.Minute,
	}
	policies := DefaultPolicies(defaults)
	if cfg.PolicyFile != "" {
		if err := policies.LoadFile(cfg.PolicyFile); err != nil {
			return nil, fmt.Errorf("failed to load admission policy file: %w", err)
		}
	}
	cfg.Policies = policies

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Supported DB_TYPE values.
const (
	DBTypeSQLite     = "sqlite"
	DBTypePostgreSQL = "postgresql"
)

// Supported ADMISSION_STORE values.
const (
	AdmissionStoreSQL   = "sql"
	AdmissionStoreRedis = "redis"
)

// validate ensures configuration values are sensible
func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	switch c.DBType {
	case DBTypeSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty when DB_TYPE=sqlite")
		}
	case DBTypePostgreSQL:
		if err := c.PostgreSQL.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("DB_TYPE must be 'sqlite' or 'postgresql', got '%s'", c.DBType)
	}

	switch c.AdmissionStore {
	case AdmissionStoreSQL:
	case AdmissionStoreRedis:
		if err := c.Redis.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("ADMISSION_STORE must be 'sql' or 'redis', got '%s'", c.AdmissionStore)
	}

	switch c.TrustProxyHeaders {
	case "auto", "true", "false":
	default:
		return fmt.Errorf("TRUST_PROXY_HEADERS must be 'auto', 'true', or 'false', got '%s'", c.TrustProxyHeaders)
	}

	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	if c.AdminPassword != "" && len(c.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be at least 8 characters")
	}

	// An empty secret is allowed; the server generates an ephemeral one.
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}
	if c.JWTTTLMinutes <= 0 {
		return fmt.Errorf("JWT_TTL_MINUTES must be positive, got %d", c.JWTTTLMinutes)
	}

	if c.PruneIntervalMinutes <= 0 {
		return fmt.Errorf("PRUNE_INTERVAL_MINUTES must be positive, got %d", c.PruneIntervalMinutes)
	}
	if c.RateLimitRetentionHours <= 0 {
		return fmt.Errorf("RATE_LIMIT_RETENTION_HOURS must be positive, got %d", c.RateLimitRetentionHours)
	}

	if c.MaxConnections < 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be 0 (unlimited) or positive, got %d", c.MaxConnections)
	}
	if c.ReadTimeoutSeconds <= 0 || c.WriteTimeoutSeconds <= 0 {
		return fmt.Errorf("READ_TIMEOUT_SECONDS and WRITE_TIMEOUT_SECONDS must be positive")
	}

	if err := c.Policies.Validate(); err != nil {
		return err
	}

	// Retention shorter than the longest window would prune live counters.
	retention := c.RateLimitRetention()
	if w := c.Policies.MaxWindow(); w > retention {
		return fmt.Errorf("RATE_LIMIT_RETENTION_HOURS (%s) must cover the longest policy window (%s)", retention, w)
	}

	return nil
}

// RateLimitRetention is how long a rate limit window is kept after it starts.
func (c *Config) RateLimitRetention() time.Duration {
	return time.Duration(c.RateLimitRetentionHours) * time.Hour
}

// PruneInterval is the period of the background pruning worker.
func (c *Config) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalMinutes) * time.Minute
}

// JWTTTL is the lifetime of issued member tokens.
func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves an int64 environment variable or returns a default value
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool accepts true/1/yes/on and false/0/no/off, case-insensitively.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}
