package config

import "fmt"

// PostgreSQLConfig holds PostgreSQL connection settings.
type PostgreSQLConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string // disable, allow, prefer, require, verify-ca, verify-full
	Options        string // extra query parameters appended to the connection URL
	MaxConnections int
	AutoMigrate    bool
}

// loadPostgreSQLConfig loads PostgreSQL configuration from environment variables.
// Environment variables:
//   - POSTGRES_HOST (default: localhost)
//   - POSTGRES_PORT (default: 5432)
//   - POSTGRES_USER (default: velvetrope)
//   - POSTGRES_PASSWORD
//   - POSTGRES_DB (default: velvetrope)
//   - POSTGRES_SSLMODE (default: prefer)
//   - POSTGRES_OPTIONS
//   - POSTGRES_MAX_CONNECTIONS (default: 25)
//   - POSTGRES_AUTO_MIGRATE (default: true)
func loadPostgreSQLConfig() *PostgreSQLConfig {
	return &PostgreSQLConfig{
		Host:           getEnv("POSTGRES_HOST", "localhost"),
		Port:           getEnvInt("POSTGRES_PORT", 5432),
		User:           getEnv("POSTGRES_USER", "velvetrope"),
		Password:       getEnv("POSTGRES_PASSWORD", ""),
		Database:       getEnv("POSTGRES_DB", "velvetrope"),
		SSLMode:        getEnv("POSTGRES_SSLMODE", "prefer"),
		Options:        getEnv("POSTGRES_OPTIONS", ""),
		MaxConnections: getEnvInt("POSTGRES_MAX_CONNECTIONS", 25),
		AutoMigrate:    getEnvBool("POSTGRES_AUTO_MIGRATE", true),
	}
}

func (p *PostgreSQLConfig) validate() error {
	if p == nil {
		return fmt.Errorf("PostgreSQL configuration is missing")
	}
	if p.Host == "" {
		return fmt.Errorf("POSTGRES_HOST cannot be empty when DB_TYPE=postgresql")
	}
	if p.Database == "" {
		return fmt.Errorf("POSTGRES_DB cannot be empty when DB_TYPE=postgresql")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("POSTGRES_PORT must be between 1 and 65535, got %d", p.Port)
	}
	if p.MaxConnections <= 0 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive, got %d", p.MaxConnections)
	}
	switch p.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("POSTGRES_SSLMODE '%s' is not a valid sslmode", p.SSLMode)
	}
	return nil
}

// RedisConfig holds Redis connection settings for the admission store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// loadRedisConfig loads Redis configuration from environment variables.
// Environment variables:
//   - REDIS_ADDR (required when ADMISSION_STORE=redis)
//   - REDIS_PASSWORD
//   - REDIS_DB (default: 0)
//   - REDIS_KEY_PREFIX (default: velvetrope)
func loadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      getEnv("REDIS_ADDR", ""),
		Password:  getEnv("REDIS_PASSWORD", ""),
		DB:        getEnvInt("REDIS_DB", 0),
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "velvetrope"),
	}
}

func (r *RedisConfig) validate() error {
	if r == nil || r.Addr == "" {
		return fmt.Errorf("REDIS_ADDR cannot be empty when ADMISSION_STORE=redis")
	}
	if r.DB < 0 {
		return fmt.Errorf("REDIS_DB must be non-negative, got %d", r.DB)
	}
	if r.KeyPrefix == "" {
		return fmt.Errorf("REDIS_KEY_PREFIX cannot be empty")
	}
	return nil
}
