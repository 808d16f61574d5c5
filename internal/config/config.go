package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Log    LogConfig
	QR     QRConfig
	Redis  RedisConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// In production, always set DB_PASSWORD via environment variable and set
// DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"coupon_engine"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// QRConfig holds the QR token signing key ring. Keys maps key version to
// secret; ActiveVersion selects the signing key. Old versions stay in the
// map so previously issued tokens keep verifying after a rotation.
type QRConfig struct {
	Keys          map[string]string `envconfig:"QR_SIGNING_KEYS" required:"true"` // e.g. "v1:supersecret,v2:newersecret"
	ActiveVersion string            `envconfig:"QR_ACTIVE_KEY_VERSION" default:"v1"`
}

// KeyRing converts the configured keys to raw bytes.
func (c QRConfig) KeyRing() map[string][]byte {
	ring := make(map[string][]byte, len(c.Keys))
	for version, secret := range c.Keys {
		ring[version] = []byte(secret)
	}
	return ring
}

// RedisConfig holds the optional template cache configuration.
// An empty Addr disables caching.
type RedisConfig struct {
	Addr       string `envconfig:"REDIS_ADDR" default:""`
	Password   string `envconfig:"REDIS_PASSWORD" default:""`
	DB         int    `envconfig:"REDIS_DB" default:"0"`
	TTLSeconds int    `envconfig:"REDIS_COUPON_TTL" default:"300"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
