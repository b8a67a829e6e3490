// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN for the session_families system of record.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port backing the refresh mutex and revocation/jti caches.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the Redis password; empty for unauthenticated local Redis.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis logical database index.
	RedisDB int `mapstructure:"REDIS_DB"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "scp-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "scp-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// SessionTTL is the session-family lifetime; refresh tokens expire with the family (e.g. "720h" = 30d).
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// MutexTTL is the refresh-mutex lifetime; bounds how long a crashed holder can block rotation (e.g. "10s").
	MutexTTL string `mapstructure:"MUTEX_TTL"`
	// JTICacheTTL is the jti-to-family lookup cache lifetime (e.g. "1h").
	JTICacheTTL string `mapstructure:"JTI_CACHE_TTL"`
	// RevocationCacheTTL is the revoked-family fast-path cache lifetime (e.g. "24h").
	RevocationCacheTTL string `mapstructure:"REVOCATION_CACHE_TTL"`
	// RetentionWindow is how long expired or revoked families are kept before cleanup deletes them (e.g. "168h" = 7d).
	RetentionWindow string `mapstructure:"RETENTION_WINDOW"`
	// CleanupInterval is how often the worker runs session cleanup (e.g. "1h").
	CleanupInterval string `mapstructure:"CLEANUP_INTERVAL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// OTLPEndpoint is the OTLP collector endpoint for traces/metrics; empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ISSUER", "scp-auth")
	v.SetDefault("JWT_AUDIENCE", "scp-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("SESSION_TTL", "720h") // 30d
	v.SetDefault("MUTEX_TTL", "10s")
	v.SetDefault("JTI_CACHE_TTL", "1h")
	v.SetDefault("REVOCATION_CACHE_TTL", "24h")
	v.SetDefault("RETENTION_WINDOW", "168h") // 7d
	v.SetDefault("CLEANUP_INTERVAL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return nil, errors.New("config: REDIS_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return c.duration(c.JWTAccessTTL, 15*time.Minute)
}

// SessionLifetime parses SessionTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	return c.duration(c.SessionTTL, 720*time.Hour)
}

// RefreshMutexTTL parses MutexTTL as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) RefreshMutexTTL() time.Duration {
	return c.duration(c.MutexTTL, 10*time.Second)
}

// JTILookupTTL parses JTICacheTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) JTILookupTTL() time.Duration {
	return c.duration(c.JTICacheTTL, time.Hour)
}

// RevocationTTL parses RevocationCacheTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) RevocationTTL() time.Duration {
	return c.duration(c.RevocationCacheTTL, 24*time.Hour)
}

// Retention parses RetentionWindow as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) Retention() time.Duration {
	return c.duration(c.RetentionWindow, 168*time.Hour)
}

// CleanupEvery parses CleanupInterval as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) CleanupEvery() time.Duration {
	return c.duration(c.CleanupInterval, time.Hour)
}

func (c *Config) duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
