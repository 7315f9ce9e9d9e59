// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment (e.g. "development", "production"). Selects the logger profile.
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StoreBackend selects the key-value engine: memory, file, redis or postgres.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// StoreFilePath is the JSON document used by the file backend.
	StoreFilePath string `mapstructure:"STORE_FILE_PATH"`
	// RedisURL is the redis:// URL used by the redis backend.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisKeyPrefix namespaces every key written by the redis backend.
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	// DatabaseURL is the Postgres DSN; required when STORE_BACKEND=postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// AuthBaseURL is the remote auth collaborator base URL (refresh and 2FA verification).
	AuthBaseURL string `mapstructure:"AUTH_BASE_URL"`
	// AuthTimeoutStr bounds each call to the auth collaborator (e.g. "10s").
	AuthTimeoutStr string `mapstructure:"AUTH_TIMEOUT"`

	SessionTTLStr        string `mapstructure:"SESSION_TTL"`
	InactivityTimeoutStr string `mapstructure:"SESSION_INACTIVITY_TIMEOUT"`
	RefreshWindowStr     string `mapstructure:"SESSION_REFRESH_WINDOW"`
	// ExpiryGraceStr tolerates a session slightly past expiresAt before it is cleared. Default 0s.
	ExpiryGraceStr string `mapstructure:"SESSION_EXPIRY_GRACE"`

	// EventLogCapacity is the FIFO cap of the security event log.
	EventLogCapacity int `mapstructure:"EVENT_LOG_CAPACITY"`
	// DetectorWindowStr is the lookback window of the suspicious activity detector.
	DetectorWindowStr string `mapstructure:"DETECTOR_WINDOW"`
	// DetectorMaxFailedLogins flags activity when failed logins in the window exceed it.
	DetectorMaxFailedLogins int `mapstructure:"DETECTOR_MAX_FAILED_LOGINS"`
	// DetectorMaxDevices flags activity when distinct login devices in the window exceed it.
	DetectorMaxDevices int `mapstructure:"DETECTOR_MAX_DEVICES"`

	// Argon2id work factor. Stored with every vault entry.
	KDFTime      uint32 `mapstructure:"KDF_TIME"`
	KDFMemoryKiB uint32 `mapstructure:"KDF_MEMORY_KIB"`
	KDFThreads   uint8  `mapstructure:"KDF_THREADS"`

	// PolicyFile is an optional Rego module overriding the default logout policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// OTelEndpoint is the OTLP gRPC collector (host:port). Empty keeps telemetry in-process.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure disables TLS on the OTLP connection.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// DevicePlatform and AppVersion are snapshotted into every session and event.
	DevicePlatform string `mapstructure:"DEVICE_PLATFORM"`
	AppVersion     string `mapstructure:"APP_VERSION"`

	// Dev auth stub only.
	AuthStubAddr  string `mapstructure:"AUTHSTUB_ADDR"`
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey  string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	BcryptCost    int    `mapstructure:"BCRYPT_COST"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", BackendFile)
	v.SetDefault("STORE_FILE_PATH", "./data/store.json")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("REDIS_KEY_PREFIX", "sv:")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTH_BASE_URL", "http://localhost:8090")
	v.SetDefault("AUTH_TIMEOUT", "10s")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_INACTIVITY_TIMEOUT", "30m")
	v.SetDefault("SESSION_REFRESH_WINDOW", "5m")
	v.SetDefault("SESSION_EXPIRY_GRACE", "0s")
	v.SetDefault("EVENT_LOG_CAPACITY", 100)
	v.SetDefault("DETECTOR_WINDOW", "1h")
	v.SetDefault("DETECTOR_MAX_FAILED_LOGINS", 5)
	v.SetDefault("DETECTOR_MAX_DEVICES", 3)
	v.SetDefault("KDF_TIME", 3)
	v.SetDefault("KDF_MEMORY_KIB", 64*1024)
	v.SetDefault("KDF_THREADS", 4)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("DEVICE_PLATFORM", runtime.GOOS)
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("AUTHSTUB_ADDR", ":8090")
	v.SetDefault("JWT_ISSUER", "sessionvault-auth")
	v.SetDefault("JWT_AUDIENCE", "sessionvault-client")
	v.SetDefault("BCRYPT_COST", 12)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field combinations that Load cannot default away.
func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendMemory:
	case BackendFile:
		if c.StoreFilePath == "" {
			return errors.New("config: STORE_FILE_PATH must be set when STORE_BACKEND=file")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when STORE_BACKEND=redis")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	default:
		return errors.New("config: STORE_BACKEND must be one of memory, file, redis, postgres")
	}

	if c.EventLogCapacity <= 0 {
		return errors.New("config: EVENT_LOG_CAPACITY must be positive")
	}
	if c.DetectorMaxFailedLogins < 0 || c.DetectorMaxDevices < 0 {
		return errors.New("config: detector thresholds must not be negative")
	}
	if c.KDFTime < 1 || c.KDFTime > 10 {
		return errors.New("config: KDF_TIME must be between 1 and 10")
	}
	if c.KDFMemoryKiB < 8*1024 || c.KDFMemoryKiB > 1024*1024 {
		return errors.New("config: KDF_MEMORY_KIB must be between 8192 and 1048576")
	}
	if c.KDFThreads < 1 || c.KDFThreads > 64 {
		return errors.New("config: KDF_THREADS must be between 1 and 64")
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AuthTimeout parses AuthTimeoutStr. Returns 10s if unset or invalid.
func (c *Config) AuthTimeout() time.Duration { return parseDuration(c.AuthTimeoutStr, 10*time.Second) }

// SessionTTL parses SessionTTLStr. Returns 24h if unset or invalid.
func (c *Config) SessionTTL() time.Duration { return parseDuration(c.SessionTTLStr, 24*time.Hour) }

// InactivityTimeout parses InactivityTimeoutStr. Returns 30m if unset or invalid.
func (c *Config) InactivityTimeout() time.Duration {
	return parseDuration(c.InactivityTimeoutStr, 30*time.Minute)
}

// RefreshWindow parses RefreshWindowStr. Returns 5m if unset or invalid.
func (c *Config) RefreshWindow() time.Duration {
	return parseDuration(c.RefreshWindowStr, 5*time.Minute)
}

// ExpiryGrace parses ExpiryGraceStr. Zero, negative or invalid values mean no grace.
func (c *Config) ExpiryGrace() time.Duration {
	d, err := time.ParseDuration(c.ExpiryGraceStr)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// DetectorWindow parses DetectorWindowStr. Returns 1h if unset or invalid.
func (c *Config) DetectorWindow() time.Duration {
	return parseDuration(c.DetectorWindowStr, time.Hour)
}
