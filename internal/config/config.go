package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del cliente y del proveedor de identidad.
type Config struct {
	HTTPPort         string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	DBMaxConns       int           `env:"DB_MAX_CONNS" envDefault:"4"`
	DBMinConns       int           `env:"DB_MIN_CONNS" envDefault:"0"`
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	LogDebug         bool          `env:"LOG_DEBUG" envDefault:"false"`

	IdentityBaseURL    string        `env:"IDENTITY_BASE_URL" envDefault:"http://localhost:8080/v1"`
	JWTSecret          string        `env:"JWT_SECRET"`
	ProviderSessionTTL time.Duration `env:"PROVIDER_SESSION_TTL" envDefault:"720h"`

	SessionTTL              time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionValidateInterval time.Duration `env:"SESSION_VALIDATE_INTERVAL" envDefault:"5m"`
	RemoteTimeout           time.Duration `env:"REMOTE_TIMEOUT" envDefault:"10s"`

	CacheBackend string `env:"CACHE_BACKEND" envDefault:"file"`
	CachePath    string `env:"CACHE_PATH" envDefault:".moviebox/session.json"`
}

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrInvalidDuration    = errors.New("durations must be positive")
	ErrUnknownCache       = errors.New("CACHE_BACKEND must be file, redis or memory")
	ErrInvalidPool        = errors.New("DB_MAX_CONNS must be positive and not below DB_MIN_CONNS")
)

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.SessionTTL <= 0 || cfg.SessionValidateInterval <= 0 || cfg.RemoteTimeout <= 0 || cfg.ProviderSessionTTL <= 0 || cfg.DBConnectTimeout <= 0 {
		return nil, ErrInvalidDuration
	}
	if cfg.DBMaxConns <= 0 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, ErrInvalidPool
	}
	switch cfg.CacheBackend {
	case "file", "redis", "memory":
	default:
		return nil, ErrUnknownCache
	}
	return &cfg, nil
}

// ValidateClient verifica lo que necesita el binario cliente.
func (c *Config) ValidateClient() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// ValidateProvider verifica lo que necesita el proveedor de identidad.
func (c *Config) ValidateProvider() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}
