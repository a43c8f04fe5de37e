package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service. It is read once at
// startup and passed by value afterwards.
type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	Postgres     PostgresConfig     `envPrefix:"POSTGRES_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	RabbitMQ     RabbitMQConfig     `envPrefix:"RABBITMQ_"`
	Logger       LoggerConfig       `envPrefix:"LOG_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	InitialAdmin InitialAdminConfig `envPrefix:"INITIAL_ADMIN_"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"NAME" envDefault:"helpdesk-service"`
	Env                   string `env:"ENV" envDefault:"development"`
	Host                  string `env:"HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"PORT" envDefault:"8080"`
	Version               string `env:"VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string `env:"DSN"`
	MaxConns       int32  `env:"MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	MigrationsDir  string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	ConnMaxIdleSec int32  `env:"CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// RedisConfig holds Redis connection values. An empty Addr disables the
// role cache.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// RabbitMQConfig configures ticket event publishing. An empty URL keeps
// events in-process.
type RabbitMQConfig struct {
	URL                   string `env:"URL"`
	Exchange              string `env:"EXCHANGE" envDefault:"helpdesk.tickets"`
	PublishTimeoutSeconds int    `env:"PUBLISH_TIMEOUT_SECONDS" envDefault:"5"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"14"`
	Compress   bool   `env:"COMPRESS" envDefault:"true"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string  `env:"JWT_SECRET,required,notEmpty"`
	AccessTokenTTLMinutes int     `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"60"`
	BcryptCost            int     `env:"BCRYPT_COST" envDefault:"10"`
	TrustTokenRole        bool    `env:"TRUST_TOKEN_ROLE" envDefault:"false"`
	RoleCacheTTLSeconds   int     `env:"ROLE_CACHE_TTL_SECONDS" envDefault:"30"`
	RateLimitRPS          float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst        int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

// InitialAdminConfig seeds the first administrator. Seeding is skipped when
// Email is empty.
type InitialAdminConfig struct {
	Name     string `env:"NAME" envDefault:"Administrator"`
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

// Load reads configuration from .env (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.InitialAdmin.Email != "" && c.InitialAdmin.Password == "" {
		return errors.New("INITIAL_ADMIN_PASSWORD is required when INITIAL_ADMIN_EMAIL is set")
	}
	if c.Auth.AccessTokenTTLMinutes <= 0 {
		return fmt.Errorf("invalid AUTH_ACCESS_TOKEN_TTL_MINUTES: %d", c.Auth.AccessTokenTTLMinutes)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the signed token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RoleCacheTTL returns how long a resolved role may be served from cache.
func (a AuthConfig) RoleCacheTTL() time.Duration {
	if a.RoleCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RoleCacheTTLSeconds) * time.Second
}

// PublishTimeout bounds a single broker publish.
func (r RabbitMQConfig) PublishTimeout() time.Duration {
	if r.PublishTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.PublishTimeoutSeconds) * time.Second
}
