package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Scoring  ScoringConfig
	Realtime RealtimeConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSAllowedOrigins    string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	BootstrapAdminEmail   string
	BootstrapAdminPass    string
	BootstrapAdminName    string
}

// ScoringConfig controls the reward for resolving tickets.
type ScoringConfig struct {
	PointsPerResolution int64
}

// RealtimeConfig controls websocket fan-out.
type RealtimeConfig struct {
	SendBufferSize int
	RedisFanout    bool
	RedisChannel   string
}

// Load reads configuration from a .env file, if present, and the process
// environment. Malformed numeric or boolean values are reported together
// rather than silently replaced by defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		App:      loadApp(env),
		Postgres: loadPostgres(env),
		Redis:    loadRedis(env),
		Logger:   LoggerConfig{Level: env.str("LOG_LEVEL", "info")},
		Auth:     loadAuth(env),
		Scoring:  ScoringConfig{PointsPerResolution: int64(env.integer("SCORING_POINTS_PER_RESOLUTION", 10))},
		Realtime: loadRealtime(env),
	}
	if err := env.err(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadApp(env *envReader) AppConfig {
	return AppConfig{
		Name:                  env.str("APP_NAME", "helpdesk-service"),
		Env:                   env.str("APP_ENV", "development"),
		Host:                  env.str("APP_HOST", "0.0.0.0"),
		Port:                  env.str("APP_PORT", "8080"),
		Version:               env.str("APP_VERSION", "dev"),
		RequestTimeoutSeconds: env.integer("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		CORSAllowedOrigins:    env.str("CORS_ALLOWED_ORIGINS", "*"),
	}
}

func loadPostgres(env *envReader) PostgresConfig {
	return PostgresConfig{
		DSN:            env.str("POSTGRES_DSN", ""),
		MaxConns:       int32(env.integer("POSTGRES_MAX_CONNS", 10)),
		MinConns:       int32(env.integer("POSTGRES_MIN_CONNS", 2)),
		RunMigrations:  env.boolean("POSTGRES_RUN_MIGRATIONS", true),
		ConnMaxIdleSec: int32(env.integer("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
		ConnMaxLifeSec: int32(env.integer("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
	}
}

func loadRedis(env *envReader) RedisConfig {
	return RedisConfig{
		Addr:     env.str("REDIS_ADDR", "127.0.0.1:6379"),
		Password: env.str("REDIS_PASSWORD", ""),
		DB:       env.integer("REDIS_DB", 0),
	}
}

func loadAuth(env *envReader) AuthConfig {
	return AuthConfig{
		JWTSecret:             env.str("AUTH_JWT_SECRET", "dev-secret"),
		AccessTokenTTLMinutes: env.integer("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		BcryptCost:            env.integer("AUTH_BCRYPT_COST", 12),
		BootstrapAdminEmail:   env.str("AUTH_BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPass:    env.str("AUTH_BOOTSTRAP_ADMIN_PASSWORD", ""),
		BootstrapAdminName:    env.str("AUTH_BOOTSTRAP_ADMIN_NAME", "Administrator"),
	}
}

func loadRealtime(env *envReader) RealtimeConfig {
	return RealtimeConfig{
		SendBufferSize: env.integer("REALTIME_SEND_BUFFER", 256),
		RedisFanout:    env.boolean("REALTIME_REDIS_FANOUT", false),
		RedisChannel:   env.str("REALTIME_REDIS_CHANNEL", "helpdesk:ticket-events"),
	}
}

func (c *Config) validate() error {
	if c.Scoring.PointsPerResolution < 0 {
		return errors.New("invalid SCORING_POINTS_PER_RESOLUTION: must not be negative")
	}
	if c.Realtime.SendBufferSize <= 0 {
		return errors.New("invalid REALTIME_SEND_BUFFER: must be positive")
	}
	if c.Realtime.RedisFanout && strings.TrimSpace(c.Realtime.RedisChannel) == "" {
		return errors.New("REALTIME_REDIS_CHANNEL is required when REALTIME_REDIS_FANOUT is set")
	}
	if len(c.Auth.BootstrapAdminPass) > 72 {
		return errors.New("invalid AUTH_BOOTSTRAP_ADMIN_PASSWORD: must be at most 72 bytes")
	}
	if c.App.Env == "production" && c.Auth.JWTSecret == "dev-secret" {
		return errors.New("AUTH_JWT_SECRET must be set in production")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// AllowedOrigins returns the CORS origin list in fiber's comma separated form.
func (a AppConfig) AllowedOrigins() string {
	parts := strings.Split(a.CORSAllowedOrigins, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return "*"
	}
	return strings.Join(cleaned, ",")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// envReader looks up variables and collects parse failures.
type envReader struct {
	errs []error
}

func (r *envReader) str(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func (r *envReader) integer(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return parsed
}

func (r *envReader) boolean(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return parsed
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
