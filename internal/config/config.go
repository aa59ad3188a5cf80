package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Admin        AdminConfig
	Realtime     RealtimeConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
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

// RedisConfig holds Redis connection values. Each process mirrors presence into
// its own hash under PresenceKey, named by InstanceID (generated when empty).
type RedisConfig struct {
	Addr               string
	Password           string
	DB                 int
	PresenceKey        string
	PresenceTTLSeconds int
	InstanceID         string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Encoding    string
	Development bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// AdminConfig seeds the default system manager on first start.
type AdminConfig struct {
	Name     string
	Email    string
	Password string
}

// RealtimeConfig controls the websocket listener and presence bookkeeping.
type RealtimeConfig struct {
	Host                     string
	Port                     string
	HeartbeatIntervalSeconds int
	HeartbeatTimeoutSeconds  int
	SendBuffer               int
	AllowedOrigins           []string
	ReconcileSeconds         int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "complaint-portal"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "5000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:               getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:           os.Getenv("REDIS_PASSWORD"),
			DB:                 redisDB,
			PresenceKey:        getEnv("REDIS_PRESENCE_KEY", "presence:online"),
			PresenceTTLSeconds: getEnvAsInt("REDIS_PRESENCE_TTL_SECONDS", 90),
			InstanceID:         os.Getenv("INSTANCE_ID"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    getEnv("LOG_ENCODING", "json"),
			Development: getEnv("APP_ENV", "development") == "development",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 24*60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 10),
		},
		Admin: AdminConfig{
			Name:     getEnv("ADMIN_NAME", "System Manager"),
			Email:    getEnv("ADMIN_EMAIL", "admin@kmc.gov.in"),
			Password: getEnv("ADMIN_PASSWORD", "admin123"),
		},
		Realtime: RealtimeConfig{
			Host:                     getEnv("REALTIME_HOST", "0.0.0.0"),
			Port:                     getEnv("REALTIME_PORT", "5001"),
			HeartbeatIntervalSeconds: getEnvAsInt("WS_HEARTBEAT_INTERVAL_SECONDS", 25),
			HeartbeatTimeoutSeconds:  getEnvAsInt("WS_HEARTBEAT_TIMEOUT_SECONDS", 20),
			SendBuffer:               getEnvAsInt("WS_SEND_BUFFER", 32),
			AllowedOrigins:           getEnvAsList("WS_ALLOWED_ORIGINS"),
			ReconcileSeconds:         getEnvAsInt("PRESENCE_RECONCILE_SECONDS", 15),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
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

// TokenTTL returns the lifetime of issued session credentials.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// PresenceTTL returns the expiry of this instance's presence hash.
func (r RedisConfig) PresenceTTL() time.Duration {
	return secondsOr(r.PresenceTTLSeconds, 90*time.Second)
}

// Addr returns the websocket bind address.
func (r RealtimeConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// HeartbeatInterval returns how often live connections are pinged.
func (r RealtimeConfig) HeartbeatInterval() time.Duration {
	return secondsOr(r.HeartbeatIntervalSeconds, 25*time.Second)
}

// HeartbeatTimeout bounds how long a ping may wait for its pong.
func (r RealtimeConfig) HeartbeatTimeout() time.Duration {
	return secondsOr(r.HeartbeatTimeoutSeconds, 20*time.Second)
}

// ReconcileInterval returns the presence retry cycle.
func (r RealtimeConfig) ReconcileInterval() time.Duration {
	return secondsOr(r.ReconcileSeconds, 15*time.Second)
}

func secondsOr(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
