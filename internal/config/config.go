package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the lab portal.
type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	API        APIConfig
	TokenStore TokenStoreConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	Access     AccessConfig
	Metrics    MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig controls session lifetime and background checks.
type SessionConfig struct {
	Timeout            time.Duration
	RefreshWarning     time.Duration
	AutoRefresh        bool
	CheckInterval      time.Duration
	ActivityResolution time.Duration
	MaxLoginAttempts   int
	LoginLockout       time.Duration
}

// APIConfig points at the identity service.
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// TokenStoreConfig selects where tokens are persisted.
type TokenStoreConfig struct {
	Backend   string
	Namespace string
	FilePath  string
}

// RedisConfig carries Redis connection details for the redis token backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// AccessConfig holds the portal's well-known redirect targets.
type AccessConfig struct {
	HomePath  string
	LoginPath string
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("LABPORTAL_HOST", "0.0.0.0"),
			Port:         getInt("LABPORTAL_PORT", 8080),
			ReadTimeout:  getDuration("LABPORTAL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("LABPORTAL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("LABPORTAL_IDLE_TIMEOUT", 60*time.Second),
		},
		Session: SessionConfig{
			Timeout:            time.Duration(getInt("LABPORTAL_SESSION_TIMEOUT_MINUTES", 30)) * time.Minute,
			RefreshWarning:     time.Duration(getInt("LABPORTAL_REFRESH_WARNING_MINUTES", 5)) * time.Minute,
			AutoRefresh:        getBool("LABPORTAL_AUTO_REFRESH", true),
			CheckInterval:      getDuration("LABPORTAL_SESSION_CHECK_INTERVAL", 30*time.Second),
			ActivityResolution: getDuration("LABPORTAL_ACTIVITY_RESOLUTION", time.Second),
			MaxLoginAttempts:   getInt("LABPORTAL_MAX_LOGIN_ATTEMPTS", 5),
			LoginLockout:       getDuration("LABPORTAL_LOGIN_LOCKOUT", 15*time.Minute),
		},
		API: APIConfig{
			BaseURL:   strings.TrimRight(getString("LABPORTAL_API_BASE_URL", "http://localhost:8000/api/v1"), "/"),
			Timeout:   getDuration("LABPORTAL_API_TIMEOUT", 15*time.Second),
			RateLimit: getFloat("LABPORTAL_API_RATE_LIMIT", 10),
			Burst:     getInt("LABPORTAL_API_BURST", 20),
		},
		TokenStore: TokenStoreConfig{
			Backend:   strings.ToLower(getString("LABPORTAL_TOKEN_BACKEND", "file")),
			Namespace: getString("LABPORTAL_TOKEN_NAMESPACE", "labportal"),
			FilePath:  getString("LABPORTAL_TOKEN_FILE", defaultTokenFile()),
		},
		Redis: RedisConfig{
			Addr:     getString("REDIS_ADDR", "localhost:6379"),
			Password: getString("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			TTL:      getDuration("REDIS_TOKEN_TTL", 0),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "labportal_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "labportal"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Access: AccessConfig{
			HomePath:  getString("LABPORTAL_HOME_PATH", "/dashboard"),
			LoginPath: getString("LABPORTAL_LOGIN_PATH", "/auth/login"),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("LABPORTAL_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	var errs []error

	if c.Session.Timeout <= 0 {
		errs = append(errs, errors.New("LABPORTAL_SESSION_TIMEOUT_MINUTES must be positive"))
	}
	if c.Session.RefreshWarning < 0 {
		errs = append(errs, errors.New("LABPORTAL_REFRESH_WARNING_MINUTES must not be negative"))
	}
	if c.Session.CheckInterval <= 0 {
		errs = append(errs, errors.New("LABPORTAL_SESSION_CHECK_INTERVAL must be positive"))
	}
	if c.Session.MaxLoginAttempts < 0 {
		errs = append(errs, errors.New("LABPORTAL_MAX_LOGIN_ATTEMPTS must not be negative"))
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("LABPORTAL_API_BASE_URL %q is not an absolute URL", c.API.BaseURL))
	}
	switch c.TokenStore.Backend {
	case "memory", "file", "redis", "postgres":
	default:
		errs = append(errs, fmt.Errorf("LABPORTAL_TOKEN_BACKEND %q is not one of memory, file, redis, postgres", c.TokenStore.Backend))
	}
	if !strings.HasPrefix(c.Access.HomePath, "/") || !strings.HasPrefix(c.Access.LoginPath, "/") {
		errs = append(errs, errors.New("access paths must start with /"))
	}

	return errors.Join(errs...)
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "labportal", "tokens.json")
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
