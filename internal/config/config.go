package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Backend  BackendConfig
	Database DatabaseConfig
	Session  SessionConfig
	Delivery DeliveryConfig
	App      AppConfig
}

// BackendConfig points the agent at the ERP backend.
type BackendConfig struct {
	APIBaseURL string
	PushURL    string
}

// DatabaseConfig holds the optional change-feed connection. The feed is
// enabled only when a host is configured; most deployments run on push and
// poll alone.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// SessionConfig locates the session file the authentication subsystem
// maintains.
type SessionConfig struct {
	Path string
}

// DeliveryConfig holds the cadence of the delivery pipeline.
type DeliveryConfig struct {
	PollInterval            time.Duration
	PollLimit               int
	ReconcileDelay          time.Duration
	CredentialCheckInterval time.Duration
	HealthCheckInterval     time.Duration
}

// AppConfig holds the local UI server configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	config := &Config{}

	config.Backend = BackendConfig{
		APIBaseURL: getEnv("API_BASE_URL", ""),
		PushURL:    getEnv("PUSH_URL", ""),
	}

	// Change-feed configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "consite"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	config.Session = SessionConfig{
		Path: getEnv("SESSION_FILE", defaultSessionPath()),
	}

	// Delivery configuration
	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	pollLimit, err := strconv.Atoi(getEnv("POLL_LIMIT", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_LIMIT: %w", err)
	}
	reconcileDelay, err := time.ParseDuration(getEnv("RECONCILE_DELAY", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_DELAY: %w", err)
	}
	credentialInterval, err := time.ParseDuration(getEnv("CREDENTIAL_CHECK_INTERVAL", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CREDENTIAL_CHECK_INTERVAL: %w", err)
	}
	healthInterval, err := time.ParseDuration(getEnv("HEALTH_CHECK_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEALTH_CHECK_INTERVAL: %w", err)
	}

	config.Delivery = DeliveryConfig{
		PollInterval:            pollInterval,
		PollLimit:               pollLimit,
		ReconcileDelay:          reconcileDelay,
		CredentialCheckInterval: credentialInterval,
		HealthCheckInterval:     healthInterval,
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "7317"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Backend.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.Session.Path == "" {
		return fmt.Errorf("SESSION_FILE is required")
	}
	if c.FeedEnabled() && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when DB_HOST is set")
	}
	if c.Delivery.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s")
	}
	return nil
}

// FeedEnabled reports whether the database change feed is configured.
func (c *Config) FeedEnabled() bool {
	return c.Database.Host != ""
}

// DatabaseURL returns the PostgreSQL connection string, or "" when the feed
// is disabled.
func (c *Config) DatabaseURL() string {
	if !c.FeedEnabled() {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// defaultSessionPath places the session file in the user configuration
// directory shared with the rest of the ConSite desktop tooling.
func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "session.json"
	}
	return filepath.Join(dir, "consite", "session.json")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
