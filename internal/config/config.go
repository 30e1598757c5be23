package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the console and the CLI
type Config struct {
	Port               string        `validate:"required,numeric"`
	Environment        string        `validate:"oneof=development staging production test"`
	LogLevel           string        `validate:"oneof=debug info warn warning error"`
	APIBaseURL         string        `validate:"required,url"`
	SessionFile        string        `validate:"required"`
	DefaultPageSize    int           `validate:"min=1,max=500"`
	RequestTimeout     time.Duration `validate:"min=0s"`
	EntitiesFile       string
	ConsoleAPIKeys     []string
	StaleResponseGuard bool
	NotificationBuffer int           `validate:"min=1,max=10000"`
	ExportCacheTTL     time.Duration `validate:"min=0s"`
	MetricsExporter    string        `validate:"oneof=scraper grpc none"`
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	// This will not override existing environment variables
	if err := godotenv.Load(); err != nil {
		slog.Debug("Could not load .env file, continuing with system environment variables only", "error", err)
	} else {
		slog.Info("Successfully loaded .env file")
	}

	config := &Config{
		Port:               getEnvWithDefault("PORT", "8080"),
		Environment:        getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:           getEnvWithDefault("LOG_LEVEL", "info"),
		APIBaseURL:         getEnvWithDefault("API_BASE_URL", "http://localhost:5000/api"),
		SessionFile:        getEnvWithDefault("SESSION_FILE", defaultSessionFile()),
		DefaultPageSize:    getEnvInt("DEFAULT_PAGE_SIZE", 10),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 0),
		EntitiesFile:       getEnvWithDefault("ENTITIES_FILE", ""),
		ConsoleAPIKeys:     splitList(getEnvWithDefault("CONSOLE_API_KEYS", "")),
		StaleResponseGuard: getEnvBool("STALE_RESPONSE_GUARD", false),
		NotificationBuffer: getEnvInt("NOTIFICATION_BUFFER", 50),
		ExportCacheTTL:     getEnvDuration("EXPORT_CACHE_TTL", 30*time.Second),
		MetricsExporter:    strings.ToLower(getEnvWithDefault("METRICS_EXPORTER", "none")),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the loaded values against their constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LogSummary writes the effective configuration, without secrets, to slog
func (c *Config) LogSummary() {
	slog.Info("Configuration loaded",
		"port", c.Port,
		"environment", c.Environment,
		"log_level", c.LogLevel,
		"api_base_url", c.APIBaseURL,
		"session_file", c.SessionFile,
		"default_page_size", c.DefaultPageSize,
		"request_timeout", c.RequestTimeout,
		"entities_file", c.EntitiesFile,
		"console_api_keys", len(c.ConsoleAPIKeys),
		"stale_response_guard", c.StaleResponseGuard,
		"notification_buffer", c.NotificationBuffer,
		"export_cache_ttl", c.ExportCacheTTL,
		"metrics_exporter", c.MetricsExporter)
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".drip-session.json"
	}
	return dir + string(os.PathSeparator) + "drip" + string(os.PathSeparator) + "session.json"
}
