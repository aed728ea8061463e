// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Cache    CacheConfig
	DocDB    DocDBConfig
	Broker   BrokerConfig
	Platform PlatformConfig
	AI       AIConfig
	Security SecurityConfig
	Log      LogConfig
}

// SecurityConfig holds secret-handling configuration.
type SecurityConfig struct {
	// EncryptionKey encrypts tenant provider credentials at rest in the
	// cache. Empty means a no-op encryptor (development only).
	EncryptionKey string
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host    string
	Port    int
	GinMode string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds cache-related configuration.
type CacheConfig struct {
	Type     string
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// DocDBConfig holds document database configuration.
type DocDBConfig struct {
	Type     string
	URI      string
	Database string
}

// BrokerConfig holds the message broker configuration used for
// agent notification fanout.
type BrokerConfig struct {
	URL      string
	Exchange string
}

// PlatformConfig holds platform service configuration. The platform
// service owns tenant plans, AI configuration, and agent profiles.
type PlatformConfig struct {
	URL        string
	ServiceKey string
	Timeout    time.Duration
}

// AIConfig holds the knobs for the AI response pipeline.
type AIConfig struct {
	// CompletionURL is the base URL of the completion provider.
	CompletionURL string
	// APIKey authenticates against the completion provider.
	APIKey string
	// DefaultModel is used when the tenant does not select one.
	DefaultModel string

	// DebounceDelay is how long a customer-message burst is allowed to
	// settle before one orchestration job runs.
	DebounceDelay time.Duration
	// StreamTimeout is the hard ceiling for one completion attempt.
	StreamTimeout time.Duration
	// StallPollInterval is how often the provider's run status is polled
	// once the stream stops producing events.
	StallPollInterval time.Duration
	// StallAfter is how long the stream may be silent before the polling
	// fallback kicks in.
	StallAfter time.Duration

	// MaxAttempts bounds the retry governor.
	MaxAttempts int
	// BackoffBase is the first retry delay; subsequent delays double.
	BackoffBase time.Duration

	// RateLimitWindow and RateLimitMax define the per-tenant sliding
	// window for AI response attempts.
	RateLimitWindow time.Duration
	RateLimitMax    int64

	// LockTTL and LockWait bound the conversation lease used for
	// agent-join races.
	LockTTL  time.Duration
	LockWait time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvAsInt("SERVER_PORT", 8080),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Cache: CacheConfig{
			Type:     getEnv("CACHE_TYPE", "redis"),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("CACHE_TTL_SECONDS", 180*time.Second),
		},
		DocDB: DocDBConfig{
			Type:     getEnv("DOCDB_TYPE", "mongodb"),
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "supportdesk"),
		},
		Broker: BrokerConfig{
			URL:      getEnv("BROKER_URL", ""),
			Exchange: getEnv("BROKER_EXCHANGE", "support.notifications"),
		},
		Platform: PlatformConfig{
			URL:        getEnv("PLATFORM_SERVICE_URL", "http://localhost:8081"),
			ServiceKey: getEnv("PLATFORM_SERVICE_KEY", ""),
			Timeout:    getEnvAsDuration("PLATFORM_SERVICE_TIMEOUT_SECONDS", 30*time.Second),
		},
		AI: AIConfig{
			CompletionURL:     getEnv("COMPLETION_URL", "https://api.openai.com/v1"),
			APIKey:            getEnv("COMPLETION_API_KEY", ""),
			DefaultModel:      getEnv("COMPLETION_DEFAULT_MODEL", "gpt-4o-mini"),
			DebounceDelay:     getEnvAsMillis("AI_DEBOUNCE_DELAY_MS", 500*time.Millisecond),
			StreamTimeout:     getEnvAsDuration("AI_STREAM_TIMEOUT_SECONDS", 45*time.Second),
			StallPollInterval: getEnvAsDuration("AI_STALL_POLL_INTERVAL_SECONDS", 2*time.Second),
			StallAfter:        getEnvAsDuration("AI_STALL_AFTER_SECONDS", 10*time.Second),
			MaxAttempts:       getEnvAsInt("AI_MAX_ATTEMPTS", 3),
			BackoffBase:       getEnvAsDuration("AI_BACKOFF_BASE_SECONDS", 1*time.Second),
			RateLimitWindow:   getEnvAsDuration("AI_RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),
			RateLimitMax:      int64(getEnvAsInt("AI_RATE_LIMIT_MAX", 20)),
			LockTTL:           getEnvAsDuration("CONVERSATION_LOCK_TTL_SECONDS", 10*time.Second),
			LockWait:          getEnvAsDuration("CONVERSATION_LOCK_WAIT_SECONDS", 3*time.Second),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("SECRETS_ENCRYPTION_KEY", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable holding seconds as a duration.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return defaultValue
}

// getEnvAsMillis gets an environment variable holding milliseconds as a duration.
func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return time.Duration(intValue) * time.Millisecond
		}
	}
	return defaultValue
}
