package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	AI        AIConfig        `mapstructure:"ai"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Events    EventsConfig    `mapstructure:"events"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	InternalAPIKey string        `mapstructure:"internal_api_key"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the Redis connection used for event publishing
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// PricingConfig holds the core pricing behavior tuning
type PricingConfig struct {
	// FloorMultiplier/CeilingMultiplier clamp every computed price
	// relative to the base price.
	FloorMultiplier   float64 `mapstructure:"floor_multiplier"`
	CeilingMultiplier float64 `mapstructure:"ceiling_multiplier"`

	// DecisionValidFor is the validity window stamped on decisions.
	DecisionValidFor time.Duration `mapstructure:"decision_valid_for"`

	// EstimateSpread is the relative width of estimate ranges.
	EstimateSpread float64 `mapstructure:"estimate_spread"`
}

// AIConfig holds the AI price suggestion configuration
type AIConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	MaxDeviation  float64       `mapstructure:"max_deviation"`
}

// FallbackConfig holds the degradation cascade configuration
type FallbackConfig struct {
	Strategy string        `mapstructure:"strategy"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// EventsConfig holds domain event publishing configuration
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

// SweepConfig holds the background sweeper intervals
type SweepConfig struct {
	DecisionInterval time.Duration `mapstructure:"decision_interval"`
	RuleInterval     time.Duration `mapstructure:"rule_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Load .env file
	if err := loadEnvFile(); err != nil {
		// .env is optional, log but don't fail
		log.Warn().Err(err).Msg("Warning: .env file not loaded")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvPrefix("PRICING_SERVICE")

	// Bind env keys for nested config
	bindEnvVars(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads .env file by parsing KEY=VALUE lines and setting them as environment variables
func loadEnvFile() error {
	envPaths := []string{
		".",
		"./config",
	}

	for _, path := range envPaths {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			// Remove quotes if present
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Redis
	v.BindEnv("redis.url", "REDIS_URL")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.internal_api_key", "INTERNAL_API_KEY")

	// AI
	v.BindEnv("ai.endpoint", "AI_PRICING_ENDPOINT")
	v.BindEnv("ai.api_key", "AI_PRICING_API_KEY")

	// Telemetry
	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")

	// Pricing defaults
	v.SetDefault("pricing.floor_multiplier", 0.5)
	v.SetDefault("pricing.ceiling_multiplier", 3.0)
	v.SetDefault("pricing.decision_valid_for", 15*time.Minute)
	v.SetDefault("pricing.estimate_spread", 0.10)

	// AI defaults
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.timeout", 3*time.Second)
	v.SetDefault("ai.min_confidence", 0.7)
	v.SetDefault("ai.max_deviation", 0.5)

	// Fallback defaults
	v.SetDefault("fallback.strategy", "rule_based")
	v.SetDefault("fallback.cache_ttl", 15*time.Minute)

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst_size", 20)

	// Events defaults
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.channel", "pricing.events")

	// Sweep defaults
	v.SetDefault("sweep.decision_interval", 1*time.Minute)
	v.SetDefault("sweep.rule_interval", 5*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "opentelemetry-collector:4317")
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
