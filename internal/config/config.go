package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service, loaded once at startup.
type Config struct {
	Server      ServerConfig
	B3          B3Config
	Firebase    FirebaseConfig
	AuthService ServiceConfig
	Kafka       KafkaConfig
	Logging     LoggingConfig
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port         string `validate:"required"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// B3Config holds credentials and endpoints for the B3 API.
type B3Config struct {
	BaseURL        string `validate:"required,url"`
	TokenURL       string `validate:"required,url"`
	Scope          string
	ClientID       string `validate:"required"`
	ClientSecret   string `validate:"required"`
	Timeout        time.Duration
	MaxPageFetches int
}

// FirebaseConfig holds the movements store endpoint.
type FirebaseConfig struct {
	BaseURL   string `validate:"required,url"`
	AuthToken string
	Timeout   time.Duration
}

// ServiceConfig holds configuration for external services
type ServiceConfig struct {
	URL     string `validate:"required,url"`
	Timeout time.Duration
}

// KafkaConfig holds the sync event publishing configuration.
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the configuration from file and environment variables
// and validates it before anything else starts.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variables override
	v.SetEnvPrefix("MOVEMENTS")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "10s")
	v.SetDefault("server.idleTimeout", "120s")

	// B3 defaults
	v.SetDefault("b3.timeout", "30s")
	v.SetDefault("b3.maxPageFetches", 32)
	v.SetDefault("b3.scope", "default")

	// Firebase defaults
	v.SetDefault("firebase.timeout", "10s")

	// Auth provider defaults
	v.SetDefault("authService.timeout", "5s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "movements-events")
	v.SetDefault("kafka.clientID", "movements-service")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
