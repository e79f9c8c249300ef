package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Stride   StrideConfig   `json:"stride"`
	Log      LogConfig      `json:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// StrideConfig contains the app's Stride API credentials and module keys
type StrideConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Environment  string `json:"environment"` // "production" or "staging"
	APIBaseURL   string `json:"api_base_url"`
	AuthBaseURL  string `json:"auth_base_url"`
	GlanceKey    string `json:"glance_key"`
	ConfigKey    string `json:"config_key"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Format string `json:"format"` // "json" or "text"
	Level  string `json:"level"`
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Stride.ClientID == "" || c.Stride.ClientSecret == "" {
		return fmt.Errorf("%w: Stride client credentials are required", ErrInvalidConfig)
	}

	switch c.Stride.Environment {
	case "":
		c.Stride.Environment = "production"
	case "production", "staging":
	default:
		return fmt.Errorf("%w: environment must be production or staging", ErrInvalidConfig)
	}

	if c.Stride.GlanceKey == "" {
		c.Stride.GlanceKey = "stridebot-glance"
	}
	if c.Stride.ConfigKey == "" {
		c.Stride.ConfigKey = "stridebot-config"
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables.
// The credential variables match what the app management console hands
// out: CLIENT_ID, CLIENT_SECRET, ENV, PORT.
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: getEnv("HOST", "0.0.0.0"),
			Port: getEnvInt("PORT", 8080),
		},
		Database: DatabaseConfig{
			Path: getEnv("STRIDEBOT_DB_PATH", "./stridebot.db"),
		},
		Stride: StrideConfig{
			ClientID:     getEnv("CLIENT_ID", ""),
			ClientSecret: getEnv("CLIENT_SECRET", ""),
			Environment:  getEnv("ENV", "production"),
			APIBaseURL:   getEnv("STRIDEBOT_API_BASE_URL", ""),
			AuthBaseURL:  getEnv("STRIDEBOT_AUTH_BASE_URL", ""),
			GlanceKey:    getEnv("STRIDEBOT_GLANCE_KEY", ""),
			ConfigKey:    getEnv("STRIDEBOT_CONFIG_KEY", ""),
		},
		Log: LogConfig{
			Format: getEnv("STRIDEBOT_LOG_FORMAT", "json"),
			Level:  getEnv("STRIDEBOT_LOG_LEVEL", "info"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}
