package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/medirisk-server/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. MEDIRISK_SERVER_PORT
const EnvPrefix = "MEDIRISK"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	file   string
	config *domain.Config
}

// NewManager creates a new configuration manager. An empty configFile
// searches the default locations for config.yaml.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{v: viper.New(), file: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults
func (m *Manager) loadConfig() error {
	v := m.v

	if m.file != "" {
		v.SetConfigFile(m.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/medirisk-server/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the provider key is usually exported under its conventional name
	if err := v.BindEnv("enhancement.api_key", EnvPrefix+"_ENHANCEMENT_API_KEY", "GEMINI_API_KEY"); err != nil {
		return fmt.Errorf("error binding environment: %w", err)
	}

	m.setDefaults()

	// config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.enable_admin", true)
	v.SetDefault("server.max_batch_size", 100)
	v.SetDefault("server.batch_workers", 4)

	// Model defaults
	v.SetDefault("models.artifact_dir", "./artifacts")
	v.SetDefault("models.domains", []string{})
	v.SetDefault("models.load_workers", 3)

	// Enhancement defaults
	v.SetDefault("enhancement.enabled", true)
	v.SetDefault("enhancement.provider", "gemini")
	v.SetDefault("enhancement.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("enhancement.api_key", "")
	v.SetDefault("enhancement.model", "gemini-1.5-flash")
	v.SetDefault("enhancement.temperature", 0.3)
	v.SetDefault("enhancement.top_k", 40)
	v.SetDefault("enhancement.top_p", 0.8)
	v.SetDefault("enhancement.max_output_tokens", 2000)
	v.SetDefault("enhancement.safety_threshold", "BLOCK_MEDIUM_AND_ABOVE")
	v.SetDefault("enhancement.max_retries", 3)
	v.SetDefault("enhancement.base_backoff", "1s")
	v.SetDefault("enhancement.max_backoff", "8s")
	v.SetDefault("enhancement.attempt_timeout", "30s")
	v.SetDefault("enhancement.rate_limit", 2.0)
	v.SetDefault("enhancement.rate_burst", 4)
	v.SetDefault("enhancement.breaker.max_requests", 1)
	v.SetDefault("enhancement.breaker.interval", "60s")
	v.SetDefault("enhancement.breaker.timeout", "30s")
	v.SetDefault("enhancement.breaker.min_requests", 5)
	v.SetDefault("enhancement.breaker.failure_ratio", 0.6)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 512)
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "medirisk:report:")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Record sink defaults
	v.SetDefault("records.log_enabled", true)
	v.SetDefault("records.kafka.enabled", false)
	v.SetDefault("records.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("records.kafka.topic", "medirisk.predictions")
	v.SetDefault("records.kafka.batch_size", 100)
	v.SetDefault("records.kafka.batch_timeout", "1s")
	v.SetDefault("records.kafka.write_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetModelsConfig returns model artifact configuration
func (m *Manager) GetModelsConfig() *domain.ModelsConfig {
	return &m.config.Models
}

// GetEnhancementConfig returns report enhancement configuration
func (m *Manager) GetEnhancementConfig() *domain.EnhancementConfig {
	return &m.config.Enhancement
}

// GetCacheConfig returns report cache configuration
func (m *Manager) GetCacheConfig() *domain.CacheConfig {
	return &m.config.Cache
}

// ConfigFileUsed returns the config file that was read, if any
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", config.Server.MaxBatchSize)
	}
	if config.Server.BatchWorkers <= 0 {
		return fmt.Errorf("batch workers must be positive, got %d", config.Server.BatchWorkers)
	}

	// Validate model configuration
	if config.Models.ArtifactDir == "" {
		return fmt.Errorf("model artifact directory is required")
	}

	// Validate enhancement configuration
	enh := config.Enhancement
	if enh.Enabled {
		if enh.BaseURL == "" {
			return fmt.Errorf("enhancement base URL is required")
		}
		if enh.MaxRetries < 1 || enh.MaxRetries > 10 {
			return fmt.Errorf("enhancement max_retries must be between 1 and 10, got %d", enh.MaxRetries)
		}
		if enh.BaseBackoff <= 0 || enh.MaxBackoff < enh.BaseBackoff {
			return fmt.Errorf("invalid enhancement backoff: base %s, max %s", enh.BaseBackoff, enh.MaxBackoff)
		}
		if enh.AttemptTimeout <= 0 {
			return fmt.Errorf("enhancement attempt timeout must be positive")
		}
		if enh.Breaker.FailureRatio <= 0 || enh.Breaker.FailureRatio > 1 {
			return fmt.Errorf("breaker failure ratio must be in (0, 1], got %v", enh.Breaker.FailureRatio)
		}
	}

	// Validate record sinks
	if config.Records.Kafka.Enabled {
		if len(config.Records.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when the kafka sink is enabled")
		}
		if config.Records.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when the kafka sink is enabled")
		}
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
