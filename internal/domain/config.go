package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	Models      ModelsConfig      `mapstructure:"models"`
	Enhancement EnhancementConfig `mapstructure:"enhancement"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Records     RecordsConfig     `mapstructure:"records"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EnableAdmin     bool          `mapstructure:"enable_admin"`
	MaxBatchSize    int           `mapstructure:"max_batch_size"`
	BatchWorkers    int           `mapstructure:"batch_workers"`
}

// ModelsConfig locates the per-domain model artifacts
type ModelsConfig struct {
	ArtifactDir string   `mapstructure:"artifact_dir"`
	Domains     []string `mapstructure:"domains"`
	LoadWorkers int      `mapstructure:"load_workers"`
}

// EnhancementConfig configures the report enhancement gateway and its provider
type EnhancementConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Provider        string        `mapstructure:"provider"`
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	TopK            int           `mapstructure:"top_k"`
	TopP            float64       `mapstructure:"top_p"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	SafetyThreshold string        `mapstructure:"safety_threshold"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig represents circuit breaker configuration
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// CacheConfig represents report cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxEntries  int           `mapstructure:"max_entries"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	RedisURL    string        `mapstructure:"redis_url"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// RecordsConfig selects where prediction records are emitted
type RecordsConfig struct {
	LogEnabled bool        `mapstructure:"log_enabled"`
	Kafka      KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig represents the Kafka prediction-record producer configuration
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
