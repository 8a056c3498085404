package domain

import (
	"context"
)

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetModelsConfig() *ModelsConfig
	GetEnhancementConfig() *EnhancementConfig
	GetCacheConfig() *CacheConfig
	Validate() error
}

// RecordSink accepts structured prediction records; the core never stores them itself
type RecordSink interface {
	Record(ctx context.Context, record *PredictionRecord) error
	Close() error
}

// ReportEnhancer turns a risk assessment into a narrative report
type ReportEnhancer interface {
	Enhance(ctx context.Context, req *EnhancementRequest) *EnhancementResult
}

// TextProvider generates free text from a prompt. Implementations classify
// failures as *ProviderTransientError or *ProviderFatalError.
type TextProvider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string) (string, error)
}
