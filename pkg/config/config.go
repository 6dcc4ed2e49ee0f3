// Package config provides the unified configuration system for storepulse.
// It defines a single BaseConfig structure that all connectors use,
// ensuring consistent configuration across sources and destinations.
//
// The configuration is organized into logical sections:
//   - Performance: Batch sizes, buffering and streaming settings
//   - Timeouts: Connection and request timeouts for the HTTP transport
//   - Reliability: Retry logic, circuit breakers, rate limiting
//   - Security: Credentials and connector-specific properties
//   - Observability: Metrics, tracing, logging
//   - Advanced: Output compression and staging options
//
// Example usage:
//
//	cfg := config.NewBaseConfig("appstore", "source")
//	cfg.Security.Credentials["key_id"] = "ABC123"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// BaseConfig is the single unified configuration structure that all connectors use.
// Connector-specific configurations embed it with the yaml inline tag.
type BaseConfig struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Type specifies the connector type (e.g., "appstore", "searchads", "json", "s3")
	Type string `yaml:"type" json:"type" mapstructure:"type"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version" mapstructure:"version"`

	// Performance settings control throughput and resource usage
	Performance PerformanceConfig `yaml:"performance" json:"performance" mapstructure:"performance"`

	// Timeouts define various timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts" mapstructure:"timeouts"`

	// Reliability settings for error handling and resilience
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability" mapstructure:"reliability"`

	// Security configuration for authentication and connector properties
	Security SecurityConfig `yaml:"security" json:"security" mapstructure:"security"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`

	// Advanced features
	Advanced AdvancedConfig `yaml:"advanced" json:"advanced" mapstructure:"advanced"`
}

// PerformanceConfig contains all performance-related settings.
type PerformanceConfig struct {
	// BatchSize controls the number of records processed together
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
	// BufferSize sets the size of internal buffers and channels
	BufferSize int `yaml:"buffer_size" json:"buffer_size" mapstructure:"buffer_size"`
	// MaxConcurrency limits total concurrent operations
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" mapstructure:"max_concurrency"`
	// FlushInterval triggers periodic batch flushes
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval" mapstructure:"flush_interval"`
	// EnableStreaming enables streaming mode if supported
	EnableStreaming bool `yaml:"enable_streaming" json:"enable_streaming" mapstructure:"enable_streaming"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Request timeout for individual HTTP requests
	Request time.Duration `yaml:"request" json:"request" mapstructure:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection" mapstructure:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `yaml:"idle" json:"idle" mapstructure:"idle"`
	// KeepAlive interval for connection health checks
	KeepAlive time.Duration `yaml:"keep_alive" json:"keep_alive" mapstructure:"keep_alive"`
}

// ReliabilityConfig contains reliability and error handling settings.
// Retries live in the HTTP transport; connectors never retry on their own.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for failed requests
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts" mapstructure:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier" mapstructure:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay" mapstructure:"max_retry_delay"`
	// CircuitBreaker enables circuit breaker pattern
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker" mapstructure:"circuit_breaker"`
	// RateLimitPerSec limits operations per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	// FailFast stops on first error instead of continuing
	FailFast bool `yaml:"fail_fast" json:"fail_fast" mapstructure:"fail_fast"`
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	// AuthType specifies authentication method (jwt, oauth2, aws)
	AuthType string `yaml:"auth_type" json:"auth_type" mapstructure:"auth_type"`
	// Credentials stores authentication credentials and connector properties
	// (use ${ENV} substitution in production)
	Credentials map[string]string `yaml:"credentials" json:"credentials" mapstructure:"credentials"`
	// KeyPath for a private key file
	KeyPath string `yaml:"key_path" json:"key_path" mapstructure:"key_path"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// EnableMetrics activates metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	// EnableTracing activates distributed tracing
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
}

// AdvancedConfig contains optional advanced features.
type AdvancedConfig struct {
	// EnableCompression activates output compression in destinations
	EnableCompression bool `yaml:"enable_compression" json:"enable_compression" mapstructure:"enable_compression"`
	// CompressionAlgorithm selects compression type (gzip, snappy, lz4, zstd, s2)
	CompressionAlgorithm string `yaml:"compression_algorithm" json:"compression_algorithm" mapstructure:"compression_algorithm"`
	// CompressionLevel sets compression ratio vs speed (1-9)
	CompressionLevel int `yaml:"compression_level" json:"compression_level" mapstructure:"compression_level"`
	// StagingDir is the parent directory for transient download staging
	// (empty = os.TempDir())
	StagingDir string `yaml:"staging_dir" json:"staging_dir" mapstructure:"staging_dir"`
	// Debug enables detailed debug output
	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// NewBaseConfig creates a new BaseConfig with sensible defaults.
//
// Example:
//
//	cfg := config.NewBaseConfig("my-source", "appstore")
//	cfg.Performance.BatchSize = 5000  // Override default
func NewBaseConfig(name, connectorType string) *BaseConfig {
	return &BaseConfig{
		Name:    name,
		Type:    connectorType,
		Version: "1.0.0",
		Performance: PerformanceConfig{
			BatchSize:       1000,
			BufferSize:      10000,
			MaxConcurrency:  4,
			FlushInterval:   10 * time.Second,
			EnableStreaming: true,
		},
		Timeouts: TimeoutConfig{
			Request:    60 * time.Second,
			Connection: 10 * time.Second,
			Idle:       90 * time.Second,
			KeepAlive:  30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
			CircuitBreaker:  true,
			RateLimitPerSec: 0,
			FailFast:        true,
		},
		Security: SecurityConfig{
			Credentials: make(map[string]string),
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     true,
			EnableTracing:     false,
			LogLevel:          "info",
			TracingSampleRate: 0.1,
		},
		Advanced: AdvancedConfig{
			EnableCompression:    false,
			CompressionAlgorithm: "gzip",
			CompressionLevel:     6,
		},
	}
}

// Validate validates the configuration for correctness.
func (bc *BaseConfig) Validate() error {
	if bc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if bc.Type == "" {
		return fmt.Errorf("type is required")
	}
	if bc.Performance.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if bc.Performance.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if bc.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	if bc.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	return nil
}

// ApplyDefaults fills zero-valued sections from NewBaseConfig so partially
// specified files still produce a usable configuration.
func (bc *BaseConfig) ApplyDefaults() {
	def := NewBaseConfig(bc.Name, bc.Type)
	if bc.Version == "" {
		bc.Version = def.Version
	}
	if bc.Performance.BatchSize <= 0 {
		bc.Performance.BatchSize = def.Performance.BatchSize
	}
	if bc.Performance.BufferSize <= 0 {
		bc.Performance.BufferSize = def.Performance.BufferSize
	}
	if bc.Performance.MaxConcurrency <= 0 {
		bc.Performance.MaxConcurrency = def.Performance.MaxConcurrency
	}
	if bc.Performance.FlushInterval <= 0 {
		bc.Performance.FlushInterval = def.Performance.FlushInterval
	}
	if bc.Timeouts == (TimeoutConfig{}) {
		bc.Timeouts = def.Timeouts
	}
	if bc.Reliability.RetryDelay <= 0 {
		bc.Reliability.RetryDelay = def.Reliability.RetryDelay
	}
	if bc.Reliability.RetryMultiplier <= 0 {
		bc.Reliability.RetryMultiplier = def.Reliability.RetryMultiplier
	}
	if bc.Reliability.MaxRetryDelay <= 0 {
		bc.Reliability.MaxRetryDelay = def.Reliability.MaxRetryDelay
	}
	if bc.Security.Credentials == nil {
		bc.Security.Credentials = make(map[string]string)
	}
	if bc.Observability.LogLevel == "" {
		bc.Observability.LogLevel = def.Observability.LogLevel
	}
}

// IsRateLimited returns true if rate limiting is enabled
func (r *ReliabilityConfig) IsRateLimited() bool {
	return r.RateLimitPerSec > 0
}

// IsCompressionEnabled returns true if compression should be used
func (a *AdvancedConfig) IsCompressionEnabled() bool {
	return a.EnableCompression && a.CompressionAlgorithm != ""
}
