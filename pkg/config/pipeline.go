package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

// EnvPrefix is the prefix for environment overrides of pipeline settings,
// e.g. STOREPULSE_SOURCE_SECURITY_CREDENTIALS_KEY_ID.
const EnvPrefix = "STOREPULSE"

// PipelineConfig describes a single source-to-destination run.
type PipelineConfig struct {
	Name        string     `yaml:"name" json:"name" mapstructure:"name"`
	Source      BaseConfig `yaml:"source" json:"source" mapstructure:"source"`
	Destination BaseConfig `yaml:"destination" json:"destination" mapstructure:"destination"`

	// Rename maps source column names onto destination column names
	Rename map[string]string `yaml:"rename" json:"rename" mapstructure:"rename"`

	// MetricsAddr exposes Prometheus metrics when non-empty (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
}

// LoadPipeline reads a pipeline file, substitutes ${ENV} references, layers
// STOREPULSE_* environment overrides on top and applies defaults to both ends.
func LoadPipeline(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the CLI
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read pipeline file")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader([]byte(SubstituteEnvVars(string(data))))); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse pipeline file")
	}

	var cfg PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode pipeline file")
	}
	applyCredentialOverrides(&cfg.Source, "SOURCE")
	applyCredentialOverrides(&cfg.Destination, "DESTINATION")

	cfg.Source.ApplyDefaults()
	cfg.Destination.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks both ends of the pipeline.
func (p *PipelineConfig) Validate() error {
	if err := p.Source.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid source")
	}
	if err := p.Destination.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid destination")
	}
	return nil
}

// AutomaticEnv only covers keys viper already knows about, so credentials
// that are absent from the file are picked up by scanning the environment.
func applyCredentialOverrides(bc *BaseConfig, side string) {
	prefix := EnvPrefix + "_" + side + "_SECURITY_CREDENTIALS_"
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if bc.Security.Credentials == nil {
			bc.Security.Credentials = make(map[string]string)
		}
		bc.Security.Credentials[strings.ToLower(strings.TrimPrefix(key, prefix))] = value
	}
}
