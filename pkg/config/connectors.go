// Package config provides connector-specific configurations that embed BaseConfig
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

// DateLayout is the calendar-date layout accepted for window bounds.
const DateLayout = "2006-01-02"

// AppStoreSourceConfig contains configuration for the App Store Connect
// analytics reports source connector.
type AppStoreSourceConfig struct {
	BaseConfig `yaml:",inline" json:",inline"`

	// Request signing material
	KeyID      string `yaml:"key_id" json:"key_id" required:"true"`
	IssuerID   string `yaml:"issuer_id" json:"issuer_id" required:"true"`
	KeyPath    string `yaml:"key_path" json:"key_path"`
	PrivateKey string `yaml:"private_key" json:"-"`

	// Extraction scope
	AppIDs    []string   `yaml:"app_ids" json:"app_ids" required:"true"`
	StartDate *time.Time `yaml:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `yaml:"end_date" json:"end_date,omitempty"`
	Reports   []string   `yaml:"reports" json:"reports"`

	// API behavior
	BaseURL                string `yaml:"base_url" json:"base_url" default:"https://api.appstoreconnect.apple.com/v1"`
	StrictRequestSelection bool   `yaml:"strict_request_selection" json:"strict_request_selection" default:"false"`
}

// SearchAdsSourceConfig contains configuration for the search ads reporting source connector
type SearchAdsSourceConfig struct {
	BaseConfig `yaml:",inline" json:",inline"`

	// OAuth2 configuration
	DeveloperToken  string   `yaml:"developer_token" json:"developer_token" required:"true"`
	ClientID        string   `yaml:"client_id" json:"client_id" required:"true"`
	ClientSecret    string   `yaml:"client_secret" json:"client_secret" required:"true"`
	RefreshToken    string   `yaml:"refresh_token" json:"refresh_token" required:"true"`
	CustomerIDs     []string `yaml:"customer_ids" json:"customer_ids" required:"true"`
	LoginCustomerID string   `yaml:"login_customer_id" json:"login_customer_id"`

	// Query configuration
	StartDate *time.Time `yaml:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `yaml:"end_date" json:"end_date,omitempty"`
	Reports   []string   `yaml:"reports" json:"reports"`

	// Endpoints
	BaseURL  string `yaml:"base_url" json:"base_url" default:"https://googleads.googleapis.com/v21"`
	TokenURL string `yaml:"token_url" json:"token_url" default:"https://oauth2.googleapis.com/token"`
}

// JSONDestinationConfig contains configuration for the JSON lines destination
type JSONDestinationConfig struct {
	BaseConfig `yaml:",inline" json:",inline"`

	// OutputDir receives one file per table
	OutputDir string `yaml:"output_dir" json:"output_dir" required:"true"`
}

// S3DestinationConfig contains configuration for the S3 destination connector
type S3DestinationConfig struct {
	BaseConfig `yaml:",inline" json:",inline"`

	Bucket   string `yaml:"bucket" json:"bucket" required:"true"`
	Region   string `yaml:"region" json:"region" required:"true"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Static credentials; empty uses the default AWS credential chain
	AccessKeyID     string `yaml:"access_key_id" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-"`

	// Upload settings
	PartSize       int64 `yaml:"part_size" json:"part_size" default:"5242880"`
	UsePathStyle   bool  `yaml:"use_path_style" json:"use_path_style" default:"false"`
	RecordsPerFile int   `yaml:"records_per_file" json:"records_per_file" default:"50000"`
}

// AppStoreSourceConfigFrom extracts the App Store configuration from the
// generic credentials map of a BaseConfig.
func AppStoreSourceConfigFrom(base *BaseConfig) (*AppStoreSourceConfig, error) {
	if base == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	props := base.Security.Credentials
	if props == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "credentials are required")
	}

	cfg := &AppStoreSourceConfig{
		BaseConfig:             *base,
		KeyID:                  strings.TrimSpace(props["key_id"]),
		IssuerID:               strings.TrimSpace(props["issuer_id"]),
		KeyPath:                props["key_path"],
		PrivateKey:             props["private_key"],
		AppIDs:                 SplitList(props["app_ids"]),
		Reports:                splitReports(props["reports"]),
		BaseURL:                props["base_url"],
		StrictRequestSelection: parseBool(props["strict_request_selection"]),
	}
	if cfg.KeyPath == "" {
		cfg.KeyPath = base.Security.KeyPath
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.appstoreconnect.apple.com/v1"
	}

	if cfg.KeyID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "key_id is required")
	}
	if cfg.IssuerID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "issuer_id is required")
	}
	if cfg.KeyPath == "" && cfg.PrivateKey == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "key_path or private_key is required")
	}
	if len(cfg.AppIDs) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "at least one app_id is required")
	}

	var err error
	if cfg.StartDate, err = ParseDate(props["start_date"]); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid start_date")
	}
	if cfg.EndDate, err = ParseDate(props["end_date"]); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid end_date")
	}
	if cfg.StartDate != nil && cfg.EndDate != nil && cfg.EndDate.Before(*cfg.StartDate) {
		return nil, errors.New(errors.ErrorTypeConfig, "end_date must not be before start_date")
	}

	return cfg, nil
}

// SearchAdsSourceConfigFrom extracts the search ads configuration from the
// generic credentials map of a BaseConfig.
func SearchAdsSourceConfigFrom(base *BaseConfig) (*SearchAdsSourceConfig, error) {
	if base == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	props := base.Security.Credentials
	if props == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "credentials are required")
	}

	cfg := &SearchAdsSourceConfig{
		BaseConfig:      *base,
		DeveloperToken:  props["developer_token"],
		ClientID:        props["client_id"],
		ClientSecret:    props["client_secret"],
		RefreshToken:    props["refresh_token"],
		CustomerIDs:     SplitList(props["customer_ids"]),
		LoginCustomerID: props["login_customer_id"],
		Reports:         SplitList(props["reports"]),
		BaseURL:         props["base_url"],
		TokenURL:        props["token_url"],
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://googleads.googleapis.com/v21"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://oauth2.googleapis.com/token"
	}

	required := []struct{ name, value string }{
		{"developer_token", cfg.DeveloperToken},
		{"client_id", cfg.ClientID},
		{"client_secret", cfg.ClientSecret},
		{"refresh_token", cfg.RefreshToken},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "%s is required", r.name)
		}
	}
	if len(cfg.CustomerIDs) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "at least one customer_id is required")
	}

	var err error
	if cfg.StartDate, err = ParseDate(props["start_date"]); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid start_date")
	}
	if cfg.EndDate, err = ParseDate(props["end_date"]); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid end_date")
	}

	return cfg, nil
}

// JSONDestinationConfigFrom extracts the JSON destination configuration.
func JSONDestinationConfigFrom(base *BaseConfig) (*JSONDestinationConfig, error) {
	if base == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	dir := base.Security.Credentials["output_dir"]
	if dir == "" {
		dir = base.Security.Credentials["path"]
	}
	if dir == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "missing required output_dir in security.credentials")
	}
	return &JSONDestinationConfig{BaseConfig: *base, OutputDir: dir}, nil
}

// S3DestinationConfigFrom extracts the S3 destination configuration.
func S3DestinationConfigFrom(base *BaseConfig) (*S3DestinationConfig, error) {
	if base == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	props := base.Security.Credentials
	cfg := &S3DestinationConfig{
		BaseConfig:      *base,
		Bucket:          props["bucket"],
		Region:          props["region"],
		Prefix:          strings.Trim(props["prefix"], "/"),
		Endpoint:        props["endpoint"],
		AccessKeyID:     props["access_key_id"],
		SecretAccessKey: props["secret_access_key"],
		PartSize:        5 * 1024 * 1024,
		UsePathStyle:    parseBool(props["use_path_style"]),
		RecordsPerFile:  50000,
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bucket is required")
	}
	if cfg.Region == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "region is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, errors.New(errors.ErrorTypeConfig, "access_key_id and secret_access_key must be set together")
	}
	if v := props["records_per_file"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "records_per_file must be a positive integer, got %q", v)
		}
		cfg.RecordsPerFile = n
	}
	return cfg, nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Report names contain spaces but never semicolons, so either separator works;
// a semicolon list takes precedence.
func splitReports(s string) []string {
	if strings.Contains(s, ";") {
		return SplitList(strings.ReplaceAll(s, ";", ","))
	}
	return SplitList(s)
}

// ParseDate parses an optional calendar date; empty input yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}
