// Package logger holds the process-wide zap logger used by storepulse.
//
// Components never log through package-level helpers; they take a
// *zap.Logger (usually derived with With) and tag it with a "component"
// field. The CLI calls Init once the pipeline file has been read.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

var (
	mu          sync.RWMutex
	globalLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	global      *zap.Logger
)

type contextKey string

const (
	// RunIDKey identifies one pipeline run
	RunIDKey contextKey = "run_id"
	// ConnectorKey is the connector instance name
	ConnectorKey contextKey = "connector"
	// AppIDKey is the store app being extracted
	AppIDKey contextKey = "app_id"
	// ReportKey is the report type being extracted
	ReportKey contextKey = "report"
)

var contextKeys = []contextKey{RunIDKey, ConnectorKey, AppIDKey, ReportKey}

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	// OutputPaths defaults to stderr so stdout stays free for command output
	OutputPaths []string
}

// ContextWith returns a copy of ctx carrying value under key, for use with
// WithContext.
func ContextWith(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// Init builds the global logger from cfg and replaces any previous one.
// Loggers derived before the call keep writing through the old core but
// share the level, so SetLevel still reaches them.
func Init(cfg Config) error {
	l, err := build(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	old := global
	global = l
	mu.Unlock()

	if old != nil {
		_ = old.Sync()
	}
	return nil
}

// SetLevel changes the level of every logger handed out by this package.
func SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	globalLevel.SetLevel(lvl)
	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return lvl, errors.Wrap(err, errors.ErrorTypeConfig, "invalid log level").WithDetail("level", level)
	}
	return lvl, nil
}

func build(cfg Config) (*zap.Logger, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	globalLevel.SetLevel(lvl)

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}
	if encoding != "json" && encoding != "console" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported log encoding %q", encoding)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            globalLevel,
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	opts := []zap.Option{zap.Fields(zap.String("service", "storepulse"))}
	if cfg.Development {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	l, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to build logger")
	}
	return l, nil
}

// Get returns the global logger, creating an info-level JSON logger on
// stderr when Init has not been called.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		var err error
		if global, err = build(Config{}); err != nil {
			global = zap.NewNop()
		}
	}
	return global
}

// WithContext returns the global logger tagged with the run, connector, app
// and report carried by ctx.
func WithContext(ctx context.Context) *zap.Logger {
	l := Get()
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			l = l.With(zap.String(string(key), v))
		}
	}
	return l
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		return global.Sync()
	}
	return nil
}
