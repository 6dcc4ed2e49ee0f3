package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"console debug", Config{Level: "debug", Encoding: "console", Development: true}, false},
		{"bad level", Config{Level: "loud"}, true},
		{"bad encoding", Config{Encoding: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.OutputPaths = []string{filepath.Join(t.TempDir(), "log")}
			err := Init(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, Get())
		})
	}
}

func TestWithContextAndLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	require.NoError(t, Init(Config{Level: "info", OutputPaths: []string{path}}))

	ctx := ContextWith(context.Background(), RunIDKey, "run-1")
	ctx = ContextWith(ctx, ReportKey, "App Downloads Detailed")

	WithContext(ctx).Info("extracting", zap.Int("rows", 2))
	Get().Debug("hidden")

	require.NoError(t, SetLevel("debug"))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))
	Get().Debug("visible")
	require.NoError(t, SetLevel("info"))

	_ = Sync()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"report":"App Downloads Detailed"`)
	assert.Contains(t, out, `"service":"storepulse"`)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	require.Error(t, SetLevel("chatty"))
}
