package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

func TestInitTracing_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(TracingConfig{
		ServiceName:  "storepulse-test",
		SamplingRate: 1,
		Writer:       &buf,
		Synchronous:  true,
	})
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "appstore.stream", attribute.String("app_id", "123"))
	_, child := StartSpan(ctx, "appstore.download")
	EndSpan(child, errors.New(errors.ErrorTypeRemote, "404"))
	EndSpan(span, nil)

	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "appstore.stream")
	assert.Contains(t, out, "appstore.download")
	assert.Contains(t, out, "error.type")
	assert.Contains(t, out, "storepulse-test")
}

func TestStartSpan_NoopByDefault(t *testing.T) {
	_, span := StartSpan(context.Background(), "noop")
	assert.NotPanics(t, func() { EndSpan(span, nil) })
}
