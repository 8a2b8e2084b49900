package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/narvanalabs/resque/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupStdoutExporterFlushesOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.TelemetryConfig{Enabled: true, ServiceName: "resque-test", SampleRatio: 1}
	p, err := Setup(context.Background(), cfg, nil, WithStdoutWriter(&buf), WithoutGlobal())
	require.NoError(t, err)

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "bus.handle")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "bus.handle")
}
