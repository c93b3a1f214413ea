package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("TRELLIS_OTEL_ENABLED", "")

	require.NoError(t, Init(context.Background(), "trellis-test", "0.0.0"))
	assert.False(t, Enabled())
	assert.Empty(t, shutdownFns, "no-op providers must not register shutdown hooks")
	assert.NotNil(t, Tracer(""))
	assert.NotNil(t, Meter(""))
}

func TestInitEnabledStdout(t *testing.T) {
	t.Setenv("TRELLIS_OTEL_ENABLED", "true")
	t.Setenv("TRELLIS_OTEL_STDOUT", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	ctx := context.Background()
	require.NoError(t, Init(ctx, "trellis-test", "0.0.0"))
	defer Shutdown(ctx)

	assert.True(t, Enabled())
	assert.Len(t, shutdownFns, 2, "trace and metric providers register shutdown hooks")
}

func TestStoreInstrumentsNilSafe(t *testing.T) {
	var inst *Instruments
	ctx := context.Background()
	assert.NotPanics(t, func() {
		inst.RecordFetch(ctx, "project")
		inst.RecordMutation(ctx, "update")
		inst.RecordRollback(ctx, "update")
	})
}

func TestStoreInstrumentsSingleton(t *testing.T) {
	a := StoreInstruments()
	b := StoreInstruments()
	require.NotNil(t, a)
	assert.Same(t, a, b)
}
