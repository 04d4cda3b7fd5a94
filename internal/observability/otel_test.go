package observability

import (
	"context"
	"testing"

	"supportdesk/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTracing_DisabledIsNoop(t *testing.T) {
	tc := config.GetDefaultConfig().Monitoring.Tracing
	tc.Enabled = false
	shutdown, err := SetupTracing(context.Background(), tc, "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracing_EnabledBuildsProvider(t *testing.T) {
	tc := config.GetDefaultConfig().Monitoring.Tracing
	tc.Enabled = true
	tc.Endpoint = "http://127.0.0.1:4317"
	tc.ServiceName = "supportdesk-test"

	// 导出器惰性连接，收集器不在线时初始化仍然成功
	shutdown, err := SetupTracing(context.Background(), tc, "v0.0.0")
	if err != nil {
		t.Skipf("exporter unavailable: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestEndpointHost(t *testing.T) {
	tests := map[string]string{
		"http://localhost:4317":       "localhost:4317",
		"https://otel-collector:4317": "otel-collector:4317",
		"127.0.0.1:4317":              "127.0.0.1:4317",
		"":                            "",
		"http://":                     "http://",
	}
	for in, want := range tests {
		assert.Equal(t, want, endpointHost(in), in)
	}
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 0.1, sampleRatio(-1))
	assert.Equal(t, 0.1, sampleRatio(0))
	assert.Equal(t, 0.1, sampleRatio(1.5))
	assert.Equal(t, 0.5, sampleRatio(0.5))
}
