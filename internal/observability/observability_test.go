package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json"},
		{name: "console debug", level: "debug", format: "console"},
		{name: "defaults", level: "", format: ""},
		{name: "upper case level", level: "WARN", format: "json"},
		{name: "invalid level", level: "loud", format: "json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			_ = logger.Sync()
		})
	}
}

func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))

	LoggerFromContext(ctx, base).Info("hello")
	LoggerFromContext(context.Background(), base).Info("bare")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "req-123", logs.All()[0].ContextMap()["request_id"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "request_id")

	assert.NotNil(t, LoggerFromContext(ctx, nil))
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics("test", reg)
	ctx := context.Background()
	labels := RequestLabels{Task: "image", Provider: "openai", Mode: "sequential", Status: "success"}

	m.RecordRequest(ctx, labels)
	m.RecordRequest(ctx, labels)
	m.RecordLatency(ctx, 0.3, labels)
	m.RecordAttempt(ctx, "openai", "failure")
	m.RecordCost(ctx, 0.04, labels)
	m.RecordCost(ctx, 0, labels)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("image", "openai", "sequential", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attemptsTotal.WithLabelValues("openai", "failure")))
	assert.InDelta(t, 0.04, testutil.ToFloat64(m.costTotal.WithLabelValues("image", "openai")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}

func TestNoopMetrics(t *testing.T) {
	var m Metrics = NoopMetrics{}
	assert.NotPanics(t, func() {
		m.RecordRequest(context.Background(), RequestLabels{})
		m.RecordLatency(context.Background(), 1, RequestLabels{})
		m.RecordAttempt(context.Background(), "p", "success")
		m.RecordCost(context.Background(), 1, RequestLabels{})
	})
}

func TestRegisterQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	depth := 3
	RegisterQueueDepth("test", reg, func() int { return depth })

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "test_generation_queue_depth", families[0].GetName())
	assert.Equal(t, 3.0, families[0].GetMetric()[0].GetGauge().GetValue())

	depth = 0
	families, err = reg.Gather()
	require.NoError(t, err)
	assert.Zero(t, families[0].GetMetric()[0].GetGauge().GetValue())
}
