package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collect gathers the metrics recorded under scopeName keyed by instrument name
func collect(t *testing.T, reader *sdkmetric.ManualReader, scopeName string) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != scopeName {
			continue
		}
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func TestNewSyncMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewSyncMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates metrics with SDK provider", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewSyncMetrics(mp)
		require.NoError(t, err)
		require.NotNil(t, metrics)
		assert.NotNil(t, metrics.downloadDuration)
		assert.NotNil(t, metrics.uploadDuration)
		assert.NotNil(t, metrics.allowlistSize)
	})
}

func TestSyncMetrics_NilSafety(t *testing.T) {
	t.Parallel()

	var metrics *SyncMetrics
	// Should not panic
	metrics.RecordDownloadDuration(context.Background(), time.Second, true, true)
	metrics.RecordUploadDuration(context.Background(), time.Second, false)
	metrics.RecordAllowlistSize(context.Background(), 3)
}

func TestSyncMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)

	metrics.RecordDownloadDuration(context.Background(), 1500*time.Millisecond, true, true)
	metrics.RecordUploadDuration(context.Background(), 500*time.Millisecond, false)
	metrics.RecordAllowlistSize(context.Background(), 7)

	found := collect(t, reader, SyncMetricsMeterName)

	download, ok := found["nearby_sync_download_duration_seconds"]
	require.True(t, ok)
	hist, ok := download.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected histogram data type")
	require.NotEmpty(t, hist.DataPoints)
	// Sum should be 1.5 (seconds)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)

	_, ok = found["nearby_sync_upload_duration_seconds"]
	assert.True(t, ok)

	size, ok := found["nearby_sync_allowlist_size"]
	require.True(t, ok)
	gauge, ok := size.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "expected gauge data type")
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(7), gauge.DataPoints[0].Value)
}

func TestAdvertisingMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewAdvertisingMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)

		// Should not panic
		metrics.RecordTransition(context.Background(), "advertising", "ok")
	})

	t.Run("counts transitions", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewAdvertisingMetrics(mp)
		require.NoError(t, err)

		metrics.RecordTransition(context.Background(), "advertising", "ok")
		metrics.RecordTransition(context.Background(), "advertising", "ok")
		metrics.RecordTransition(context.Background(), "not_advertising", "screen_locked")

		found := collect(t, reader, AdvertisingMetricsMeterName)
		transitions, ok := found["nearby_sync_advertising_transitions_total"]
		require.True(t, ok)

		sum, ok := transitions.Data.(metricdata.Sum[int64])
		require.True(t, ok, "expected sum data type")

		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		assert.Equal(t, int64(3), total)
		assert.Len(t, sum.DataPoints, 2)
	})
}
