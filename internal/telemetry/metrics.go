// Package telemetry provides OpenTelemetry instrumentation for nearby-sync.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the contact sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/nearby-sync/sync"

	// AdvertisingMetricsMeterName is the name used for the advertising metrics meter
	AdvertisingMetricsMeterName = "github.com/stacklok/nearby-sync/advertising"
)

var durationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// SyncMetrics holds the OpenTelemetry instruments for contact sync
type SyncMetrics struct {
	downloadDuration metric.Float64Histogram
	uploadDuration   metric.Float64Histogram
	allowlistSize    metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	downloadDuration, err := meter.Float64Histogram(
		"nearby_sync_download_duration_seconds",
		metric.WithDescription("Duration of contact downloads in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	uploadDuration, err := meter.Float64Histogram(
		"nearby_sync_upload_duration_seconds",
		metric.WithDescription("Duration of contact uploads in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	allowlistSize, err := meter.Int64Gauge(
		"nearby_sync_allowlist_size",
		metric.WithDescription("Number of contacts on the allow-list"),
		metric.WithUnit("{contact}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		downloadDuration: downloadDuration,
		uploadDuration:   uploadDuration,
		allowlistSize:    allowlistSize,
	}, nil
}

// RecordDownloadDuration records the duration of a contact download
func (m *SyncMetrics) RecordDownloadDuration(ctx context.Context, duration time.Duration, success, fullList bool) {
	if m == nil || m.downloadDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
		attribute.Bool("full_list", fullList),
	}

	m.downloadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordUploadDuration records the duration of a contact upload
func (m *SyncMetrics) RecordUploadDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.uploadDuration == nil {
		return
	}

	m.uploadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordAllowlistSize records the current allow-list size
func (m *SyncMetrics) RecordAllowlistSize(ctx context.Context, size int) {
	if m == nil || m.allowlistSize == nil {
		return
	}

	m.allowlistSize.Record(ctx, int64(size))
}

// AdvertisingMetrics holds the OpenTelemetry instruments for the advertising state machine
type AdvertisingMetrics struct {
	transitions metric.Int64Counter
}

// NewAdvertisingMetrics creates a new AdvertisingMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewAdvertisingMetrics(provider metric.MeterProvider) (*AdvertisingMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(AdvertisingMetricsMeterName)

	transitions, err := meter.Int64Counter(
		"nearby_sync_advertising_transitions_total",
		metric.WithDescription("Number of advertising session transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &AdvertisingMetrics{
		transitions: transitions,
	}, nil
}

// RecordTransition counts a session change. state is the new session state and
// reason the condition that produced it.
func (m *AdvertisingMetrics) RecordTransition(ctx context.Context, state, reason string) {
	if m == nil || m.transitions == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("state", state),
		attribute.String("reason", reason),
	}

	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}
