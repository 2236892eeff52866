package embedcache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/rankd/internal/embedcache"

// Metrics holds cache instrumentation.
type Metrics struct {
	meter         metric.Meter
	logger        *zap.Logger
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	remoteErrors  metric.Int64Counter
	droppedWrites metric.Int64Counter
}

// NewMetrics creates cache metrics.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.hits, err = m.meter.Int64Counter(
		"rankd.embedcache.hits_total",
		metric.WithDescription("Cache hits by layer (local, remote)"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		m.logger.Warn("failed to create hits counter", zap.Error(err))
	}

	m.misses, err = m.meter.Int64Counter(
		"rankd.embedcache.misses_total",
		metric.WithDescription("Cache misses, including expired and corrupt entries"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		m.logger.Warn("failed to create misses counter", zap.Error(err))
	}

	m.remoteErrors, err = m.meter.Int64Counter(
		"rankd.embedcache.remote_errors_total",
		metric.WithDescription("Remote backing store errors by operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create remote errors counter", zap.Error(err))
	}

	m.droppedWrites, err = m.meter.Int64Counter(
		"rankd.embedcache.dropped_writes_total",
		metric.WithDescription("Fire-and-forget remote writes dropped due to backlog"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		m.logger.Warn("failed to create dropped writes counter", zap.Error(err))
	}
}

// RecordHit records a cache hit on the given layer.
func (m *Metrics) RecordHit(ctx context.Context, layer string) {
	if m.hits != nil {
		m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
	}
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss(ctx context.Context) {
	if m.misses != nil {
		m.misses.Add(ctx, 1)
	}
}

// RecordRemoteError records a remote store failure.
func (m *Metrics) RecordRemoteError(ctx context.Context, op string) {
	if m.remoteErrors != nil {
		m.remoteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

// RecordDroppedWrite records a dropped fire-and-forget write.
func (m *Metrics) RecordDroppedWrite(ctx context.Context) {
	if m.droppedWrites != nil {
		m.droppedWrites.Add(ctx, 1)
	}
}
