package reranker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/rankd/internal/reranker"

var (
	tiersServed        metric.Int64Counter
	cacheHitsCounter   metric.Int64Counter
	freshEmbedsCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter(instrumentationName)

	tiersServed, _ = meter.Int64Counter(
		"rankd.rerank.tiers_served_total",
		metric.WithDescription("Rerank requests served, labeled by the cascade tier that produced the result"),
		metric.WithUnit("{request}"),
	)
	cacheHitsCounter, _ = meter.Int64Counter(
		"rankd.rerank.cache_hits_total",
		metric.WithDescription("Candidate embeddings served from the cache during reranking"),
		metric.WithUnit("{hit}"),
	)
	freshEmbedsCounter, _ = meter.Int64Counter(
		"rankd.rerank.fresh_embeddings_total",
		metric.WithDescription("Candidate embeddings computed by inference during reranking"),
		metric.WithUnit("{embedding}"),
	)
}

func recordTierServed(ctx context.Context, t Tier) {
	if tiersServed != nil {
		tiersServed.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", t.String())))
	}
}

func recordCacheHits(ctx context.Context, n int64) {
	if cacheHitsCounter != nil && n > 0 {
		cacheHitsCounter.Add(ctx, n)
	}
}

func recordFreshEmbeddings(ctx context.Context, n int64) {
	if freshEmbedsCounter != nil && n > 0 {
		freshEmbedsCounter.Add(ctx, n)
	}
}
