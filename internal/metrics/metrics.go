// Package metrics exposes the proxy's Prometheus counters, gauges, and
// histograms, one set per stage of the chat/speech pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proxy_chat_streams_active",
		Help: "Currently open /v1/chat/completions streams",
	})

	ChatStreamsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_chat_streams_total",
		Help: "Total chat streams handled",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proxy_stage_duration_seconds",
		Help:    "Per-stage latency (segment, dispatch, llm_relay, cache_wait)",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_errors_total",
		Help: "Error counts by stage and error kind",
	}, []string{"stage", "kind"})

	SegmenterSentencesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_segmenter_sentences_total",
		Help: "Sentences emitted by the segmenter",
	})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_cache_hits_total",
		Help: "Cache gets served from a Completed entry",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_cache_misses_total",
		Help: "Cache gets that found no existing entry",
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proxy_cache_size",
		Help: "Current number of entries held by the cache",
	})

	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_cache_evictions_total",
		Help: "Cache evictions by reason (lru, ttl)",
	}, []string{"reason"})

	BackendInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "proxy_backend_in_flight",
		Help: "In-flight synthesis requests per backend",
	}, []string{"backend"})

	DispatcherAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_dispatcher_attempts_total",
		Help: "Dispatcher synthesis attempts by outcome (success, retry, failure)",
	}, []string{"outcome"})

	SSEBytesRelayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_sse_bytes_relayed_total",
		Help: "Bytes of upstream SSE events relayed to clients",
	})
)
