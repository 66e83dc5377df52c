// Package metrics collects counters and latency histograms for tools,
// orchestrator stages, the embedding cache, and the voice pipeline. The
// backing registry is private; consumers read a JSON snapshot.
package metrics

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type Service struct {
	reg *prometheus.Registry

	toolInvocations *prometheus.CounterVec
	toolFailures    *prometheus.CounterVec
	toolLatency     *prometheus.HistogramVec

	stageLatency *prometheus.HistogramVec

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheSize      prometheus.Gauge

	voiceLatency *prometheus.HistogramVec
}

func New() *Service {
	reg := prometheus.NewRegistry()
	s := &Service{
		reg: reg,
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_invocations_total",
			Help: "Tool invocations by tool name.",
		}, []string{"tool"}),
		toolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_failures_total",
			Help: "Failed tool invocations by tool name.",
		}, []string{"tool"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tool_latency_seconds",
			Help:    "Tool execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stage_latency_seconds",
			Help:    "Orchestrator stage latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedding_cache_hits_total",
			Help: "Embedding cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedding_cache_misses_total",
			Help: "Embedding cache misses.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedding_cache_evictions_total",
			Help: "Embedding cache evictions.",
		}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "embedding_cache_size",
			Help: "Current embedding cache entry count.",
		}),
		voiceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_latency_seconds",
			Help:    "Voice pipeline segment latency.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
		}, []string{"segment"}),
	}
	reg.MustRegister(
		s.toolInvocations, s.toolFailures, s.toolLatency,
		s.stageLatency,
		s.cacheHits, s.cacheMisses, s.cacheEvictions, s.cacheSize,
		s.voiceLatency,
	)
	return s
}

func (s *Service) ObserveTool(name string, d time.Duration, success bool) {
	s.toolInvocations.WithLabelValues(name).Inc()
	if !success {
		s.toolFailures.WithLabelValues(name).Inc()
	}
	s.toolLatency.WithLabelValues(name).Observe(d.Seconds())
}

func (s *Service) ObserveStage(stage string, d time.Duration) {
	s.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func (s *Service) CacheHit()       { s.cacheHits.Inc() }
func (s *Service) CacheMiss()      { s.cacheMisses.Inc() }
func (s *Service) CacheEviction()  { s.cacheEvictions.Inc() }
func (s *Service) CacheSize(n int) { s.cacheSize.Set(float64(n)) }

// Voice pipeline segments.
const (
	SegmentSTT           = "stt"
	SegmentAgent         = "agent"
	SegmentTTS           = "tts"
	SegmentTTSFirstChunk = "tts_first_chunk"
	SegmentEndToEnd      = "end_to_end"
)

func (s *Service) ObserveVoice(segment string, d time.Duration) {
	s.voiceLatency.WithLabelValues(segment).Observe(d.Seconds())
}

// Snapshot gathers the registry into a JSON-friendly structure. Histograms
// report count, sum, and per-bucket cumulative counts.
func (s *Service) Snapshot() map[string]any {
	families, err := s.reg.Gather()
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	out := make(map[string]any, len(families))
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, fam := range families {
		series := make([]map[string]any, 0, len(fam.GetMetric()))
		for _, m := range fam.GetMetric() {
			entry := map[string]any{}
			for _, lp := range m.GetLabel() {
				entry[lp.GetName()] = lp.GetValue()
			}
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				entry["value"] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				entry["value"] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				entry["count"] = h.GetSampleCount()
				entry["sum"] = h.GetSampleSum()
				buckets := make(map[string]uint64, len(h.GetBucket()))
				for _, b := range h.GetBucket() {
					buckets[formatUpperBound(b.GetUpperBound())] = b.GetCumulativeCount()
				}
				entry["buckets"] = buckets
			}
			series = append(series, entry)
		}
		out[fam.GetName()] = series
	}
	return out
}

func formatUpperBound(f float64) string {
	if math.IsInf(f, +1) {
		return "+Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
