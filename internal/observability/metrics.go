package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics. Metrics sharing a name but
// differing in labels are written as one family.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

// NewCounter creates and registers a counter. Registering the same series
// twice returns the existing counter.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[key] = g
	return g
}

// NewHistogram creates and registers a histogram.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	if h, ok := r.histos[key]; ok {
		return h
	}
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[key] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records the time elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes metrics in Prometheus text format, sorted by series.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	header := func(name, kind, help string) {
		if seen[name] {
			return
		}
		seen[name] = true
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	}

	for _, key := range sortedKeys(r.counters) {
		c := r.counters[key]
		header(c.name, "counter", c.help)
		fmt.Fprintf(w, "%s %s\n", key, formatFloat(c.Value()))
	}
	for _, key := range sortedKeys(r.gauges) {
		g := r.gauges[key]
		header(g.name, "gauge", g.help)
		fmt.Fprintf(w, "%s %s\n", key, formatFloat(g.Value()))
	}
	for _, key := range sortedKeys(r.histos) {
		h := r.histos[key]
		header(h.name, "histogram", h.help)
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func writeHistogram(w io.Writer, h *Histogram) {
	// counts are already cumulative: Observe bumps every bucket at or above v.
	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, formatLabels(labels), h.counts[i])
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, formatLabels(labels), h.count)
	fmt.Fprintf(w, "%s_sum%s %s\n", h.name, formatLabels(h.labels), formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, formatLabels(h.labels), h.count)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range sortedKeys(labels) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(labels[k]))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Query pipeline stages with their own latency histogram.
const (
	StageEmbed  = "embed"
	StageSearch = "search"
	StageRerank = "rerank"
	StageLLM    = "llm"
)

// RAGMetrics contains the query and ingestion metrics served on /metrics.
type RAGMetrics struct {
	Registry *MetricsRegistry

	QueriesTotal         *Counter
	QueryErrorsTotal     *Counter
	CacheHitsTotal       *Counter
	CacheMissesTotal     *Counter
	DegradedAnswersTotal *Counter
	NotFoundTotal        *Counter
	QueryDuration        *Histogram

	stages map[string]*Histogram

	LLMRequestsTotal *Counter
	LLMErrorsTotal   *Counter
	LLMTokensTotal   *Counter

	IndexSize          *Gauge
	ChunksIndexedTotal *Counter
}

// NewRAGMetrics creates the hrrag metrics on a fresh registry.
func NewRAGMetrics() *RAGMetrics {
	r := NewMetricsRegistry()

	m := &RAGMetrics{
		Registry: r,

		QueriesTotal:         r.NewCounter("hrrag_queries_total", "Total questions received", nil),
		QueryErrorsTotal:     r.NewCounter("hrrag_query_errors_total", "Questions that failed with an error", nil),
		CacheHitsTotal:       r.NewCounter("hrrag_cache_hits_total", "Questions answered from the cache", nil),
		CacheMissesTotal:     r.NewCounter("hrrag_cache_misses_total", "Questions that ran the full pipeline", nil),
		DegradedAnswersTotal: r.NewCounter("hrrag_degraded_answers_total", "Answers produced without a successful LLM call", nil),
		NotFoundTotal:        r.NewCounter("hrrag_not_found_total", "Questions with no matching policy text", nil),
		QueryDuration:        r.NewHistogram("hrrag_query_duration_seconds", "End-to-end question latency", nil, nil),

		stages: make(map[string]*Histogram),

		LLMRequestsTotal: r.NewCounter("hrrag_llm_requests_total", "Total LLM completion requests", nil),
		LLMErrorsTotal:   r.NewCounter("hrrag_llm_errors_total", "Failed LLM completion requests", nil),
		LLMTokensTotal:   r.NewCounter("hrrag_llm_tokens_total", "Total tokens used by completions", nil),

		IndexSize:          r.NewGauge("hrrag_index_chunks", "Chunks in the vector index", nil),
		ChunksIndexedTotal: r.NewCounter("hrrag_chunks_indexed_total", "Chunks written by ingestion", nil),
	}
	for _, stage := range []string{StageEmbed, StageSearch, StageRerank, StageLLM} {
		m.stages[stage] = r.NewHistogram("hrrag_stage_duration_seconds", "Pipeline stage latency",
			map[string]string{"stage": stage}, nil)
	}
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *RAGMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// Stage returns the latency histogram of a pipeline stage, or nil for an unknown stage.
func (m *RAGMetrics) Stage(stage string) *Histogram {
	return m.stages[stage]
}

// ObserveStage records a stage latency.
func (m *RAGMetrics) ObserveStage(stage string, d time.Duration) {
	if h := m.stages[stage]; h != nil {
		h.Observe(d.Seconds())
	}
}

// RecordQuery records the outcome of one question.
func (m *RAGMetrics) RecordQuery(d time.Duration, cached, degraded, notFound bool, err error) {
	m.QueriesTotal.Inc()
	if err != nil {
		m.QueryErrorsTotal.Inc()
		return
	}
	m.QueryDuration.Observe(d.Seconds())
	if cached {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
	if degraded {
		m.DegradedAnswersTotal.Inc()
	}
	if notFound {
		m.NotFoundTotal.Inc()
	}
}

// RecordLLMRequest records a completion request.
func (m *RAGMetrics) RecordLLMRequest(d time.Duration, tokens int, err error) {
	m.LLMRequestsTotal.Inc()
	m.ObserveStage(StageLLM, d)
	if err != nil {
		m.LLMErrorsTotal.Inc()
		return
	}
	m.LLMTokensTotal.Add(float64(tokens))
}
