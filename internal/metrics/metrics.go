// Package metrics keeps an in-process registry of counters, gauges, and
// timers behind the operational metrics endpoint. Series are keyed by
// name plus a canonical label encoding, so the same labels always land
// on the same series regardless of map iteration order.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// timerSampleCap bounds the per-series sample ring used for
// percentiles. Older samples fall off once the ring is full.
const timerSampleCap = 512

// CounterPoint is one counter series in a snapshot.
type CounterPoint struct {
	Name        string            `json:"name"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// GaugePoint is one gauge series in a snapshot.
type GaugePoint struct {
	Name        string            `json:"name"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerStats is the aggregated view of one timer series. Percentiles
// are computed over the bounded sample ring at snapshot time and are
// omitted until the series has at least ten samples.
type TimerStats struct {
	Count int64   `json:"count"`
	SumMs float64 `json:"sum_ms"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P95Ms float64 `json:"p95_ms,omitempty"`
	P99Ms float64 `json:"p99_ms,omitempty"`
}

// Snapshot is the full registry state served by the metrics endpoint.
type Snapshot struct {
	Counters  map[string]CounterPoint `json:"counters"`
	Gauges    map[string]GaugePoint   `json:"gauges"`
	Timers    map[string]TimerStats   `json:"timers"`
	UptimeMs  int64                   `json:"uptime_ms"`
	Timestamp int64                   `json:"timestamp"`
}

type counterSeries struct {
	labels      map[string]string
	description string
	value       float64
	lastUpdate  time.Time
}

type gaugeSeries struct {
	labels      map[string]string
	description string
	value       float64
	lastUpdate  time.Time
}

type timerSeries struct {
	count   int64
	sumMs   float64
	minMs   float64
	maxMs   float64
	samples []float64
	next    int
	full    bool
}

func (t *timerSeries) observe(ms float64) {
	t.count++
	t.sumMs += ms
	if t.count == 1 || ms < t.minMs {
		t.minMs = ms
	}
	if ms > t.maxMs {
		t.maxMs = ms
	}
	if len(t.samples) < timerSampleCap {
		t.samples = append(t.samples, ms)
		return
	}
	t.samples[t.next] = ms
	t.next = (t.next + 1) % timerSampleCap
	t.full = true
}

// Registry holds all metric series behind one lock. Writes are cheap
// (no sorting, no percentile math); the expensive aggregation happens
// only when a snapshot is taken.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*counterSeries
	gauges   map[string]*gaugeSeries
	timers   map[string]*timerSeries
	started  time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*counterSeries),
		gauges:   make(map[string]*gaugeSeries),
		timers:   make(map[string]*timerSeries),
		started:  time.Now(),
	}
}

var defaultRegistry = NewRegistry()

// GetRegistry returns the process-wide registry.
func GetRegistry() *Registry {
	return defaultRegistry
}

// seriesKey canonicalizes a name and label set. Labels are sorted by
// key so every caller reaches the same series.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('{')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte('}')
	}
	return b.String()
}

func cloneLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// IncrementCounter adds one to a counter series.
func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

// AddToCounter adds a value to a counter series, creating it on first
// use.
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	key := seriesKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	series, ok := r.counters[key]
	if !ok {
		series = &counterSeries{labels: cloneLabels(labels), description: description}
		r.counters[key] = series
	}
	series.value += value
	series.lastUpdate = time.Now()
}

// SetGauge overwrites a gauge series with the given value.
func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	key := seriesKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	series, ok := r.gauges[key]
	if !ok {
		series = &gaugeSeries{labels: cloneLabels(labels), description: description}
		r.gauges[key] = series
	}
	series.value = value
	series.lastUpdate = time.Now()
}

// RecordTimer folds one duration into a timer series.
func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	key := seriesKey(name, labels)
	ms := float64(duration.Nanoseconds()) / 1e6

	r.mu.Lock()
	defer r.mu.Unlock()

	series, ok := r.timers[key]
	if !ok {
		series = &timerSeries{}
		r.timers[key] = series
	}
	series.observe(ms)
}

// GetAllMetrics aggregates every series into a snapshot safe to hand
// out: all maps and stats are copies.
func (r *Registry) GetAllMetrics() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Counters:  make(map[string]CounterPoint, len(r.counters)),
		Gauges:    make(map[string]GaugePoint, len(r.gauges)),
		Timers:    make(map[string]TimerStats, len(r.timers)),
		UptimeMs:  time.Since(r.started).Milliseconds(),
		Timestamp: time.Now().Unix(),
	}

	for key, series := range r.counters {
		snap.Counters[key] = CounterPoint{
			Name:        baseName(key),
			Value:       series.value,
			Labels:      cloneLabels(series.labels),
			Description: series.description,
			LastUpdate:  series.lastUpdate,
		}
	}
	for key, series := range r.gauges {
		snap.Gauges[key] = GaugePoint{
			Name:        baseName(key),
			Value:       series.value,
			Labels:      cloneLabels(series.labels),
			Description: series.description,
			LastUpdate:  series.lastUpdate,
		}
	}
	for key, series := range r.timers {
		snap.Timers[key] = series.stats()
	}
	return snap
}

// Reset drops every series. Tests share the process-wide registry and
// call this between cases.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]*counterSeries)
	r.gauges = make(map[string]*gaugeSeries)
	r.timers = make(map[string]*timerSeries)
}

func (t *timerSeries) stats() TimerStats {
	stats := TimerStats{
		Count: t.count,
		SumMs: t.sumMs,
		MinMs: t.minMs,
		MaxMs: t.maxMs,
	}
	if t.count > 0 {
		stats.AvgMs = t.sumMs / float64(t.count)
	}

	n := len(t.samples)
	if n >= 10 {
		sorted := make([]float64, n)
		copy(sorted, t.samples)
		sort.Float64s(sorted)
		stats.P95Ms = percentile(sorted, 0.95)
		stats.P99Ms = percentile(sorted, 0.99)
	}
	return stats
}

// percentile reads the given quantile from an already sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func baseName(key string) string {
	if i := strings.IndexByte(key, '{'); i >= 0 {
		return key[:i]
	}
	return key
}

// Process-wide helpers mirroring the Registry methods.

// IncrementCounter adds one to a counter in the process-wide registry.
func IncrementCounter(name string, labels map[string]string, description string) {
	defaultRegistry.IncrementCounter(name, labels, description)
}

// AddToCounter adds a value to a counter in the process-wide registry.
func AddToCounter(name string, value float64, labels map[string]string, description string) {
	defaultRegistry.AddToCounter(name, value, labels, description)
}

// RecordTimer records a duration in the process-wide registry.
func RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	defaultRegistry.RecordTimer(name, duration, labels, description)
}

// SetGauge sets a gauge in the process-wide registry.
func SetGauge(name string, value float64, labels map[string]string, description string) {
	defaultRegistry.SetGauge(name, value, labels, description)
}

// GetAllMetrics snapshots the process-wide registry.
func GetAllMetrics() Snapshot {
	return defaultRegistry.GetAllMetrics()
}
