package stats

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relloyd/odsync/logger"
)

const namespace = "odsync"

type Kind string

const (
	KindCounter Kind = "count"
	KindGauge   Kind = "gauge"
	KindTiming  Kind = "seconds"
)

// Sample is one recorded observation, kept for the SQL export.
type Sample struct {
	Name   string
	Kind   Kind
	Value  float64
	Labels map[string]string
	At     time.Time
}

// Sink accepts named counters, gauges and timings tagged with labels.
type Sink interface {
	Increment(name string, delta float64, labels map[string]string)
	Gauge(name string, value float64, labels map[string]string)
	Timing(name string, d time.Duration, labels map[string]string)
}

// Collector implements Sink on a private prometheus registry and keeps every sample for batch export.
// The label keys of a metric are fixed by its first observation; missing keys are recorded as empty.
type Collector struct {
	log       logger.Logger
	clock     clockwork.Clock
	mu        sync.Mutex
	registry  *prometheus.Registry
	counters  map[string]*prometheus.CounterVec
	gauges    map[string]*prometheus.GaugeVec
	timings   map[string]*prometheus.HistogramVec
	labelKeys map[string][]string
	samples   []Sample
}

func NewCollector(log logger.Logger, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{
		log:       log,
		clock:     clock,
		registry:  prometheus.NewRegistry(),
		counters:  make(map[string]*prometheus.CounterVec),
		gauges:    make(map[string]*prometheus.GaugeVec),
		timings:   make(map[string]*prometheus.HistogramVec),
		labelKeys: make(map[string][]string),
	}
}

// Registry returns the registry for the web handler, textfile and push exporters.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Increment(name string, delta float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: metricName(name) + "_total", Help: name}, c.keysFor(name, labels))
		if !c.register(name, vec) {
			return
		}
		c.counters[name] = vec
	}
	vec.With(c.project(name, labels)).Add(delta)
	c.append(name, KindCounter, delta, labels)
}

func (c *Collector) Gauge(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: metricName(name), Help: name}, c.keysFor(name, labels))
		if !c.register(name, vec) {
			return
		}
		c.gauges[name] = vec
	}
	vec.With(c.project(name, labels)).Set(value)
	c.append(name, KindGauge, value, labels)
}

func (c *Collector) Timing(name string, d time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.timings[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      metricName(name) + "_seconds",
			Help:      name,
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, c.keysFor(name, labels))
		if !c.register(name, vec) {
			return
		}
		c.timings[name] = vec
	}
	vec.With(c.project(name, labels)).Observe(d.Seconds())
	c.append(name, KindTiming, d.Seconds(), labels)
}

// Samples returns a copy of all observations in the order recorded.
func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sample{}, c.samples...)
}

// Sum returns the total of all samples called name.
func (c *Collector) Sum(name string) float64 {
	var total float64
	for _, s := range c.Samples() {
		if s.Name == name {
			total += s.Value
		}
	}
	return total
}

func (c *Collector) register(name string, col prometheus.Collector) bool {
	if err := c.registry.Register(col); err != nil {
		c.log.Warn("unable to register metric ", name, ": ", err)
		return false
	}
	return true
}

func (c *Collector) keysFor(name string, labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, metricName(k))
	}
	sort.Strings(keys)
	c.labelKeys[name] = keys
	return keys
}

func (c *Collector) project(name string, labels map[string]string) prometheus.Labels {
	retval := prometheus.Labels{}
	for _, k := range c.labelKeys[name] {
		retval[k] = ""
	}
	for k, v := range labels {
		if _, ok := retval[metricName(k)]; ok {
			retval[metricName(k)] = v
		}
	}
	return retval
}

func (c *Collector) append(name string, kind Kind, v float64, labels map[string]string) {
	cp := make(map[string]string, len(labels))
	for k, val := range labels {
		cp[k] = val
	}
	c.samples = append(c.samples, Sample{Name: name, Kind: kind, Value: v, Labels: cp, At: c.clock.Now()})
}

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func metricName(s string) string {
	return invalidMetricChars.ReplaceAllString(strings.TrimSpace(s), "_")
}
