// Package metrics exports instruction buffer counters as Prometheus metrics.
//
// Metrics:
//   - instbuf_cycles_total{unit}: committed cycles
//   - instbuf_requests_total{unit}: processor requests accepted
//   - instbuf_tag_checks_total{unit, result}: tag checks by result (hit, miss)
//   - instbuf_evictions_total{unit}: refills that displaced a valid line
//   - instbuf_mem_requests_total{unit}: refill requests accepted by memory
//   - instbuf_responses_total{unit}: responses delivered to the processor
//   - instbuf_stall_cycles_total{unit, kind}: stall cycles by kind
//     (response, mem_request, refill_wait)
//   - instbuf_state_cycles_total{unit, state}: cycles spent per FSM state
//   - instbuf_hit_ratio{unit}: hits / tag checks
package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/instbuf/timing/instbuffer"
)

// StatsSource provides instruction buffer counters. *instbuffer.Unit
// implements it.
type StatsSource interface {
	Stats() instbuffer.Statistics
}

var (
	cyclesDesc = prometheus.NewDesc(
		"instbuf_cycles_total",
		"Total number of committed instruction buffer cycles",
		[]string{"unit"}, nil)
	requestsDesc = prometheus.NewDesc(
		"instbuf_requests_total",
		"Total number of processor requests accepted",
		[]string{"unit"}, nil)
	tagChecksDesc = prometheus.NewDesc(
		"instbuf_tag_checks_total",
		"Total number of tag checks by result",
		[]string{"unit", "result"}, nil)
	evictionsDesc = prometheus.NewDesc(
		"instbuf_evictions_total",
		"Total number of refills that displaced a valid line",
		[]string{"unit"}, nil)
	memRequestsDesc = prometheus.NewDesc(
		"instbuf_mem_requests_total",
		"Total number of refill requests accepted by memory",
		[]string{"unit"}, nil)
	responsesDesc = prometheus.NewDesc(
		"instbuf_responses_total",
		"Total number of responses delivered to the processor",
		[]string{"unit"}, nil)
	stallDesc = prometheus.NewDesc(
		"instbuf_stall_cycles_total",
		"Total number of stall cycles by kind",
		[]string{"unit", "kind"}, nil)
	stateDesc = prometheus.NewDesc(
		"instbuf_state_cycles_total",
		"Total number of cycles spent in each controller state",
		[]string{"unit", "state"}, nil)
	hitRatioDesc = prometheus.NewDesc(
		"instbuf_hit_ratio",
		"Fraction of tag checks that hit",
		[]string{"unit"}, nil)
)

// Collector is a prometheus.Collector over any number of named instruction
// buffers. Values are read from the sources at scrape time.
type Collector struct {
	mu      sync.Mutex
	sources map[string]StatsSource
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{sources: make(map[string]StatsSource)}
}

// Add registers a source under a unit label. Labels must be unique.
func (c *Collector) Add(unit string, src StatsSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sources[unit]; ok {
		return fmt.Errorf("unit %q already registered", unit)
	}
	c.sources[unit] = src

	return nil
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cyclesDesc
	ch <- requestsDesc
	ch <- tagChecksDesc
	ch <- evictionsDesc
	ch <- memRequestsDesc
	ch <- responsesDesc
	ch <- stallDesc
	ch <- stateDesc
	ch <- hitRatioDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	units := make([]string, 0, len(c.sources))
	for unit := range c.sources {
		units = append(units, unit)
	}
	sort.Strings(units)

	for _, unit := range units {
		collectUnit(ch, unit, c.sources[unit].Stats())
	}
}

func collectUnit(ch chan<- prometheus.Metric, unit string, s instbuffer.Statistics) {
	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue,
			float64(v), append([]string{unit}, labels...)...)
	}

	counter(cyclesDesc, s.Cycles)
	counter(requestsDesc, s.Requests)
	counter(tagChecksDesc, s.Hits, "hit")
	counter(tagChecksDesc, s.Misses, "miss")
	counter(evictionsDesc, s.Evictions)
	counter(memRequestsDesc, s.MemRequests)
	counter(responsesDesc, s.Delivered)
	counter(stallDesc, s.RespStallCycles, "response")
	counter(stallDesc, s.MemReqStallCycles, "mem_request")
	counter(stallDesc, s.RefillWaitCycles, "refill_wait")

	for _, state := range instbuffer.States {
		counter(stateDesc, s.CyclesIn(state), state.String())
	}

	ch <- prometheus.MustNewConstMetric(hitRatioDesc, prometheus.GaugeValue,
		s.HitRate(), unit)
}

// WriteTextfile gathers every metric of the collector and writes them in the
// text exposition format to path, e.g. for the node exporter's textfile
// collector.
func (c *Collector) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}

	return nil
}
