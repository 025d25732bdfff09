package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the polling loop.
//
// Implementations must be inexpensive: hooks run inline with the bus
// read path.
type Collector interface {
	IncPollCycle()
	IncRegisterRead(slave int)
	IncReadError(slave int)
	ObserveCycleDuration(d time.Duration)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector { return noopCollector{} }

func (noopCollector) IncPollCycle()                      {}
func (noopCollector) IncRegisterRead(int)                {}
func (noopCollector) IncReadError(int)                   {}
func (noopCollector) ObserveCycleDuration(time.Duration) {}

// PrometheusCollector exposes polling counters via Prometheus.
type PrometheusCollector struct {
	cycles        prometheus.Counter
	registerReads *prometheus.CounterVec
	readErrors    *prometheus.CounterVec
	cycleSeconds  prometheus.Histogram
}

// NewPrometheusCollector registers the polling metrics with the provided
// registerer (the default registerer when nil).
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_poll_cycles_total",
			Help: "Number of completed poll cycles.",
		}),
		registerReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_register_reads_total",
			Help: "Number of successful register reads per slave device.",
		}, []string{"slave"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_read_errors_total",
			Help: "Number of failed register reads per slave device.",
		}, []string{"slave"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terminal_poll_cycle_seconds",
			Help:    "Duration of one full poll cycle across all devices.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	for _, col := range []prometheus.Collector{c.cycles, c.registerReads, c.readErrors, c.cycleSeconds} {
		if err := register(reg, col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func register(reg prometheus.Registerer, col prometheus.Collector) error {
	if err := reg.Register(col); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

func (c *PrometheusCollector) IncPollCycle() { c.cycles.Inc() }

func (c *PrometheusCollector) IncRegisterRead(slave int) {
	c.registerReads.WithLabelValues(strconv.Itoa(slave)).Inc()
}

func (c *PrometheusCollector) IncReadError(slave int) {
	c.readErrors.WithLabelValues(strconv.Itoa(slave)).Inc()
}

func (c *PrometheusCollector) ObserveCycleDuration(d time.Duration) {
	c.cycleSeconds.Observe(d.Seconds())
}
