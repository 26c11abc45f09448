package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var oneTimeRegister sync.Once

type prometheusSink struct {
	packets          *prometheus.CounterVec
	malformed        *prometheus.CounterVec
	flows            prometheus.Gauge
	flowsInserted    prometheus.Counter
	capacityExceeded prometheus.Counter
	generation       prometheus.Gauge
	migrations       *prometheus.CounterVec
	recordsMoved     prometheus.Counter
	draining         prometheus.Gauge
	rejected         *prometheus.CounterVec
	requests         *prometheus.CounterVec

	// Per-core counters are resolved once. WithLabelValues allocates and
	// PacketsClassified is called for every sub-batch.
	coreCounters sync.Map
}

var promMetrics *prometheusSink

// NewPrometheusSink creates a metrics sink for Prometheus. All sinks created
// by this function will write to the same sinks.
func NewPrometheusSink(instance string) Sink {
	// This registers the metrics for the first time but not for subsequent
	// calls. Since this is a one-time operation it will also work for unit
	// tests but the instance label might be stale.
	oneTimeRegister.Do(func() {
		labels := prometheus.Labels{"instance": instance}
		promMetrics = &prometheusSink{
			// packets is the number of packets dispatched to each core.
			packets: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace:   "ff",
					Subsystem:   "classifier",
					Name:        "packets",
					Help:        "Packets dispatched per destination core",
					ConstLabels: labels,
				},
				[]string{"core"}),
			malformed: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace:   "ff",
					Subsystem:   "classifier",
					Name:        "malformed",
					Help:        "Packets without a flow identity",
					ConstLabels: labels,
				},
				[]string{"outcome"}),
			flows: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace:   "ff",
					Subsystem:   "table",
					Name:        "flows",
					Help:        "Flow records in the owner table",
					ConstLabels: labels,
				}),
			flowsInserted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace:   "ff",
					Subsystem:   "table",
					Name:        "inserted",
					Help:        "Flow records created",
					ConstLabels: labels,
				}),
			capacityExceeded: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace:   "ff",
					Subsystem:   "table",
					Name:        "capacityExceeded",
					Help:        "Lookups assigned by plan without caching since the table was full",
					ConstLabels: labels,
				}),
			generation: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace:   "ff",
					Subsystem:   "migration",
					Name:        "generation",
					Help:        "Current migration generation",
					ConstLabels: labels,
				}),
			migrations: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace:   "ff",
					Subsystem:   "migration",
					Name:        "migrations",
					Help:        "Migrations per source core and phase",
					ConstLabels: labels,
				},
				[]string{"source", "phase"}),
			recordsMoved: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace:   "ff",
					Subsystem:   "migration",
					Name:        "recordsMoved",
					Help:        "Flow records reassigned by migrations",
					ConstLabels: labels,
				}),
			draining: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace:   "ff",
					Subsystem:   "migration",
					Name:        "draining",
					Help:        "Migrations waiting for post-migration",
					ConstLabels: labels,
				}),
			rejected: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace:   "ff",
					Subsystem:   "migration",
					Name:        "rejected",
					Help:        "Rejected migration operations",
					ConstLabels: labels,
				},
				[]string{"reason"}),
			// requests show the number of requests handled by the management interceptor.
			requests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace:   "ff",
					Subsystem:   "management",
					Name:        "requests",
					Help:        "Management requests handled",
					ConstLabels: labels,
				},
				[]string{"method"}),
		}
		prometheus.MustRegister(promMetrics.packets)
		prometheus.MustRegister(promMetrics.malformed)
		prometheus.MustRegister(promMetrics.flows)
		prometheus.MustRegister(promMetrics.flowsInserted)
		prometheus.MustRegister(promMetrics.capacityExceeded)
		prometheus.MustRegister(promMetrics.generation)
		prometheus.MustRegister(promMetrics.migrations)
		prometheus.MustRegister(promMetrics.recordsMoved)
		prometheus.MustRegister(promMetrics.draining)
		prometheus.MustRegister(promMetrics.rejected)
		prometheus.MustRegister(promMetrics.requests)
	})
	return promMetrics
}

func (p *prometheusSink) PacketsClassified(core int, count int) {
	c, ok := p.coreCounters.Load(core)
	if !ok {
		c, _ = p.coreCounters.LoadOrStore(core, p.packets.WithLabelValues(strconv.Itoa(core)))
	}
	c.(prometheus.Counter).Add(float64(count))
}

func (p *prometheusSink) PacketMalformed(dropped bool) {
	outcome := "default"
	if dropped {
		outcome = "dropped"
	}
	p.malformed.WithLabelValues(outcome).Inc()
}

func (p *prometheusSink) FlowInserted() {
	p.flows.Inc()
	p.flowsInserted.Inc()
}

func (p *prometheusSink) FlowRemoved() {
	p.flows.Dec()
}

func (p *prometheusSink) CapacityExceeded() {
	p.capacityExceeded.Inc()
}

func (p *prometheusSink) SetGeneration(generation uint64) {
	p.generation.Set(float64(generation))
}

func (p *prometheusSink) MigrationStarted(source int, records int) {
	p.migrations.WithLabelValues(strconv.Itoa(source), "pre").Inc()
	p.recordsMoved.Add(float64(records))
	p.draining.Inc()
}

func (p *prometheusSink) MigrationCompleted(source int) {
	p.migrations.WithLabelValues(strconv.Itoa(source), "post").Inc()
	p.draining.Dec()
}

func (p *prometheusSink) MigrationRejected(reason string) {
	p.rejected.WithLabelValues(reason).Inc()
}

func (p *prometheusSink) LogRequest(method string) {
	p.requests.WithLabelValues(method).Inc()
}
