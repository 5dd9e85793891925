package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gamedb"

// Propagation outcomes.
const (
	ResultApplied = "applied"
	ResultQueued  = "queued"
	ResultFailed  = "failed"
)

// Collector captures replication counters and gauges. A nil *Collector is
// valid and records nothing.
type Collector struct {
	propagations *prometheus.CounterVec
	retries      *prometheus.CounterVec
	cycles       prometheus.Counter
	pending      prometheus.Gauge
}

// New registers the replication metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		propagations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagations_total",
			Help:      "Propagation attempts by target node and outcome.",
		}, []string{"target", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_retries_total",
			Help:      "Queued operations retried by the reconciler by target node and outcome.",
		}, []string{"target", "result"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_cycles_total",
			Help:      "Completed reconciliation cycles.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_operations",
			Help:      "Operations waiting in the retry queue.",
		}),
	}
	reg.MustRegister(c.propagations, c.retries, c.cycles, c.pending)
	return c
}

func (c *Collector) Propagation(target, result string) {
	if c == nil {
		return
	}
	c.propagations.WithLabelValues(target, result).Inc()
}

func (c *Collector) Retry(target, result string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(target, result).Inc()
}

func (c *Collector) CycleDone() {
	if c == nil {
		return
	}
	c.cycles.Inc()
}

func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.pending.Set(float64(n))
}
