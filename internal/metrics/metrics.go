// Package metrics exposes collection counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scraper"

// Collector counts pipeline activity per source.
type Collector struct {
	Fetched *prometheus.CounterVec
	Kept    *prometheus.CounterVec
	Retries *prometheus.CounterVec
	Pruned  *prometheus.CounterVec
}

// New creates the counters and registers them on reg. A nil reg leaves them
// unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_fetched_total",
			Help:      "Items read from upstream before filtering.",
		}, []string{"source"}),
		Kept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_kept_total",
			Help:      "Items that passed the filter chain.",
		}, []string{"source"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Failed upstream attempts that were retried.",
		}, []string{"source"}),
		Pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtrees_pruned_total",
			Help:      "Reply subtrees left out of a tree, by reason.",
		}, []string{"source", "reason"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, cv := range []prometheus.Collector{c.Fetched, c.Kept, c.Retries, c.Pruned} {
		if err := reg.Register(cv); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) ObserveFetched(source string, n int) {
	if c == nil {
		return
	}
	c.Fetched.WithLabelValues(source).Add(float64(n))
}

func (c *Collector) ObserveKept(source string, n int) {
	if c == nil {
		return
	}
	c.Kept.WithLabelValues(source).Add(float64(n))
}

func (c *Collector) ObserveRetry(source string) {
	if c == nil {
		return
	}
	c.Retries.WithLabelValues(source).Inc()
}

func (c *Collector) ObservePruned(source, reason string, n int) {
	if c == nil {
		return
	}
	c.Pruned.WithLabelValues(source, reason).Add(float64(n))
}
