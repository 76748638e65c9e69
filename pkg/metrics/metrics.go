// Package metrics records dispatch outcomes as Prometheus metrics.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

// Outcome labels.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
)

// Collector holds the engine and runtime metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchErrors   *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	transactionsTotal *prometheus.CounterVec
	accountsCommitted prometheus.Counter
	accountsLoaded    prometheus.Counter
}

// Option configures NewCollector.
type Option func(*Collector)

// WithProcessMetrics adds the Go runtime and process collectors.
func WithProcessMetrics() Option {
	return func(c *Collector) {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

// NewCollector creates a collector under namespace.
func NewCollector(namespace string, opts ...Option) *Collector {
	if namespace == "" {
		namespace = "anchor"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Instruction calls by program, instruction and outcome",
		},
		[]string{"program", "instruction", "outcome"},
	)

	c.dispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Failed instruction calls by error kind",
		},
		[]string{"kind"},
	)

	c.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from payload receipt to terminal phase",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		},
		[]string{"program"},
	)

	c.transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "transactions_total",
			Help:      "Transactions executed by outcome",
		},
		[]string{"outcome"},
	)

	c.accountsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "accounts_committed_total",
		Help:      "Accounts written to the store by committed transactions",
	})

	c.accountsLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "accounts_loaded_total",
		Help:      "Accounts read from the store",
	})

	c.registry.MustRegister(
		c.dispatchTotal,
		c.dispatchErrors,
		c.dispatchDuration,
		c.transactionsTotal,
		c.accountsCommitted,
		c.accountsLoaded,
	)

	for _, o := range opts {
		o(c)
	}
	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordDispatch records one instruction call. kind is the error kind of a
// failed call and empty on success.
func (c *Collector) RecordDispatch(program, instruction, kind string, duration time.Duration) {
	outcome := OutcomeCommitted
	if kind != "" {
		outcome = OutcomeAborted
		c.dispatchErrors.WithLabelValues(kind).Inc()
	}
	if instruction == "" {
		instruction = "unknown"
	}
	c.dispatchTotal.WithLabelValues(program, instruction, outcome).Inc()
	c.dispatchDuration.WithLabelValues(program).Observe(duration.Seconds())
}

// RecordTransaction records a finished transaction and how many accounts it
// committed.
func (c *Collector) RecordTransaction(err error, committed int) {
	outcome := OutcomeCommitted
	if err != nil {
		outcome = OutcomeAborted
	}
	c.transactionsTotal.WithLabelValues(outcome).Inc()
	c.accountsCommitted.Add(float64(committed))
}

// RecordAccountsLoaded counts accounts read from the store.
func (c *Collector) RecordAccountsLoaded(n int) {
	c.accountsLoaded.Add(float64(n))
}

// WriteText writes every gathered metric family in the Prometheus text
// exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
