// Package runtimemetrics exposes Prometheus counters for the operator-
// visible signals §6 names: taint events (Runtime.OnTaint) and guest
// thread completions (ThreadHandle.MarkFinished). Neither execproc nor
// sched import this package directly — a caller wires a *Collector's
// methods into Runtime.OnTaint and its own completion path, the same way
// the host application wires Runtime.OnTaint to anything else it wants.
package runtimemetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wasmproc/core/execproc"
)

// Collector holds the process-wide counters. Create one with New and
// register it against a *prometheus.Registry with Register.
type Collector struct {
	taints            *prometheus.CounterVec
	threadCompletions *prometheus.CounterVec
	loaderHandles     prometheus.Gauge
}

// New constructs a Collector. Call Register before any metric is
// observed, or the underlying vectors simply accumulate unregistered.
func New() *Collector {
	return &Collector{
		taints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmproc",
			Subsystem: "runtime",
			Name:      "taints_total",
			Help:      "Count of Runtime.OnTaint signals, by taint kind.",
		}, []string{"kind"}),
		threadCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmproc",
			Subsystem: "runtime",
			Name:      "thread_completions_total",
			Help:      "Count of guest thread completions, by exit bucket.",
		}, []string{"exit"}),
		loaderHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wasmproc",
			Subsystem: "runtime",
			Name:      "loader_handles_open",
			Help:      "Number of currently open dl_open handles, process-wide.",
		}),
	}
}

// Register adds the collector's metrics to reg. Mirrors the teacher's
// own GlobalMetricsRegistry.MustRegister pattern, but panics are left to
// the caller: a duplicate registration in this repo's tests (which may
// construct many Collectors) should fail loudly rather than be silently
// swallowed, so Register returns the error instead of calling MustRegister.
func (c *Collector) Register(reg *prometheus.Registry) error {
	for _, coll := range []prometheus.Collector{c.taints, c.threadCompletions, c.loaderHandles} {
		if err := reg.Register(coll); err != nil {
			return err
		}
	}
	return nil
}

// OnTaint is an execproc.OnTaintFunc: assign it to Runtime.OnTaint (or
// chain it behind an existing one) to count taint events by kind.
func (c *Collector) OnTaint(reason execproc.TaintReason) {
	c.taints.WithLabelValues(reason.Kind.String()).Inc()
}

// exitBucket groups exit codes into the label cardinality Prometheus can
// afford: zero, nonzero, or "error" for terminations with no exit code at
// all.
func exitBucket(result execproc.ThreadResult) string {
	switch {
	case result.Err != nil && result.ExitCode == 0:
		return "error"
	case result.ExitCode == 0:
		return "zero"
	default:
		return "nonzero"
	}
}

// OnThreadFinished records a guest thread's terminal result. Callers
// observe this themselves (e.g. after ThreadHandle.Join returns, or from
// their own completion callback) since ThreadHandle has no hook of its
// own to chain onto.
func (c *Collector) OnThreadFinished(result execproc.ThreadResult) {
	c.threadCompletions.WithLabelValues(exitBucket(result)).Inc()
}

// SetLoaderHandlesOpen reports the current count of open dl_open handles
// across all processes sharing a Runtime, for a caller that tracks it
// (e.g. by summing loader.Registry.Len() across its known processes).
func (c *Collector) SetLoaderHandlesOpen(n int) {
	c.loaderHandles.Set(float64(n))
}
