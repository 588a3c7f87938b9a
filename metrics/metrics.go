// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports interpreter activity as Prometheus metrics.
//
// A [Collector] is a [cesk.Observer]: pass it to a run with
// [cesk.WithObserver] and register it with a Prometheus registry.
//
//	c := metrics.New("app")
//	prometheus.MustRegister(c)
//	res := cesk.Run(ctx, prog, cesk.WithObserver(c))
package metrics

import (
	"code.hybscloud.com/cesk"
	"github.com/prometheus/client_golang/prometheus"
)

// unhandled labels dispatches no handler accepted.
const unhandled = "none"

// Collector counts effect dispatches, task spawns and task exits.
// It is safe for use by concurrent runs.
type Collector struct {
	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	spawns     prometheus.Counter
	exits      *prometheus.CounterVec
}

// New returns a collector whose metric names start with namespace.
func New(namespace string) *Collector {
	return &Collector{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cesk",
			Name:      "dispatches_total",
			Help:      "Effect dispatches by effect type, handler and outcome.",
		}, []string{"effect", "handler", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cesk",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in handlers per effect category.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 7),
		}, []string{"category"}),
		spawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cesk",
			Name:      "tasks_spawned_total",
			Help:      "Child tasks created.",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cesk",
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal state, by status.",
		}, []string{"status"}),
	}
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.dispatches.Describe(ch)
	c.latency.Describe(ch)
	c.spawns.Describe(ch)
	c.exits.Describe(ch)
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.dispatches.Collect(ch)
	c.latency.Collect(ch)
	c.spawns.Collect(ch)
	c.exits.Collect(ch)
}

// ObserveDispatch implements [cesk.Observer].
func (c *Collector) ObserveDispatch(i cesk.DispatchInfo) {
	handler := i.Handler
	if handler == "" {
		handler = unhandled
	}
	c.dispatches.WithLabelValues(i.Effect, handler, string(i.Status)).Inc()
	c.latency.WithLabelValues(i.Category.String()).Observe(i.Duration.Seconds())
}

// ObserveSpawn implements [cesk.Observer].
func (c *Collector) ObserveSpawn(cesk.SpawnInfo) {
	c.spawns.Inc()
}

// ObserveExit implements [cesk.Observer].
func (c *Collector) ObserveExit(i cesk.ExitInfo) {
	c.exits.WithLabelValues(i.Status.String()).Inc()
}

var (
	_ prometheus.Collector = (*Collector)(nil)
	_ cesk.Observer        = (*Collector)(nil)
)
