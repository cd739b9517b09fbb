// Package metrics exposes prometheus collectors for the cms core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blog_cms"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	postsPublished prometheus.Counter
	searchDegraded prometheus.Counter
	cacheErrors    *prometheus.CounterVec
	taskRuns       *prometheus.CounterVec
	sweepFailures  *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg yields unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		postsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_posts_published_total",
			Help:      "Scheduled posts promoted to published by the sweep.",
		}),
		searchDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_degraded_total",
			Help:      "Searches served by the substring fallback instead of ranked search.",
		}),
		cacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache backend errors swallowed by the cache layer.",
		}, []string{"op"}),
		taskRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_task_runs_total",
			Help:      "Scheduled task executions by outcome.",
		}, []string{"task", "status"}),
		sweepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_item_failures_total",
			Help:      "Items a sweep failed to process.",
		}, []string{"task"}),
	}
}

// PostPublished counts one promoted post.
func (m *Metrics) PostPublished() {
	if m == nil {
		return
	}
	m.postsPublished.Inc()
}

// SearchDegraded counts one fallback search.
func (m *Metrics) SearchDegraded() {
	if m == nil {
		return
	}
	m.searchDegraded.Inc()
}

// CacheError counts one swallowed cache error for op.
func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

// TaskRun counts one execution of task with status "ok", "error" or "panic".
func (m *Metrics) TaskRun(task, status string) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(task, status).Inc()
}

// SweepItemFailed counts one item a sweep could not process.
func (m *Metrics) SweepItemFailed(task string) {
	if m == nil {
		return
	}
	m.sweepFailures.WithLabelValues(task).Inc()
}
