package observability

import (
	"context"
	"time"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the forge collectors.
type Metrics struct {
	commits         *prometheus.CounterVec
	merges          *prometheus.CounterVec
	compositions    *prometheus.CounterVec
	composeDuration prometheus.Histogram
	mutations       *prometheus.CounterVec
	publishFailures prometheus.Counter
	hookFailures    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_commits_total",
			Help: "Commit attempts by branch and outcome",
		}, []string{"branch", "outcome"}),
		merges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_merges_total",
			Help: "Merge attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		compositions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_compositions_total",
			Help: "Composition requests by outcome",
		}, []string{"outcome"}),
		composeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forge_compose_duration_seconds",
			Help:    "Time spent resolving and assembling a composition",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_mutations_total",
			Help: "Durable mutations by event type",
		}, []string{"type"}),
		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "forge_events_publish_failures_total",
			Help: "Events that could not be delivered to the broker",
		}),
		hookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_hook_failures_total",
			Help: "Post-mutation hook failures by hook",
		}, []string{"hook"}),
	}
}

// Outcome labels an operation result with its error kind, or "ok".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

// CommitObserved counts a commit attempt.
func (m *Metrics) CommitObserved(branch string, err error) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(branch, Outcome(err)).Inc()
}

// MergeObserved counts a merge attempt.
func (m *Metrics) MergeObserved(strategy domain.MergeStrategy, err error) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(string(strategy), Outcome(err)).Inc()
}

// ComposeObserved counts a composition and records its latency.
func (m *Metrics) ComposeObserved(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.compositions.WithLabelValues(Outcome(err)).Inc()
	m.composeDuration.Observe(elapsed.Seconds())
}

// PublishFailed counts an undelivered event.
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

// HookFailed counts a failed post-mutation hook.
func (m *Metrics) HookFailed(hook string) {
	if m == nil {
		return
	}
	m.hookFailures.WithLabelValues(hook).Inc()
}

// Hooks returns lifecycle hooks that count every durable mutation.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	if m == nil {
		return domain.LifecycleHooks{}
	}
	return domain.LifecycleHooks{
		OnMutation: func(_ context.Context, e *domain.MutationEvent) {
			m.mutations.WithLabelValues(string(e.Type)).Inc()
		},
	}
}
