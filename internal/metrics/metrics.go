// Package metrics holds the process-wide Prometheus collectors, exposed via
// the health listener's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PostsDispatched counts dispatcher send attempts by outcome ("sent", "failed").
	PostsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopost_posts_dispatched_total",
			Help: "Scheduled post send attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// DispatcherTicks counts dispatcher evaluation cycles.
	DispatcherTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autopost_dispatcher_ticks_total",
			Help: "Dispatcher evaluation cycles.",
		},
	)

	// WizardCommits counts terminal wizard transitions by kind.
	WizardCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopost_wizard_commits_total",
			Help: "Completed conversation wizard flows by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(PostsDispatched, DispatcherTicks, WizardCommits)
}
