// Package metrics defines the prometheus collectors shared by the embed
// and detect orchestrators. The teacher repo declares client_golang but
// never wires it; this gives it a real home over route-step outcomes and
// oracle invocation latency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RouteStepsTotal counts route steps by kind and outcome
	// ("embedded"/"detected"/"skipped"/"failed").
	RouteStepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "awmkit",
		Name:      "route_steps_total",
		Help:      "Route steps processed, by step kind and outcome.",
	}, []string{"kind", "outcome"})

	// OracleInvocationSeconds observes wall-clock time per oracle
	// subprocess invocation, by operation ("embed"/"detect").
	OracleInvocationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "awmkit",
		Name:      "oracle_invocation_seconds",
		Help:      "Oracle subprocess invocation latency, by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// CloneVerdictsTotal counts clone-check classifier outcomes by kind.
	CloneVerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "awmkit",
		Name:      "clone_verdicts_total",
		Help:      "Clone-check classifier verdicts, by kind.",
	}, []string{"kind"})
)

// Registry is the default collector registry. Callers expose it over
// /metrics themselves (no HTTP surface lives in this package).
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(RouteStepsTotal, OracleInvocationSeconds, CloneVerdictsTotal)
}
