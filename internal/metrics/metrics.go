// Package metrics exposes Prometheus counters for assignment outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Assignments counts committed assignments by clan and rarity.
	Assignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clanforge_assignments_total",
		Help: "Committed clan assignments.",
	}, []string{"clan", "rarity"})

	// AssignmentErrors counts failed assignment requests by error kind.
	AssignmentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clanforge_assignment_errors_total",
		Help: "Failed assignment requests.",
	}, []string{"kind"})

	// Deaths counts population decrements by clan.
	Deaths = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clanforge_deaths_total",
		Help: "Population decrements from player removal.",
	}, []string{"clan"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
