package standing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recompute outcomes
const (
	outcomeUpserted  = "upserted"
	outcomeUnchanged = "unchanged"
	outcomeDeleted   = "deleted"
	outcomeFailed    = "failed"
)

type Metrics struct {
	recomputes       *prometheus.CounterVec
	recomputeSeconds prometheus.Histogram
	decisions        *prometheus.CounterVec
}

// NewMetrics registers the standing metrics on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		recomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examoffice",
			Subsystem: "standing",
			Name:      "recomputes_total",
			Help:      "number of standing recomputes by outcome",
		}, []string{"outcome"}),
		recomputeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "examoffice",
			Subsystem: "standing",
			Name:      "recompute_duration_seconds",
			Help:      "time spent recomputing a single standing",
			Buckets:   prometheus.DefBuckets,
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examoffice",
			Subsystem: "standing",
			Name:      "approval_decisions_total",
			Help:      "number of approval chain writes by stage and action",
		}, []string{"stage", "action"}),
	}
}
