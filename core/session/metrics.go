package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Close outcomes
const (
	outcomeClosed  = "closed"
	outcomeBlocked = "blocked"
	outcomeFailed  = "failed"
)

type Metrics struct {
	closes       *prometheus.CounterVec
	closeSeconds prometheus.Histogram
	transitions  *prometheus.CounterVec
}

// NewMetrics registers the session metrics on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examoffice",
			Subsystem: "session",
			Name:      "closes_total",
			Help:      "number of session close attempts by outcome",
		}, []string{"outcome"}),
		closeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "examoffice",
			Subsystem: "session",
			Name:      "close_duration_seconds",
			Help:      "time spent in the session close transaction",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examoffice",
			Subsystem: "session",
			Name:      "student_transitions_total",
			Help:      "number of students moved at session close by transition",
		}, []string{"transition"}),
	}
}

func (m *Metrics) observeStats(s Stats) {
	m.transitions.WithLabelValues("100_to_200").Add(float64(s.Promoted100To200))
	m.transitions.WithLabelValues("200_to_300").Add(float64(s.Promoted200To300))
	m.transitions.WithLabelValues("300_to_400").Add(float64(s.Promoted300To400))
	m.transitions.WithLabelValues("graduated").Add(float64(s.Graduated))
	m.transitions.WithLabelValues("extra_year").Add(float64(s.ExtraYear))
}
