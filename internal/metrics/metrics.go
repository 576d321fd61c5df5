// Package metrics exposes service counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	submissions     *prometheus.CounterVec
	editsRejected   *prometheus.CounterVec
	rosterFailures  prometheus.Counter
	scoringDuration prometheus.Histogram
	grades          *prometheus.CounterVec
	gradeSync       *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teameval_submissions_total",
				Help: "Response submissions by question type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		editsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teameval_structural_edits_rejected_total",
				Help: "Questionnaire edits refused because of the lock state.",
			},
			[]string{"state"},
		),
		rosterFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "teameval_roster_validation_failures_total",
				Help: "Roster validations that found a fatal inconsistency.",
			},
		),
		scoringDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "teameval_scoring_duration_seconds",
				Help:    "Time to gather marks and compute multipliers for one evaluation.",
				Buckets: prometheus.DefBuckets,
			},
		),
		grades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teameval_grades_total",
				Help: "Grades passed through the adjuster by outcome.",
			},
			[]string{"outcome"},
		),
		gradeSync: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teameval_grade_sync_total",
				Help: "Adjusted grades posted to the external gradebook by status.",
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) Submission(typ, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(typ, outcome).Inc()
}

func (m *Metrics) EditRejected(state string) {
	if m == nil {
		return
	}
	m.editsRejected.WithLabelValues(state).Inc()
}

func (m *Metrics) RosterFailure() {
	if m == nil {
		return
	}
	m.rosterFailures.Inc()
}

func (m *Metrics) ObserveScoring(d time.Duration) {
	if m == nil {
		return
	}
	m.scoringDuration.Observe(d.Seconds())
}

func (m *Metrics) Grade(outcome string) {
	if m == nil {
		return
	}
	m.grades.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GradeSync(status string) {
	if m == nil {
		return
	}
	m.gradeSync.WithLabelValues(status).Inc()
}
