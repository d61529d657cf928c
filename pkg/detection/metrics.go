package detection

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts how the writer consumes detector output.
type Metrics struct {
	Candidates     prometheus.Counter
	Written        prometheus.Counter
	BelowThreshold prometheus.Counter
	Dropped        prometheus.Counter
}

// NewMetrics creates the writer counters and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detection_candidates_total",
			Help: "Raw detector candidates seen by the writer.",
		}),
		Written: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detection_records_written_total",
			Help: "Detection records published to shared memory.",
		}),
		BelowThreshold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detection_candidates_below_threshold_total",
			Help: "Candidates whose class 0 score did not exceed the threshold.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detection_candidates_over_capacity_total",
			Help: "Passing candidates left out because the batch was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Candidates, m.Written, m.BelowThreshold, m.Dropped)
	}
	return m
}

func (m *Metrics) observe(s Stats) {
	if m == nil {
		return
	}
	m.Candidates.Add(float64(s.Candidates))
	m.Written.Add(float64(s.Written))
	m.BelowThreshold.Add(float64(s.BelowThreshold))
	m.Dropped.Add(float64(s.Dropped))
}
