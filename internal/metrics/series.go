package metrics

import (
	"sort"
	"time"

	"github.com/mindmate/cognition/internal/patient"
)

// retentionWeights favor long-term and episodic memory.
var retentionWeights = map[string]float64{
	patient.ShortTermRecall: 0.15,
	patient.LongTermRecall:  0.30,
	patient.SemanticMemory:  0.15,
	patient.EpisodicMemory:  0.30,
	patient.WorkingMemory:   0.10,
}

// DefaultRetentionDays is the trailing window used for retention rate.
const DefaultRetentionDays = 7

// Point is one metric observation.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// Series maps each metric name to its observations, oldest first.
type Series map[string][]Point

// TimeSeries builds per-metric series from sessions that fall within the
// trailing daysBack window. Sessions without recorded metrics are skipped.
// All five keys are always present.
func (e *Engine) TimeSeries(sessions []patient.Session, daysBack int) Series {
	cutoff := e.now().Add(-time.Duration(daysBack) * 24 * time.Hour)

	var recent []patient.Session
	for _, s := range sessions {
		if s.Timestamp.Before(cutoff) || s.MemoryMetrics.IsZero() {
			continue
		}
		recent = append(recent, s)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.Before(recent[j].Timestamp)
	})

	series := make(Series, len(patient.MetricNames))
	for _, name := range patient.MetricNames {
		series[name] = []Point{}
	}
	for _, s := range recent {
		s.MemoryMetrics.Each(func(name string, v float64) {
			series[name] = append(series[name], Point{Timestamp: s.Timestamp, Score: v})
		})
	}
	return series
}

// RetentionRate combines the windowed average of each metric with fixed
// weights. It returns exactly 0.5 when no session falls in the window.
func (e *Engine) RetentionRate(sessions []patient.Session, daysBack int) float64 {
	series := e.TimeSeries(sessions, daysBack)

	var total float64
	found := false
	for name, weight := range retentionWeights {
		points := series[name]
		if len(points) == 0 {
			continue
		}
		var sum float64
		for _, p := range points {
			sum += p.Score
		}
		total += sum / float64(len(points)) * weight
		found = true
	}
	if !found {
		return neutralBaseline
	}
	return patient.Round3(total)
}
