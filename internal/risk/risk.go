// Package risk flags patients whose recent scores fall below a threshold
// and explains why, one reason per finding.
//
// Everything here is recomputed from the history passed in. Nothing is cached.
package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/mindmate/cognition/internal/patient"
)

// DefaultThreshold is the score below which a patient is at risk.
const DefaultThreshold = 0.5

const (
	recentWindow      = 5
	earlyWindow       = 3
	declineRatio      = 0.8
	criticalLatest    = 0.3
	highAverage       = 0.5
	varianceSpread    = 0.3
	sparseSessions    = 3
	minTrendSessions  = 3
	minPairedSessions = 2
)

// Risk levels.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelModerate = "moderate"
)

// Trend labels for a flag.
const (
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// PatientHistory is one patient's score history, oldest first.
type PatientHistory struct {
	Name    string
	History patient.ScoreHistory
}

// Flag explains why one patient is at risk.
type Flag struct {
	PatientID        string   `json:"patient_id"`
	Name             string   `json:"name,omitempty"`
	AverageScore     float64  `json:"average_score"`
	LatestScore      float64  `json:"latest_score"`
	RiskLevel        string   `json:"risk_level"`
	SessionsAnalyzed int      `json:"sessions_analyzed"`
	Reasons          []string `json:"risk_reasons"`
	Trend            string   `json:"trend"`
}

// FindAtRisk flags every patient whose average over the last five sessions
// or whose latest session is below threshold. Patients without sessions are
// skipped. Results are ordered by average score, lowest first.
func FindAtRisk(histories map[string]PatientHistory, threshold float64) []Flag {
	flags := []Flag{}
	for id, ph := range histories {
		if f, ok := Evaluate(id, ph, threshold); ok {
			flags = append(flags, f)
		}
	}
	sort.Slice(flags, func(i, j int) bool {
		if flags[i].AverageScore != flags[j].AverageScore {
			return flags[i].AverageScore < flags[j].AverageScore
		}
		return flags[i].PatientID < flags[j].PatientID
	})
	return flags
}

// Evaluate checks one patient. It reports false when the patient has no
// sessions or is not at risk.
func Evaluate(id string, ph PatientHistory, threshold float64) (Flag, bool) {
	scores := recent(ph.History, recentWindow)
	if len(scores) == 0 {
		return Flag{}, false
	}
	avg := mean(scores)
	latest := scores[len(scores)-1]
	if avg >= threshold && latest >= threshold {
		return Flag{}, false
	}

	reasons := []string{}
	if avg < threshold {
		reasons = append(reasons, fmt.Sprintf("Average score (%.1f%%) below threshold (%.0f%%)", avg*100, threshold*100))
	}
	if len(scores) >= minTrendSessions {
		early := mean(scores[:earlyWindow])
		if early > 0 && avg < early*declineRatio {
			pct := (early - avg) / early * 100
			reasons = append(reasons, fmt.Sprintf("Declining trend: %.0f%% drop from earlier sessions", pct))
		}
	}
	if latest < criticalLatest {
		reasons = append(reasons, fmt.Sprintf("Latest session critically low (%.1f%%)", latest*100))
	}
	if len(scores) >= minPairedSessions {
		if s := spread(scores); s > varianceSpread {
			reasons = append(reasons, fmt.Sprintf("High score variability (%.1f%% range)", s*100))
		}
	}
	if len(scores) < sparseSessions {
		reasons = append(reasons, fmt.Sprintf("Limited session data (%d sessions)", len(scores)))
	}

	level := LevelMedium
	switch {
	case latest < criticalLatest:
		level = LevelCritical
	case avg < highAverage:
		level = LevelHigh
	}

	trend := TrendStable
	if len(scores) >= minTrendSessions && latest < scores[0] {
		trend = TrendDeclining
	}

	return Flag{
		PatientID:        id,
		Name:             ph.Name,
		AverageScore:     avg,
		LatestScore:      latest,
		RiskLevel:        level,
		SessionsAnalyzed: len(scores),
		Reasons:          reasons,
		Trend:            trend,
	}, true
}

// recent returns up to n newest normalized scores, oldest first.
func recent(h patient.ScoreHistory, n int) []float64 {
	if len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]float64, len(h))
	for i, p := range h {
		out[i] = patient.NormalizeScore(p.Score)
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func spread(v []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return hi - lo
}
