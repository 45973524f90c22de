package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/mindmate/cognition/internal/patient"
)

const (
	minDeclineSessions = 3
	recentSessions     = 3
	fullHistory        = 6
	rapidDeclinePct    = 20.0
	criticalDeclinePct = 30.0
	maxAverageGapDays  = 7.0
	inconsistentSpread = 0.3
	supportBelow       = 0.5
)

// Finding severities.
const (
	FindingHigh   = "high"
	FindingMedium = "medium"
)

// Finding is one observed pattern in a patient's history.
type Finding struct {
	Finding  string `json:"finding"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DeclineReport explains a patient's recent trajectory.
type DeclineReport struct {
	InsufficientData bool      `json:"insufficient_data,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	SessionsAnalyzed int       `json:"sessions_analyzed"`
	DeclineRate      float64   `json:"decline_rate"`
	RecentAverage    float64   `json:"recent_average"`
	EarlierAverage   float64   `json:"earlier_average"`
	AverageGapDays   float64   `json:"average_gap_days"`
	Findings         []Finding `json:"findings"`
	Recommendations  []string  `json:"recommendations"`
	RiskLevel        string    `json:"risk_level,omitempty"`
}

// AnalyzeDecline compares the three newest sessions against earlier ones.
// With six or more sessions the earlier window is the three oldest;
// otherwise it is every session before the newest three. Fewer than three
// sessions yield an insufficient-data report.
func AnalyzeDecline(history patient.ScoreHistory) DeclineReport {
	n := len(history)
	if n < minDeclineSessions {
		return DeclineReport{
			InsufficientData: true,
			Reason:           fmt.Sprintf("Need at least %d sessions to analyze decline, have %d", minDeclineSessions, n),
			SessionsAnalyzed: n,
			Findings:         []Finding{},
			Recommendations:  []string{},
		}
	}

	scores := recent(history, n)
	recentAvg := mean(scores[n-recentSessions:])
	var older []float64
	if n >= fullHistory {
		older = scores[:recentSessions]
	} else {
		older = scores[:n-recentSessions]
	}
	olderAvg := recentAvg
	if len(older) > 0 {
		olderAvg = mean(older)
	}
	rate := 0.0
	if olderAvg > 0 {
		rate = (olderAvg - recentAvg) / olderAvg * 100
	}

	r := DeclineReport{
		SessionsAnalyzed: n,
		DeclineRate:      math.Round(rate*10) / 10,
		RecentAverage:    recentAvg,
		EarlierAverage:   olderAvg,
		AverageGapDays:   averageGapDays(history),
		Findings:         []Finding{},
		Recommendations:  []string{},
	}

	if rate > rapidDeclinePct {
		r.Findings = append(r.Findings, Finding{
			Finding:  "Rapid cognitive decline detected",
			Severity: FindingHigh,
			Detail:   fmt.Sprintf("%.0f%% decline from earlier sessions", rate),
		})
	}
	if r.AverageGapDays > maxAverageGapDays {
		r.Findings = append(r.Findings, Finding{
			Finding:  "Irregular session attendance",
			Severity: FindingMedium,
			Detail:   fmt.Sprintf("Average %.0f days between sessions (weekly recommended)", r.AverageGapDays),
		})
	}
	if s := spread(scores); s > inconsistentSpread {
		r.Findings = append(r.Findings, Finding{
			Finding:  "High performance variability",
			Severity: FindingMedium,
			Detail:   fmt.Sprintf("%.0f point score range indicates inconsistent performance", s*100),
		})
	}

	if rate > rapidDeclinePct {
		r.Recommendations = append(r.Recommendations,
			"Immediate medical evaluation recommended",
			"Increase session frequency to monitor progression")
	}
	if r.AverageGapDays > maxAverageGapDays {
		r.Recommendations = append(r.Recommendations, "Improve adherence to weekly session schedule")
	}
	if recentAvg < supportBelow {
		r.Recommendations = append(r.Recommendations, "Consider additional cognitive support interventions")
	}

	switch {
	case rate > criticalDeclinePct:
		r.RiskLevel = LevelCritical
	case rate > rapidDeclinePct:
		r.RiskLevel = LevelHigh
	default:
		r.RiskLevel = LevelModerate
	}
	return r
}

// averageGapDays is the mean whole-day gap between consecutive sessions.
// Sessions without a timestamp are ignored.
func averageGapDays(h patient.ScoreHistory) float64 {
	var stamps []time.Time
	for _, p := range h {
		if !p.Timestamp.IsZero() {
			stamps = append(stamps, p.Timestamp)
		}
	}
	if len(stamps) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		if gap < 0 {
			gap = -gap
		}
		total += math.Floor(gap.Hours() / 24)
	}
	return total / float64(len(stamps)-1)
}
