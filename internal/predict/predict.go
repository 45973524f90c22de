// Package predict fits a linear trend to a patient's score history and
// estimates the probability of near-term decline.
//
// Scores arrive on the canonical [0,1] scale and are reported in points
// ([0,100]), the scale the trend thresholds are expressed in.
package predict

import (
	"fmt"
	"strings"

	"github.com/mindmate/cognition/internal/patient"
)

// Trend labels.
const (
	RapidDecline     = "rapid_decline"
	ModerateDecline  = "moderate_decline"
	MildDecline      = "mild_decline"
	Stable           = "stable"
	MildImprovement  = "mild_improvement"
	Improving        = "improving"
	InsufficientData = "insufficient_data"
)

// Slope bands in points per session.
const (
	rapidSlope       = -5.0
	moderateSlope    = -2.0
	mildSlope        = -0.5
	mildImproveSlope = 0.5
	improvingSlope   = 2.0
)

// Base decline probabilities per slope band, worst first.
const (
	probRapid    = 0.9
	probModerate = 0.7
	probMild     = 0.5
	probSlipping = 0.3
	probFlat     = 0.1
)

const (
	sessionsPerPeriod = 4
	pointsScale       = 100.0
	defaultPoints     = 50.0

	lowScore      = 30.0
	moderateScore = 50.0

	lowConfidenceBelow    = 3
	mediumConfidenceBelow = 5
)

// Confidence labels.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Prediction is the trend forecast for one patient.
type Prediction struct {
	PatientID          string  `json:"patient_id"`
	Name               string  `json:"name,omitempty"`
	CurrentScore       float64 `json:"current_score"`
	PredictedNextMonth float64 `json:"predicted_next_month"`
	DeclineProbability float64 `json:"decline_probability"`
	Trend              string  `json:"trend"`
	Slope              float64 `json:"slope"`
	SessionsAnalyzed   int     `json:"sessions_analyzed"`
	Confidence         string  `json:"confidence"`
	Reasoning          string  `json:"reasoning"`
}

// Trend fits an ordinary least-squares line to scores against session
// index and classifies the slope. Fewer than two scores yield a zero
// slope labelled insufficient_data.
func Trend(scores []float64) (float64, string) {
	n := len(scores)
	if n < 2 {
		return 0, InsufficientData
	}
	xMean := float64(n-1) / 2
	var yMean float64
	for _, y := range scores {
		yMean += y
	}
	yMean /= float64(n)

	var num, den float64
	for i, y := range scores {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	slope := 0.0
	if den != 0 {
		slope = num / den
	}
	return slope, classify(slope)
}

func classify(slope float64) string {
	switch {
	case slope < rapidSlope:
		return RapidDecline
	case slope < moderateSlope:
		return ModerateDecline
	case slope < mildSlope:
		return MildDecline
	case slope > improvingSlope:
		return Improving
	case slope > mildImproveSlope:
		return MildImprovement
	default:
		return Stable
	}
}

// NextPeriod projects the latest score roughly one month (four sessions)
// ahead, clamped to [0,100].
func NextPeriod(scores []float64, slope float64) float64 {
	if len(scores) == 0 {
		return defaultPoints
	}
	v := scores[len(scores)-1] + slope*sessionsPerPeriod
	return max(0, min(pointsScale, v))
}

// DeclineProbability combines a slope-keyed base probability with
// score-level and data-confidence factors, clamped to [0,1].
func DeclineProbability(slope, average float64, sessions int) float64 {
	var base float64
	switch {
	case slope < rapidSlope:
		base = probRapid
	case slope < moderateSlope:
		base = probModerate
	case slope < mildSlope:
		base = probMild
	case slope < 0:
		base = probSlipping
	default:
		base = probFlat
	}

	scoreFactor := 0.9
	switch {
	case average < lowScore:
		scoreFactor = 1.3
	case average < moderateScore:
		scoreFactor = 1.1
	}

	confidenceFactor := 1.0
	switch {
	case sessions < lowConfidenceBelow:
		confidenceFactor = 0.7
	case sessions < mediumConfidenceBelow:
		confidenceFactor = 0.9
	}

	return patient.Clamp01(base * scoreFactor * confidenceFactor)
}

// Confidence labels how much history backs a prediction.
func Confidence(sessions int) string {
	switch {
	case sessions >= mediumConfidenceBelow:
		return ConfidenceHigh
	case sessions >= lowConfidenceBelow:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Predict forecasts one patient from their history. An empty history
// yields an insufficient_data prediction with zero probability.
func Predict(patientID string, history patient.ScoreHistory) Prediction {
	if len(history) == 0 {
		return Prediction{
			PatientID:  patientID,
			Trend:      InsufficientData,
			Confidence: ConfidenceLow,
			Reasoning:  "No session history available",
		}
	}

	points := make([]float64, len(history))
	var sum float64
	for i, p := range history {
		points[i] = patient.NormalizeScore(p.Score) * pointsScale
		sum += points[i]
	}
	avg := sum / float64(len(points))
	slope, trend := Trend(points)

	return Prediction{
		PatientID:          patientID,
		CurrentScore:       avg,
		PredictedNextMonth: NextPeriod(points, slope),
		DeclineProbability: DeclineProbability(slope, avg, len(points)),
		Trend:              trend,
		Slope:              slope,
		SessionsAnalyzed:   len(points),
		Confidence:         Confidence(len(points)),
		Reasoning:          reasoning(trend, slope, avg, len(points)),
	}
}

func reasoning(trend string, slope, avg float64, n int) string {
	var parts []string
	if n < lowConfidenceBelow {
		parts = append(parts, fmt.Sprintf("Limited data (%d sessions) reduces prediction confidence", n))
	}
	switch trend {
	case RapidDecline:
		parts = append(parts, fmt.Sprintf("Rapid declining trend (%.1f points per session)", slope))
	case ModerateDecline:
		parts = append(parts, fmt.Sprintf("Moderate declining trend (%.1f points per session)", slope))
	case MildDecline:
		parts = append(parts, fmt.Sprintf("Mild declining trend (%.1f points per session)", slope))
	case Stable:
		parts = append(parts, "Stable performance over recent sessions")
	case MildImprovement:
		parts = append(parts, fmt.Sprintf("Mild improvement (%.1f points per session)", slope))
	case Improving:
		parts = append(parts, fmt.Sprintf("Improving trend (%.1f points per session)", slope))
	}
	if avg < moderateScore {
		parts = append(parts, fmt.Sprintf("Current average score (%.1f%%) below threshold", avg))
	}
	return strings.Join(parts, ". ")
}
