package brain

import (
	"fmt"
	"math"

	"github.com/mindmate/cognition/internal/patient"
)

// DefaultAlertThreshold is the score below which a region is flagged.
const DefaultAlertThreshold = 0.7

const (
	criticalBelow = 0.4
	highBelow     = 0.6
)

// Alert flags one region with atrophy.
type Alert struct {
	Region   string  `json:"region"`
	Score    float64 `json:"score"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
}

// DetectAlerts flags every region scoring below threshold, in region order.
func DetectAlerts(r Regions, threshold float64) []Alert {
	var alerts []Alert
	r.Each(func(name string, score float64) {
		if score >= threshold {
			return
		}
		sev := severity(score)
		extent := "Moderate"
		if sev == patient.SeverityCritical {
			extent = "Significant"
		}
		alerts = append(alerts, Alert{
			Region:   name,
			Score:    score,
			Severity: sev,
			Message:  fmt.Sprintf("%s: Score %.2f - %s atrophy detected", displayNames[name], score, extent),
		})
	})
	return alerts
}

func severity(score float64) string {
	switch {
	case score < criticalBelow:
		return patient.SeverityCritical
	case score < highBelow:
		return patient.SeverityHigh
	default:
		return patient.SeverityModerate
	}
}

// Decline threshold and recommendations for scan comparison.
const (
	declinePercent = -10.0
	urgentRegions  = 3

	RecommendRoutine  = "Continue routine monitoring"
	RecommendFollowUp = "Schedule follow-up MRI in 6 months to monitor progression."
	RecommendUrgent   = "URGENT: Multiple regions showing decline. Recommend neurologist consultation and follow-up MRI in 3 months."
)

// Change describes one region's movement between two scans.
type Change struct {
	Baseline       float64 `json:"baseline"`
	Current        float64 `json:"current"`
	AbsoluteChange float64 `json:"absolute_change"`
	PercentChange  float64 `json:"percent_change"`
}

// Decline names a region that lost more than 10% since baseline.
type Decline struct {
	Region         string  `json:"region"`
	PercentDecline float64 `json:"percent_decline"`
}

// Comparison is the result of comparing a current scan to a baseline.
type Comparison struct {
	Changes          map[string]Change `json:"changes"`
	DecliningRegions []Decline         `json:"declining_regions"`
	Recommendation   string            `json:"recommendation"`
	RequiresReview   bool              `json:"requires_doctor_review"`
}

// Compare reports per-region change from baseline to current. A region
// with a zero baseline reports 0% change.
func Compare(baseline, current Regions) Comparison {
	cmp := Comparison{
		Changes:          make(map[string]Change, len(RegionNames)),
		DecliningRegions: []Decline{},
	}
	baseline.Each(func(name string, base float64) {
		cur, _ := current.Get(name)
		delta := cur - base
		pct := 0.0
		if base > 0 {
			pct = delta / base * 100
		}
		cmp.Changes[name] = Change{
			Baseline:       base,
			Current:        cur,
			AbsoluteChange: patient.Round3(delta),
			PercentChange:  round1(pct),
		}
		if pct < declinePercent {
			cmp.DecliningRegions = append(cmp.DecliningRegions, Decline{Region: name, PercentDecline: round1(-pct)})
		}
	})

	switch n := len(cmp.DecliningRegions); {
	case n >= urgentRegions:
		cmp.Recommendation = RecommendUrgent
	case n >= 1:
		cmp.Recommendation = RecommendFollowUp
	default:
		cmp.Recommendation = RecommendRoutine
	}
	cmp.RequiresReview = len(cmp.DecliningRegions) > 0
	return cmp
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
