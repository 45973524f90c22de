// Package analyzer runs one session through memory metrics, cognitive tests,
// overall scoring and alert generation, then folds the result into the
// patient's cached dashboard.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/mindmate/cognition/internal/dashcache"
	"github.com/mindmate/cognition/internal/metrics"
	"github.com/mindmate/cognition/internal/patient"
)

// ErrMissingPatientID is returned for sessions without a patient.
var ErrMissingPatientID = errors.New("missing patient id")

// Overall score weights.
const (
	cognitiveWeight = 0.4
	memoryWeight    = 0.6
)

// Alert thresholds.
const (
	criticalOverall   = 0.4
	highOverall       = 0.6
	metricImpairment  = 0.4
	temporalMinimum   = 0.5
	neutralCognitive  = 0.5
	alertTypeCritical = "critical_decline"
	alertTypeModerate = "moderate_decline"
	alertTypeTemporal = "temporal_disorientation"
)

// Request is one session to analyze.
type Request struct {
	SessionID    string                    `json:"session_id"`
	PatientID    string                    `json:"patient_id"`
	Transcript   string                    `json:"transcript"`
	ExerciseType string                    `json:"exercise_type"`
	Timestamp    time.Time                 `json:"session_date"`
	Profile      patient.Profile           `json:"patient_profile"`
	Previous     []patient.Session         `json:"previous_sessions,omitempty"`
	Memories     []patient.ExtractedMemory `json:"memories,omitempty"`
}

// SessionStore persists analyzed sessions. *store.DB satisfies it.
type SessionStore interface {
	SaveSession(s *patient.Session) error
}

// Analyzer scores sessions. Sessions and Cache may be nil.
type Analyzer struct {
	Metrics  *metrics.Engine
	Sessions SessionStore
	Cache    dashcache.Cache

	// Now overrides the clock for sessions without a timestamp.
	Now func() time.Time
}

// New creates an Analyzer.
func New(engine *metrics.Engine, cache dashcache.Cache) *Analyzer {
	if engine == nil {
		engine = metrics.New()
	}
	return &Analyzer{Metrics: engine, Cache: cache, Now: time.Now}
}

func (a *Analyzer) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// Analyze scores one session, saves it when a SessionStore is set, then
// pushes its summary into the patient's cached dashboard, if one exists.
// A failed save returns an error and leaves the cache untouched. A cache
// failure is logged and does not fail the analysis.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*patient.Session, error) {
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, ErrMissingPatientID
	}

	s := &patient.Session{
		ID:           req.SessionID,
		PatientID:    req.PatientID,
		Transcript:   req.Transcript,
		ExerciseType: req.ExerciseType,
		Timestamp:    req.Timestamp,
		Memories:     req.Memories,
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.ExerciseType == "" {
		s.ExerciseType = patient.DefaultExerciseType
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = a.now().UTC()
	}
	if s.Memories == nil {
		s.Memories = ExtractMemories(req.Transcript)
	}

	s.CognitiveTests = CognitiveTests(req.Transcript, req.Profile, s.Timestamp)
	s.MemoryMetrics = a.Metrics.Score(req.Transcript, req.Profile, s.Memories, req.Previous)
	s.OverallScore = OverallScore(s.CognitiveTests, s.MemoryMetrics)
	s.Alerts = Alerts(s.OverallScore, s.CognitiveTests, s.MemoryMetrics)
	s.NotableEvents = NotableEvents(s.Alerts)
	s.RequiresReview = len(s.NotableEvents) > 0

	if a.Sessions != nil {
		if err := a.Sessions.SaveSession(s); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}
	if a.Cache != nil {
		if _, err := a.Cache.UpdateSessionData(ctx, s.PatientID, patient.SummaryOf(s)); err != nil {
			log.Printf("analyzer: cache update for %s: %v", s.PatientID, err)
		}
	}
	return s, nil
}

// OverallScore blends the mean cognitive-test ratio (40%) with the mean
// memory metric (60%), rounded to three decimals.
func OverallScore(tests []patient.TestResult, m patient.Scores) float64 {
	cog := neutralCognitive
	if len(tests) > 0 {
		var sum float64
		for _, t := range tests {
			sum += t.Ratio()
		}
		cog = sum / float64(len(tests))
	}
	return patient.Round3(patient.Clamp01(cog*cognitiveWeight + m.Mean()*memoryWeight))
}

// Alerts flags a low overall score, each impaired memory metric and
// temporal disorientation.
func Alerts(overall float64, tests []patient.TestResult, m patient.Scores) []patient.Alert {
	var alerts []patient.Alert
	switch {
	case overall < criticalOverall:
		alerts = append(alerts, patient.Alert{
			Type:     alertTypeCritical,
			Severity: patient.SeverityCritical,
			Message:  fmt.Sprintf("Critical cognitive decline detected (score: %.1f%%)", overall*100),
			Score:    overall,
		})
	case overall < highOverall:
		alerts = append(alerts, patient.Alert{
			Type:     alertTypeModerate,
			Severity: patient.SeverityHigh,
			Message:  fmt.Sprintf("Moderate cognitive decline (score: %.1f%%)", overall*100),
			Score:    overall,
		})
	}

	m.Each(func(name string, v float64) {
		if v >= metricImpairment {
			return
		}
		alerts = append(alerts, patient.Alert{
			Type:     name + "_impairment",
			Severity: patient.SeverityHigh,
			Message:  fmt.Sprintf("Significant %s impairment (score: %.1f%%)", humanName(name), v*100),
			Score:    v,
		})
	})

	for _, t := range tests {
		if t.Test == TestTemporal && t.Ratio() < temporalMinimum {
			alerts = append(alerts, patient.Alert{
				Type:     alertTypeTemporal,
				Severity: patient.SeverityHigh,
				Message:  "Significant temporal disorientation detected",
				Score:    t.Ratio(),
			})
		}
	}
	return alerts
}

// NotableEvents returns the messages of high and critical alerts.
func NotableEvents(alerts []patient.Alert) []string {
	var events []string
	for _, a := range alerts {
		if a.Severity == patient.SeverityHigh || a.Severity == patient.SeverityCritical {
			events = append(events, a.Message)
		}
	}
	return events
}

// humanName turns "shortTermRecall" into "short term recall".
func humanName(metric string) string {
	var b strings.Builder
	for i, r := range metric {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
