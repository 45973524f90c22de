package patient

import (
	"math"
	"time"
)

// Metric names as they appear in JSON and in per-metric series.
const (
	ShortTermRecall = "shortTermRecall"
	LongTermRecall  = "longTermRecall"
	SemanticMemory  = "semanticMemory"
	EpisodicMemory  = "episodicMemory"
	WorkingMemory   = "workingMemory"
)

// MetricNames lists the five memory metrics in display order.
var MetricNames = []string{ShortTermRecall, LongTermRecall, SemanticMemory, EpisodicMemory, WorkingMemory}

// Scores holds the five memory-capability scores for one session, each in [0,1].
type Scores struct {
	ShortTermRecall float64 `json:"shortTermRecall"`
	LongTermRecall  float64 `json:"longTermRecall"`
	SemanticMemory  float64 `json:"semanticMemory"`
	EpisodicMemory  float64 `json:"episodicMemory"`
	WorkingMemory   float64 `json:"workingMemory"`
}

// Each calls fn for every metric in MetricNames order.
func (s Scores) Each(fn func(name string, v float64)) {
	fn(ShortTermRecall, s.ShortTermRecall)
	fn(LongTermRecall, s.LongTermRecall)
	fn(SemanticMemory, s.SemanticMemory)
	fn(EpisodicMemory, s.EpisodicMemory)
	fn(WorkingMemory, s.WorkingMemory)
}

// Get returns the named metric. Unknown names report false.
func (s Scores) Get(name string) (float64, bool) {
	switch name {
	case ShortTermRecall:
		return s.ShortTermRecall, true
	case LongTermRecall:
		return s.LongTermRecall, true
	case SemanticMemory:
		return s.SemanticMemory, true
	case EpisodicMemory:
		return s.EpisodicMemory, true
	case WorkingMemory:
		return s.WorkingMemory, true
	}
	return 0, false
}

// Mean is the unweighted average of the five metrics.
func (s Scores) Mean() float64 {
	return (s.ShortTermRecall + s.LongTermRecall + s.SemanticMemory + s.EpisodicMemory + s.WorkingMemory) / 5
}

// IsZero reports whether no metric has been recorded.
func (s Scores) IsZero() bool {
	return s == Scores{}
}

// TestResult is one rule-based cognitive test outcome.
type TestResult struct {
	Test     string  `json:"test"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
	Details  string  `json:"details,omitempty"`
}

// Ratio returns Score/MaxScore, or 0 when MaxScore is not positive.
func (t TestResult) Ratio() float64 {
	if t.MaxScore <= 0 {
		return 0
	}
	return t.Score / t.MaxScore
}

// Severity levels shared by session, region and risk alerts.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityModerate = "moderate"
	SeverityMedium   = "medium"
)

// Alert is a doctor-facing flag raised during session analysis.
type Alert struct {
	Type     string  `json:"type"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Score    float64 `json:"score"`
}

// Session is one recorded patient check-in and its derived scores.
// It is immutable once the analyzer has finished with it.
type Session struct {
	ID             string            `json:"session_id"`
	PatientID      string            `json:"patient_id"`
	Transcript     string            `json:"transcript,omitempty"`
	ExerciseType   string            `json:"exercise_type"`
	Timestamp      time.Time         `json:"session_date"`
	Memories       []ExtractedMemory `json:"memories,omitempty"`
	CognitiveTests []TestResult      `json:"cognitive_test_scores,omitempty"`
	MemoryMetrics  Scores            `json:"memory_metrics"`
	OverallScore   float64           `json:"overall_score"`
	Alerts         []Alert           `json:"doctor_alerts,omitempty"`
	NotableEvents  []string          `json:"notable_events,omitempty"`
	RequiresReview bool              `json:"requires_doctor_review"`
}

// DefaultExerciseType is used when a session arrives without one.
const DefaultExerciseType = "memory_recall"

// ExpectedInfo is the set of personal facts a patient should be able to recall.
type ExpectedInfo struct {
	FamilyMembers []string `json:"family_members,omitempty"`
	Profession    string   `json:"profession,omitempty"`
}

// Profile describes the patient a transcript belongs to.
type Profile struct {
	Name         string       `json:"name"`
	Age          int          `json:"age,omitempty"`
	Interests    []string     `json:"interests,omitempty"`
	ExpectedInfo ExpectedInfo `json:"expected_info"`
}

// ExtractedMemory is a personal memory pulled out of a conversation upstream.
type ExtractedMemory struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	DateApprox     string   `json:"dateapprox,omitempty"`
	Location       string   `json:"location,omitempty"`
	PeopleInvolved []string `json:"peopleinvolved,omitempty"`
	EmotionalTone  string   `json:"emotional_tone,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Significance   int      `json:"significance_level,omitempty"`
}

// Ref identifies a patient by ID and display name.
type Ref struct {
	ID   string `json:"patient_id"`
	Name string `json:"name"`
}

// ScorePoint is one overall score in a patient's history. Score is in [0,1].
type ScorePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// ScoreHistory is ordered oldest to newest.
type ScoreHistory []ScorePoint

// Scores returns the bare score values in history order.
func (h ScoreHistory) Scores() []float64 {
	out := make([]float64, len(h))
	for i, p := range h {
		out[i] = p.Score
	}
	return out
}

// Latest returns the newest point, or false if the history is empty.
func (h ScoreHistory) Latest() (ScorePoint, bool) {
	if len(h) == 0 {
		return ScorePoint{}, false
	}
	return h[len(h)-1], true
}

// Summary is the compact per-session record kept on a dashboard.
type Summary struct {
	Date          time.Time `json:"date"`
	Score         float64   `json:"score"`
	ExerciseType  string    `json:"exerciseType"`
	NotableEvents []string  `json:"notableEvents"`
}

// SummaryOf condenses an analyzed session for the dashboard.
func SummaryOf(s *Session) Summary {
	exercise := s.ExerciseType
	if exercise == "" {
		exercise = DefaultExerciseType
	}
	events := s.NotableEvents
	if events == nil {
		events = []string{}
	}
	return Summary{
		Date:          s.Timestamp,
		Score:         s.OverallScore,
		ExerciseType:  exercise,
		NotableEvents: events,
	}
}

// Clamp01 bounds v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NormalizeScore converts a score recorded on the legacy 0-100 scale to the
// canonical [0,1] scale. Values already in [0,1] pass through unchanged.
func NormalizeScore(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	return Clamp01(v)
}

// Round3 rounds to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
