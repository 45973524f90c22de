package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mindmate/cognition/internal/dashcache"
	"github.com/mindmate/cognition/internal/metrics"
	"github.com/mindmate/cognition/internal/patient"
)

// A Thursday in March.
var sessionTime = time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)

func TestAnalyzeDisorientedSession(t *testing.T) {
	a := New(metrics.New(), nil)
	s, err := a.Analyze(context.Background(), Request{
		PatientID:  "p1",
		Transcript: "I forget what month it is. My grandson visited yesterday.",
		Timestamp:  sessionTime,
		Profile: patient.Profile{
			Name:         "Rosa",
			ExpectedInfo: patient.ExpectedInfo{FamilyMembers: []string{"Lucas"}},
		},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	tests := map[string]float64{}
	for _, tr := range s.CognitiveTests {
		tests[tr.Test] = tr.Score
	}
	if tests[TestTemporal] != 0 {
		t.Errorf("temporal = %v, want 0", tests[TestTemporal])
	}
	if tests[TestRecall] != 0 {
		t.Errorf("recall = %v, want 0 (Lucas not mentioned)", tests[TestRecall])
	}
	if tests[TestVocabulary] != 10 {
		t.Errorf("vocabulary = %v, want 10", tests[TestVocabulary])
	}

	if s.OverallScore != 0.481 {
		t.Errorf("overall = %v, want 0.481", s.OverallScore)
	}

	high := 0
	for _, al := range s.Alerts {
		if al.Severity == patient.SeverityHigh || al.Severity == patient.SeverityCritical {
			high++
		}
	}
	if high == 0 {
		t.Fatalf("expected at least one high-severity alert, got %+v", s.Alerts)
	}
	var temporal bool
	for _, al := range s.Alerts {
		if al.Type == "temporal_disorientation" {
			temporal = true
		}
	}
	if !temporal {
		t.Error("missing temporal disorientation alert")
	}
	if !s.RequiresReview || len(s.NotableEvents) != high {
		t.Errorf("review=%v notable=%v", s.RequiresReview, s.NotableEvents)
	}

	if len(s.Memories) != 1 || !strings.Contains(s.Memories[0].Description, "grandson visited") {
		t.Errorf("fallback memories = %+v", s.Memories)
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("session id %q is not a uuid: %v", s.ID, err)
	}
	if s.ExerciseType != patient.DefaultExerciseType {
		t.Errorf("exercise type = %q", s.ExerciseType)
	}
}

func TestAnalyzeOrientedSession(t *testing.T) {
	a := New(nil, nil)
	s, err := a.Analyze(context.Background(), Request{
		SessionID: "s-42",
		PatientID: "p1",
		Transcript: "Today is Thursday, March 5th 2026. " +
			"I remember when we went to the lake with Lucas and Maria because it was summer. " +
			"I was a teacher for thirty years and I loved it.",
		Timestamp: sessionTime,
		Profile: patient.Profile{
			ExpectedInfo: patient.ExpectedInfo{FamilyMembers: []string{"Lucas", "Maria"}, Profession: "teacher"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "s-42" {
		t.Errorf("caller session id replaced: %q", s.ID)
	}
	if s.OverallScore < 0.6 {
		t.Errorf("overall = %v, want >= 0.6", s.OverallScore)
	}
	if len(s.Alerts) != 0 || s.RequiresReview {
		t.Errorf("oriented session raised alerts: %+v", s.Alerts)
	}
	s.MemoryMetrics.Each(func(name string, v float64) {
		if v < 0 || v > 1 {
			t.Errorf("%s = %v out of range", name, v)
		}
	})
}

func TestAnalyzeMissingPatient(t *testing.T) {
	_, err := New(nil, nil).Analyze(context.Background(), Request{Transcript: "hello"})
	if !errors.Is(err, ErrMissingPatientID) {
		t.Errorf("err = %v, want ErrMissingPatientID", err)
	}
}

func TestAnalyzeUpdatesCache(t *testing.T) {
	ctx := context.Background()
	cache := dashcache.NewMemory()
	if err := cache.Set(ctx, "p1", dashcache.Entry{PatientName: "Rosa"}, time.Hour); err != nil {
		t.Fatal(err)
	}

	a := New(metrics.New(), cache)
	s, err := a.Analyze(ctx, Request{
		PatientID:    "p1",
		Transcript:   "I forget what month it is. My grandson visited yesterday.",
		ExerciseType: "story_recall",
		Timestamp:    sessionTime,
	})
	if err != nil {
		t.Fatal(err)
	}

	e, _ := cache.Get(ctx, "p1")
	if e == nil || len(e.RecentSessions) != 1 {
		t.Fatalf("cache entry = %+v", e)
	}
	sum := e.RecentSessions[0]
	if sum.Score != s.OverallScore || sum.ExerciseType != "story_recall" || !sum.Date.Equal(sessionTime) {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.NotableEvents) != len(s.NotableEvents) {
		t.Errorf("notable events = %v, want %v", sum.NotableEvents, s.NotableEvents)
	}
	if e.OverallCognitiveScore != s.OverallScore {
		t.Errorf("overall cognitive = %v", e.OverallCognitiveScore)
	}

	// Patients without a cached dashboard are left alone.
	if _, err := a.Analyze(ctx, Request{PatientID: "p2", Timestamp: sessionTime}); err != nil {
		t.Fatal(err)
	}
	if e, _ := cache.Get(ctx, "p2"); e != nil {
		t.Error("analysis should not create cache entries")
	}
}

type sessionStore struct {
	err   error
	saved []*patient.Session
}

func (s *sessionStore) SaveSession(sess *patient.Session) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, sess)
	return nil
}

func TestAnalyzeSavesBeforeCaching(t *testing.T) {
	ctx := context.Background()
	cache := dashcache.NewMemory()
	if err := cache.Set(ctx, "p1", dashcache.Entry{PatientName: "Rosa", OverallCognitiveScore: 0.9}, time.Hour); err != nil {
		t.Fatal(err)
	}
	req := Request{PatientID: "p1", Transcript: "I forget what month it is.", Timestamp: sessionTime}

	failing := &sessionStore{err: errors.New("disk full")}
	a := New(nil, cache)
	a.Sessions = failing
	if _, err := a.Analyze(ctx, req); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want save failure", err)
	}
	e, _ := cache.Get(ctx, "p1")
	if e == nil || len(e.RecentSessions) != 0 || e.OverallCognitiveScore != 0.9 {
		t.Fatalf("failed save changed the cache: %+v", e)
	}

	ok := &sessionStore{}
	a.Sessions = ok
	s, err := a.Analyze(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(ok.saved) != 1 || ok.saved[0] != s {
		t.Errorf("saved = %v", ok.saved)
	}
	if e, _ := cache.Get(ctx, "p1"); e == nil || len(e.RecentSessions) != 1 {
		t.Errorf("cache entry after save = %+v", e)
	}
}

func TestTemporalOrientation(t *testing.T) {
	may := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) // Monday
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"It is 2026", 0.33},
		{"It's May I think", 0.33},
		{"maybe monday", 0.34},
		{"Monday the 4th of May, 2026", 1},
		{"2025 was a good year", 0},
	}
	for _, tt := range tests {
		if got := TemporalOrientation(tt.in, may); got != tt.want {
			t.Errorf("TemporalOrientation(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPersonalRecall(t *testing.T) {
	expected := patient.ExpectedInfo{FamilyMembers: []string{"Lucas", "Maria"}, Profession: "School Teacher"}
	tests := []struct {
		name     string
		in       string
		expected patient.ExpectedInfo
		want     float64
	}{
		{"nothing expected", "Lucas came by", patient.ExpectedInfo{}, 0},
		{"all", "lucas and maria, I was a school teacher", expected, 1},
		{"half family and profession", "Lucas says I was a school teacher", expected, 0.75},
		{"one of two family only", "Maria", patient.ExpectedInfo{FamilyMembers: []string{"Lucas", "Maria"}}, 0.5},
		{"profession only", "I was a nurse", patient.ExpectedInfo{Profession: "nurse"}, 1},
	}
	for _, tt := range tests {
		if got := PersonalRecall(tt.in, tt.expected); got != tt.want {
			t.Errorf("%s: PersonalRecall = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestVocabularyRichness(t *testing.T) {
	if got := VocabularyRichness(""); got != 0 {
		t.Errorf("empty = %v", got)
	}
	if got := VocabularyRichness("the the the the"); got != 0.25 {
		t.Errorf("repetitive = %v, want 0.25", got)
	}
	if got := VocabularyRichness("One two Three"); got != 1 {
		t.Errorf("distinct = %v, want 1", got)
	}
}

func TestOverallScore(t *testing.T) {
	tests := []patient.TestResult{
		{Score: 10, MaxScore: 10},
		{Score: 5, MaxScore: 10},
		{Score: 0, MaxScore: 10},
	}
	m := patient.Scores{ShortTermRecall: 0.5, LongTermRecall: 0.5, SemanticMemory: 0.5, EpisodicMemory: 0.5, WorkingMemory: 0.5}
	// 0.4*0.5 + 0.6*0.5
	if got := OverallScore(tests, m); got != 0.5 {
		t.Errorf("OverallScore = %v, want 0.5", got)
	}
	// No tests falls back to a neutral 0.5 cognitive average.
	if got := OverallScore(nil, patient.Scores{}); got != 0.2 {
		t.Errorf("OverallScore(no tests) = %v, want 0.2", got)
	}
}

func TestAlerts(t *testing.T) {
	good := patient.Scores{ShortTermRecall: 0.8, LongTermRecall: 0.8, SemanticMemory: 0.8, EpisodicMemory: 0.8, WorkingMemory: 0.8}
	oriented := []patient.TestResult{{Test: TestTemporal, Score: 10, MaxScore: 10}}

	tests := []struct {
		name    string
		overall float64
		want    string
	}{
		{"critical", 0.39, "critical_decline"},
		{"high at 0.4", 0.4, "moderate_decline"},
		{"high", 0.59, "moderate_decline"},
		{"none at 0.6", 0.6, ""},
	}
	for _, tt := range tests {
		alerts := Alerts(tt.overall, oriented, good)
		if tt.want == "" {
			if len(alerts) != 0 {
				t.Errorf("%s: unexpected alerts %+v", tt.name, alerts)
			}
			continue
		}
		if len(alerts) != 1 || alerts[0].Type != tt.want {
			t.Errorf("%s: alerts = %+v, want one %s", tt.name, alerts, tt.want)
		}
	}

	weak := good
	weak.ShortTermRecall = 0.3
	disoriented := []patient.TestResult{{Test: TestTemporal, Score: 3.3, MaxScore: 10}}
	alerts := Alerts(0.7, disoriented, weak)
	if len(alerts) != 2 {
		t.Fatalf("alerts = %+v, want metric and temporal", alerts)
	}
	if alerts[0].Type != "shortTermRecall_impairment" ||
		alerts[0].Message != "Significant short term recall impairment (score: 30.0%)" {
		t.Errorf("metric alert = %+v", alerts[0])
	}
	if alerts[1].Type != "temporal_disorientation" || alerts[1].Severity != patient.SeverityHigh {
		t.Errorf("temporal alert = %+v", alerts[1])
	}
}

func TestExtractMemories(t *testing.T) {
	in := "We went to Lisbon in the spring. Hi. " +
		"I used to walk the dog every single morning. " +
		"The weather is nice today and sunny. " +
		"My sister was a nurse at the old hospital."
	got := ExtractMemories(in)
	if len(got) != 3 {
		t.Fatalf("got %d memories, want 3: %+v", len(got), got)
	}
	if got[1].Description != "I used to walk the dog every single morning" {
		t.Errorf("description = %q", got[1].Description)
	}
	for _, m := range got {
		if m.Title != "Past Event" || m.EmotionalTone != "neutral" || m.Significance != 2 {
			t.Errorf("memory defaults = %+v", m)
		}
	}

	many := strings.Repeat("We visited the seaside town together. ", 8)
	if n := len(ExtractMemories(many)); n != 5 {
		t.Errorf("cap: got %d memories, want 5", n)
	}
	if ExtractMemories("") != nil {
		t.Error("empty transcript should yield no memories")
	}
}

func TestHumanName(t *testing.T) {
	if got := humanName(patient.EpisodicMemory); got != "episodic memory" {
		t.Errorf("humanName = %q", got)
	}
}
