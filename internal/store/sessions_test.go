package store

import (
	"context"
	"testing"
	"time"

	"github.com/mindmate/cognition/internal/patient"
)

var day0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testSession(id, patientID string, day int, score float64) *patient.Session {
	return &patient.Session{
		ID:           id,
		PatientID:    patientID,
		Transcript:   "We went to the park.",
		ExerciseType: patient.DefaultExerciseType,
		Timestamp:    day0.AddDate(0, 0, day),
		CognitiveTests: []patient.TestResult{
			{Test: "temporal_orientation", Score: 6.6, MaxScore: 10},
		},
		MemoryMetrics: patient.Scores{ShortTermRecall: 0.8, LongTermRecall: 0.5, SemanticMemory: 0.6, EpisodicMemory: 0.5, WorkingMemory: 0.5},
		OverallScore:  score,
		Alerts: []patient.Alert{
			{Type: "moderate_decline", Severity: patient.SeverityHigh, Message: "Moderate cognitive decline (score: 48.1%)", Score: score},
		},
		NotableEvents:  []string{"Moderate cognitive decline (score: 48.1%)"},
		Memories:       []patient.ExtractedMemory{{Title: "Past Event", Description: "We went to the park"}},
		RequiresReview: true,
	}
}

func TestSaveAndListSessions(t *testing.T) {
	db := openTest(t)

	// Saved out of order; listing is chronological.
	for _, s := range []*patient.Session{
		testSession("s2", "p1", 2, 0.6),
		testSession("s1", "p1", 1, 0.7),
		testSession("s3", "p1", 3, 0.5),
		testSession("x1", "p2", 1, 0.9),
	} {
		if err := db.SaveSession(s); err != nil {
			t.Fatalf("SaveSession(%s): %v", s.ID, err)
		}
	}

	all, err := db.ListSessions("p1", 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s1" || all[2].ID != "s3" {
		t.Fatalf("ListSessions order = %+v", all)
	}

	got := all[0]
	want := testSession("s1", "p1", 1, 0.7)
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
	if got.MemoryMetrics != want.MemoryMetrics {
		t.Errorf("MemoryMetrics = %+v", got.MemoryMetrics)
	}
	if len(got.CognitiveTests) != 1 || got.CognitiveTests[0].Score != 6.6 {
		t.Errorf("CognitiveTests = %+v", got.CognitiveTests)
	}
	if len(got.Alerts) != 1 || got.Alerts[0].Severity != patient.SeverityHigh {
		t.Errorf("Alerts = %+v", got.Alerts)
	}
	if !got.RequiresReview || len(got.NotableEvents) != 1 || len(got.Memories) != 1 {
		t.Errorf("review/notable/memories = %v %v %v", got.RequiresReview, got.NotableEvents, got.Memories)
	}

	recent, err := db.ListSessions("p1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "s2" || recent[1].ID != "s3" {
		t.Errorf("ListSessions(limit 2) = %+v", recent)
	}

	none, err := db.ListSessions("nobody", 0)
	if err != nil || len(none) != 0 {
		t.Errorf("ListSessions(nobody) = %v, %v", none, err)
	}
}

func TestSaveSessionReplaces(t *testing.T) {
	db := openTest(t)

	if err := db.SaveSession(testSession("s1", "p1", 1, 0.7)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSession(testSession("s1", "p1", 1, 0.4)); err != nil {
		t.Fatal(err)
	}
	n, err := db.CountSessions("p1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountSessions = %d, want 1", n)
	}
	h, _ := db.ScoreHistory(context.Background(), "p1")
	if len(h) != 1 || h[0].Score != 0.4 {
		t.Errorf("ScoreHistory = %+v", h)
	}
}

func TestScoreHistoryNormalizesLegacyPercent(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	if err := db.SaveSession(testSession("s1", "p1", 1, 72)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSession(testSession("s2", "p1", 2, 0.65)); err != nil {
		t.Fatal(err)
	}

	h, err := db.ScoreHistory(ctx, "p1")
	if err != nil {
		t.Fatalf("ScoreHistory: %v", err)
	}
	if got := h.Scores(); len(got) != 2 || got[0] != 0.72 || got[1] != 0.65 {
		t.Errorf("scores = %v, want [0.72 0.65]", got)
	}

	empty, err := db.ScoreHistory(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Errorf("ScoreHistory(nobody) = %v, %v", empty, err)
	}
}

func TestAllHistories(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	if err := db.UpsertPatient("p1", patient.Profile{Name: "Rosa"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertPatient("p3", patient.Profile{Name: "Idle"}); err != nil {
		t.Fatal(err)
	}
	for _, s := range []*patient.Session{
		testSession("a", "p1", 2, 0.5),
		testSession("b", "p1", 1, 0.6),
		testSession("c", "p2", 1, 0.9),
	} {
		if err := db.SaveSession(s); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.AllHistories(ctx)
	if err != nil {
		t.Fatalf("AllHistories: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d patients, want 3", len(all))
	}
	if all["p1"].Name != "Rosa" || len(all["p1"].History) != 2 || all["p1"].History[0].Score != 0.6 {
		t.Errorf("p1 = %+v", all["p1"])
	}
	if len(all["p2"].History) != 1 {
		t.Errorf("p2 = %+v", all["p2"])
	}
	if len(all["p3"].History) != 0 {
		t.Errorf("p3 should have no history: %+v", all["p3"])
	}
}
