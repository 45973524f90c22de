package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindmate/cognition/internal/patient"
	"github.com/mindmate/cognition/internal/risk"
)

const sessionColumns = `id, patient_id, transcript, exercise_type, session_at, overall_score,
	metrics_json, tests_json, alerts_json, notable_json, memories_json, requires_review`

// SaveSession stores an analyzed session, replacing any earlier version
// with the same ID.
func (db *DB) SaveSession(s *patient.Session) error {
	var blobs [5]string
	for i, v := range []any{s.MemoryMetrics, s.CognitiveTests, s.Alerts, s.NotableEvents, s.Memories} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", s.ID, err)
		}
		blobs[i] = string(b)
	}

	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer tx.Rollback()

	if err := ensurePatient(tx, s.PatientID, now); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO sessions (`+sessionColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.PatientID, s.Transcript, s.ExerciseType, s.Timestamp.UnixMilli(), s.OverallScore,
		blobs[0], blobs[1], blobs[2], blobs[3], blobs[4], s.RequiresReview, now)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return tx.Commit()
}

// ListSessions returns a patient's sessions oldest first. With limit > 0
// only the most recent limit sessions are returned.
func (db *DB) ListSessions(patientID string, limit int) ([]patient.Session, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := db.Query(`
		SELECT * FROM (
			SELECT `+sessionColumns+` FROM sessions
			WHERE patient_id = ? ORDER BY session_at DESC LIMIT ?
		) ORDER BY session_at ASC
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []patient.Session
	for rows.Next() {
		var (
			s     patient.Session
			at    int64
			blobs [5]string
		)
		if err := rows.Scan(&s.ID, &s.PatientID, &s.Transcript, &s.ExerciseType, &at, &s.OverallScore,
			&blobs[0], &blobs[1], &blobs[2], &blobs[3], &blobs[4], &s.RequiresReview); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Timestamp = time.UnixMilli(at).UTC()
		s.OverallScore = patient.NormalizeScore(s.OverallScore)
		for i, dst := range []any{&s.MemoryMetrics, &s.CognitiveTests, &s.Alerts, &s.NotableEvents, &s.Memories} {
			if err := json.Unmarshal([]byte(blobs[i]), dst); err != nil {
				return nil, fmt.Errorf("decode session %s: %w", s.ID, err)
			}
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ScoreHistory returns a patient's overall scores oldest first, normalized
// to [0,1].
func (db *DB) ScoreHistory(ctx context.Context, patientID string) (patient.ScoreHistory, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_at, overall_score FROM sessions
		WHERE patient_id = ? ORDER BY session_at ASC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("score history: %w", err)
	}
	defer rows.Close()

	var h patient.ScoreHistory
	for rows.Next() {
		var (
			at    int64
			score float64
		)
		if err := rows.Scan(&at, &score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		h = append(h, patient.ScorePoint{Timestamp: time.UnixMilli(at).UTC(), Score: patient.NormalizeScore(score)})
	}
	return h, rows.Err()
}

// AllHistories returns every patient's score history keyed by patient ID.
// Patients without sessions are included with an empty history.
func (db *DB) AllHistories(ctx context.Context) (map[string]risk.PatientHistory, error) {
	refs, err := db.Patients(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]risk.PatientHistory, len(refs))
	for _, r := range refs {
		out[r.ID] = risk.PatientHistory{Name: r.Name}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT patient_id, session_at, overall_score FROM sessions
		ORDER BY patient_id, session_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("all histories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			at    int64
			score float64
		)
		if err := rows.Scan(&id, &at, &score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		ph := out[id]
		ph.History = append(ph.History, patient.ScorePoint{Timestamp: time.UnixMilli(at).UTC(), Score: patient.NormalizeScore(score)})
		out[id] = ph
	}
	return out, rows.Err()
}

// CountSessions returns the number of sessions stored for a patient.
func (db *DB) CountSessions(patientID string) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE patient_id = ?`, patientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
