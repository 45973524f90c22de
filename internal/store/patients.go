package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindmate/cognition/internal/patient"
)

// Patient is a stored patient record.
type Patient struct {
	ID        string
	Profile   patient.Profile
	CreatedAt int64
	UpdatedAt int64
}

// UpsertPatient creates the patient or replaces its profile.
func (db *DB) UpsertPatient(id string, p patient.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO patients (id, name, age, profile_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			profile_json = excluded.profile_json,
			updated_at = excluded.updated_at
	`, id, p.Name, p.Age, string(raw), now, now)
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}
	return nil
}

// GetPatient returns a patient by ID, or nil if it does not exist.
func (db *DB) GetPatient(id string) (*Patient, error) {
	var (
		p   Patient
		raw string
	)
	err := db.QueryRow(`
		SELECT id, profile_json, created_at, updated_at FROM patients WHERE id = ?
	`, id).Scan(&p.ID, &raw, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &p.Profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return &p, nil
}

// Patients lists every patient, ordered by ID.
func (db *DB) Patients(ctx context.Context) ([]patient.Ref, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM patients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var refs []patient.Ref
	for rows.Next() {
		var r patient.Ref
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// ensurePatient inserts a bare patient row so sessions and scans can
// reference patients that were never registered with a profile.
func ensurePatient(tx *sql.Tx, id string, now int64) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO patients (id, created_at, updated_at) VALUES (?, ?, ?)
	`, id, now, now)
	if err != nil {
		return fmt.Errorf("ensure patient: %w", err)
	}
	return nil
}
