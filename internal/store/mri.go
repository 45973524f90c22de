package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindmate/cognition/internal/brain"
)

// MRIScan is one stored volumetric scan and the region scores derived from it.
type MRIScan struct {
	ID           int64
	PatientID    string
	ScannedAt    time.Time
	Measurements brain.Measurements
	Regions      brain.Regions
}

// SaveMRIScan stores a scan and returns its row ID.
func (db *DB) SaveMRIScan(patientID string, at time.Time, m brain.Measurements, r brain.Regions) (int64, error) {
	mRaw, err := json.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("encode measurements: %w", err)
	}
	rRaw, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("encode regions: %w", err)
	}

	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save scan: %w", err)
	}
	defer tx.Rollback()

	if err := ensurePatient(tx, patientID, now); err != nil {
		return 0, err
	}
	result, err := tx.Exec(`
		INSERT INTO mri_scans (patient_id, scanned_at, measurements_json, regions_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, patientID, at.UnixMilli(), string(mRaw), string(rRaw), now)
	if err != nil {
		return 0, fmt.Errorf("insert scan: %w", err)
	}
	id, _ := result.LastInsertId()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scan: %w", err)
	}
	return id, nil
}

// LatestMRI returns the patient's most recent scan, or nil if there is none.
func (db *DB) LatestMRI(patientID string) (*MRIScan, error) {
	var (
		s          MRIScan
		at         int64
		mRaw, rRaw string
	)
	err := db.QueryRow(`
		SELECT id, patient_id, scanned_at, measurements_json, regions_json
		FROM mri_scans WHERE patient_id = ?
		ORDER BY scanned_at DESC, id DESC LIMIT 1
	`, patientID).Scan(&s.ID, &s.PatientID, &at, &mRaw, &rRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest scan: %w", err)
	}
	s.ScannedAt = time.UnixMilli(at).UTC()
	if err := json.Unmarshal([]byte(mRaw), &s.Measurements); err != nil {
		return nil, fmt.Errorf("decode measurements: %w", err)
	}
	if err := json.Unmarshal([]byte(rRaw), &s.Regions); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	return &s, nil
}
