package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "patients: profile and expected personal facts",
		SQL: `
CREATE TABLE patients (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    age           INTEGER NOT NULL DEFAULT 0,
    profile_json  TEXT NOT NULL DEFAULT '{}',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "sessions: analyzed check-ins",
		SQL: `
CREATE TABLE sessions (
    id              TEXT PRIMARY KEY,
    patient_id      TEXT NOT NULL,
    transcript      TEXT NOT NULL DEFAULT '',
    exercise_type   TEXT NOT NULL,
    session_at      INTEGER NOT NULL,

    -- Scores. overall_score is on the [0,1] scale; older imports may hold 0-100.
    overall_score   REAL NOT NULL,
    metrics_json    TEXT NOT NULL,
    tests_json      TEXT NOT NULL DEFAULT '[]',
    alerts_json     TEXT NOT NULL DEFAULT '[]',
    notable_json    TEXT NOT NULL DEFAULT '[]',
    memories_json   TEXT NOT NULL DEFAULT '[]',
    requires_review INTEGER NOT NULL DEFAULT 0,

    created_at      INTEGER NOT NULL,

    FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE INDEX idx_sessions_patient_at ON sessions(patient_id, session_at);
`,
	},
	{
		Version:     3,
		Description: "mri_scans: volumetric measurements and region scores",
		SQL: `
CREATE TABLE mri_scans (
    id                INTEGER PRIMARY KEY,
    patient_id        TEXT NOT NULL,
    scanned_at        INTEGER NOT NULL,
    measurements_json TEXT NOT NULL,
    regions_json      TEXT NOT NULL,
    created_at        INTEGER NOT NULL,

    FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE INDEX idx_mri_patient_at ON mri_scans(patient_id, scanned_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
