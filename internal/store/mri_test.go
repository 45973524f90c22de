package store

import (
	"testing"
	"time"

	"github.com/mindmate/cognition/internal/brain"
)

func TestSaveAndLatestMRI(t *testing.T) {
	db := openTest(t)

	m := brain.Measurements{
		brain.LeftHippocampus: {Volume: 3500, Normalized: 0.0024},
	}
	older := brain.Uniform(0.9)
	newer := brain.Uniform(0.6)

	if _, err := db.SaveMRIScan("p1", day0, m, older); err != nil {
		t.Fatalf("SaveMRIScan: %v", err)
	}
	id, err := db.SaveMRIScan("p1", day0.Add(48*time.Hour), m, newer)
	if err != nil {
		t.Fatalf("SaveMRIScan: %v", err)
	}

	scan, err := db.LatestMRI("p1")
	if err != nil {
		t.Fatalf("LatestMRI: %v", err)
	}
	if scan == nil {
		t.Fatal("LatestMRI returned nil")
	}
	if scan.ID != id || scan.Regions != newer {
		t.Errorf("scan = %+v, want id %d regions %+v", scan, id, newer)
	}
	if !scan.ScannedAt.Equal(day0.Add(48 * time.Hour)) {
		t.Errorf("ScannedAt = %v", scan.ScannedAt)
	}
	if scan.Measurements[brain.LeftHippocampus].Volume != 3500 {
		t.Errorf("Measurements = %+v", scan.Measurements)
	}
}

func TestLatestMRINone(t *testing.T) {
	db := openTest(t)

	scan, err := db.LatestMRI("p1")
	if err != nil {
		t.Fatalf("LatestMRI: %v", err)
	}
	if scan != nil {
		t.Errorf("expected nil, got %+v", scan)
	}
}
