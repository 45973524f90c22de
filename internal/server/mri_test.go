package server

import (
	"net/http"
	"strings"
	"testing"
)

const healthyJSON = `{
	"Left-Hippocampus":          {"volume": 4200, "normalized": 0.0025},
	"Right-Hippocampus":         {"volume": 4100, "normalized": 0.0025},
	"Left-Temporal-Lobe":        {"volume": 60000, "normalized": 0.035},
	"Right-Temporal-Lobe":       {"volume": 61000, "normalized": 0.035},
	"Total-gray-matter":         {"volume": 200000, "normalized": 0.12},
	"Brain-Segmentation-Volume": {"volume": 1900000, "normalized": 1.15}
}`

const atrophiedCSV = `Structure,Volume_mm3,Normalized_Volume
Left-Hippocampus,2600,0.0016
Right-Hippocampus,2500,0.0016
Left-Temporal-Lobe,60000,0.035
Right-Temporal-Lobe,61000,0.035
Total-gray-matter,200000,0.12
Brain-Segmentation-Volume,1900000,1.15
`

func TestMRIJSON(t *testing.T) {
	srv := testServer(t)

	code, resp := do(t, srv, "POST", "/api/patients/p1/mri",
		strings.NewReader(`{"current":`+healthyJSON+`}`), "application/json")
	if code != http.StatusOK {
		t.Fatalf("status = %d; body: %v", code, resp)
	}
	d := data(t, resp)
	if _, ok := d["brain_regions"].(map[string]any); !ok {
		t.Errorf("brain_regions = %v", d["brain_regions"])
	}
	if _, ok := d["comparison"]; ok {
		t.Error("first scan has nothing to compare against")
	}

	scan, err := srv.db.LatestMRI("p1")
	if err != nil || scan == nil {
		t.Fatalf("LatestMRI = %v, %v", scan, err)
	}
}

func TestMRICSVComparesWithPreviousScan(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/patients/p1/mri", strings.NewReader(`{"current":`+healthyJSON+`}`), "application/json")

	code, resp := do(t, srv, "POST", "/api/patients/p1/mri", strings.NewReader(atrophiedCSV), "text/csv; charset=utf-8")
	if code != http.StatusOK {
		t.Fatalf("status = %d; body: %v", code, resp)
	}
	d := data(t, resp)
	cmp, ok := d["comparison"].(map[string]any)
	if !ok {
		t.Fatalf("comparison = %v", d["comparison"])
	}
	declining, _ := cmp["declining_regions"].([]any)
	if len(declining) == 0 {
		t.Errorf("expected hippocampal decline, got %v", cmp)
	}
	if d["requires_doctor_review"] != true {
		t.Error("expected requires_doctor_review")
	}
}

func TestMRIInvalidatesDashboard(t *testing.T) {
	srv := testServer(t)
	analyzeSession(t, srv, "p1", "s1", "2026-03-05T15:00:00Z")
	do(t, srv, "GET", "/api/patients/p1/dashboard", nil, "")

	do(t, srv, "POST", "/api/patients/p1/mri", strings.NewReader(`{"current":`+healthyJSON+`}`), "application/json")

	_, resp := do(t, srv, "GET", "/api/patients/p1/dashboard", nil, "")
	if resp["cached"] != false {
		t.Error("dashboard should be rebuilt after a new scan")
	}
}

func TestMRIRejectsMalformed(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{"bad csv", "Structure,Volume_mm3\nLeft-Hippocampus,4200\n", "text/csv"},
		{"negative", `{"current":{"Left-Hippocampus":{"volume":-1,"normalized":0.002}}}`, "application/json"},
		{"empty", `{}`, "application/json"},
		{"invalid json", `{"current":`, "application/json"},
	}
	for _, tt := range tests {
		code, resp := do(t, srv, "POST", "/api/patients/p1/mri", strings.NewReader(tt.body), tt.contentType)
		if code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400 (%v)", tt.name, code, resp)
		}
	}
}
