package server

import (
	"encoding/json"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mindmate/cognition/internal/brain"
)

type mriRequest struct {
	ScannedAt time.Time          `json:"scanned_at"`
	Current   brain.Measurements `json:"current"`
	Baseline  brain.Measurements `json:"baseline,omitempty"`
}

type mriResult struct {
	PatientID      string            `json:"patient_id"`
	ScanID         int64             `json:"scan_id"`
	AnalyzedAt     time.Time         `json:"analyzed_at"`
	BrainRegions   brain.Regions     `json:"brain_regions"`
	Alerts         []brain.Alert     `json:"alerts"`
	Comparison     *brain.Comparison `json:"comparison,omitempty"`
	RequiresReview bool              `json:"requires_doctor_review"`
}

// handleMRI ingests a volumetric table as JSON or as a text/csv body. When no
// baseline is sent, the patient's previous stored scan is used.
func (s *Server) handleMRI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req mriRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		m, err := brain.ParseCSV(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Current = m
	} else if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if len(req.Current) == 0 {
		writeError(w, http.StatusBadRequest, "current measurements required")
		return
	}
	for _, m := range []brain.Measurements{req.Current, req.Baseline} {
		if err := m.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	now := time.Now().UTC()
	if req.ScannedAt.IsZero() {
		req.ScannedAt = now
	}

	var baseline *brain.Regions
	if len(req.Baseline) > 0 {
		b := brain.Map(req.Baseline)
		baseline = &b
	} else {
		prev, err := s.db.LatestMRI(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if prev != nil {
			baseline = &prev.Regions
		}
	}

	regions := brain.Map(req.Current)
	res := mriResult{
		PatientID:    id,
		AnalyzedAt:   now,
		BrainRegions: regions,
		Alerts:       brain.DetectAlerts(regions, brain.DefaultAlertThreshold),
	}
	if res.Alerts == nil {
		res.Alerts = []brain.Alert{}
	}
	res.RequiresReview = len(res.Alerts) > 0
	if baseline != nil {
		cmp := brain.Compare(*baseline, regions)
		res.Comparison = &cmp
		res.RequiresReview = cmp.RequiresReview
	}

	scanID, err := s.db.SaveMRIScan(id, req.ScannedAt, req.Current, regions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res.ScanID = scanID

	// The dashboard shows brain regions from the latest scan.
	if _, err := s.cache.Invalidate(r.Context(), id); err != nil {
		log.Printf("server: invalidate cache for %s: %v", id, err)
	}
	writeJSON(w, http.StatusOK, ok(res))
}
