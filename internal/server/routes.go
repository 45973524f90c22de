package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mindmate/cognition/internal/analyzer"
	"github.com/mindmate/cognition/internal/dashboard"
	"github.com/mindmate/cognition/internal/patient"
	"github.com/mindmate/cognition/internal/risk"
)

// previousSessionWindow is how many stored sessions feed long-term recall
// when the caller sends none.
const previousSessionWindow = 3

func (s *Server) handleAnalyzeSession(w http.ResponseWriter, r *http.Request) {
	var req analyzer.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id required")
		return
	}

	if req.Profile.Name != "" {
		if err := s.db.UpsertPatient(req.PatientID, req.Profile); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else if stored, err := s.db.GetPatient(req.PatientID); err == nil && stored != nil {
		req.Profile = stored.Profile
	}

	if len(req.Previous) == 0 {
		prev, err := s.db.ListSessions(req.PatientID, previousSessionWindow)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.Previous = prev
	}

	sess, err := s.analyzer.Analyze(r.Context(), req)
	if errors.Is(err, analyzer.ErrMissingPatientID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis failed: "+err.Error())
		return
	}
	log.Printf("server: analyzed session %s for %s (score %.3f, %d alerts)",
		sess.ID, sess.PatientID, sess.OverallScore, len(sess.Alerts))

	resp := ok(sess)
	resp["message"] = "Session analyzed successfully"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpsertPatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")

	var p patient.Profile
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.db.UpsertPatient(id, p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ok(map[string]any{"patient_id": id, "profile": p}))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := s.db.ListSessions(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []patient.Session{}
	}
	writeJSON(w, http.StatusOK, ok(map[string]any{
		"patient_id": id,
		"count":      len(sessions),
		"sessions":   sessions,
	}))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")
	days, err := intParam(r, "days_back", dashboard.DefaultDaysBack)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, cached, err := s.dashboards.Get(r.Context(), id, days)
	if errors.Is(err, dashboard.ErrUnknownPatient) {
		writeError(w, http.StatusNotFound, "patient not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dashboard generation failed: "+err.Error())
		return
	}

	resp := ok(entry)
	resp["cached"] = cached
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")

	h, err := s.db.ScoreHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report := risk.AnalyzeDecline(h)
	writeJSON(w, http.StatusOK, ok(map[string]any{
		"patient_id": id,
		"analysis":   report,
	}))
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

// probabilityParam parses a query value that must lie in [0,1].
func probabilityParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, fmt.Errorf("%s must be a number between 0 and 1", name)
	}
	return v, nil
}
