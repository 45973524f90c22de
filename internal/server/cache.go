package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")
	removed, err := s.cache.Invalidate(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"patient_id": id,
		"was_cached": removed,
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.ClearAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "entries_cleared": n})
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.CleanupExpired(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "entries_removed": n})
}
