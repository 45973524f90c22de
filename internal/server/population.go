package server

import (
	"net/http"

	"github.com/mindmate/cognition/internal/predict"
	"github.com/mindmate/cognition/internal/risk"
)

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	minProb, err := probabilityParam(r, "min_probability", s.cfg.Prediction.MinProbability)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := s.scorer.PredictAll(r.Context(), minProb)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "prediction failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ok(predictionPayload(batch, s.scorer.CacheInfo(), minProb)))
}

func predictionPayload(b predict.Batch, info predict.CacheInfo, minProb float64) map[string]any {
	return map[string]any{
		"predictions": b.Predictions,
		"count":       len(b.Predictions),
		"cached":      b.Cached,
		"computed_at": b.ComputedAt,
		"cache_info":  cacheInfoPayload(info),
		"threshold":   minProb,
	}
}

// cacheInfoPayload reports durations in the units dashboards display.
func cacheInfoPayload(info predict.CacheInfo) map[string]any {
	if !info.Cached {
		return map[string]any{"cached": false, "age": nil}
	}
	return map[string]any{
		"cached":           true,
		"is_fresh":         info.IsFresh,
		"age_minutes":      info.Age.Minutes(),
		"ttl_hours":        info.TTL.Hours(),
		"prediction_count": info.Count,
	}
}

func (s *Server) handlePredictionCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cacheInfoPayload(s.scorer.CacheInfo()))
}

func (s *Server) handlePredictionRefresh(w http.ResponseWriter, r *http.Request) {
	s.scorer.Invalidate()
	s.handlePredictions(w, r)
}

func (s *Server) handleAtRisk(w http.ResponseWriter, r *http.Request) {
	threshold, err := probabilityParam(r, "threshold", s.cfg.Risk.Threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	histories, err := s.db.AllHistories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	flags := risk.FindAtRisk(histories, threshold)
	writeJSON(w, http.StatusOK, ok(map[string]any{
		"patients":  flags,
		"count":     len(flags),
		"threshold": threshold,
	}))
}
