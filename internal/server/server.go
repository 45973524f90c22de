package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindmate/cognition/internal/analyzer"
	"github.com/mindmate/cognition/internal/config"
	"github.com/mindmate/cognition/internal/dashboard"
	"github.com/mindmate/cognition/internal/dashcache"
	"github.com/mindmate/cognition/internal/metrics"
	"github.com/mindmate/cognition/internal/predict"
	"github.com/mindmate/cognition/internal/store"
)

// maxBodyBytes bounds request bodies, including CSV uploads.
const maxBodyBytes = 10 << 20

// Server is the mindmate HTTP API server.
type Server struct {
	db         *store.DB
	cache      dashcache.Cache
	analyzer   *analyzer.Analyzer
	dashboards *dashboard.Builder
	scorer     *predict.Scorer
	cfg        config.Config
	router     chi.Router
	version    string
	started    time.Time
}

// New creates a new Server. A nil cache selects an in-process cache.
func New(db *store.DB, cache dashcache.Cache, cfg config.Config, version string) *Server {
	if cache == nil {
		cache = dashcache.NewMemory(dashcache.WithTTL(cfg.Cache.TTL))
	}
	engine := metrics.New()
	a := analyzer.New(engine, cache)
	a.Sessions = db
	s := &Server{
		db:         db,
		cache:      cache,
		analyzer:   a,
		dashboards: dashboard.New(db, cache, engine, cfg.Cache.TTL),
		scorer:     predict.NewScorer(db, cfg.Prediction.TTL),
		cfg:        cfg,
		version:    version,
		started:    time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/sessions/analyze", s.handleAnalyzeSession)

		r.Route("/patients/{patientID}", func(r chi.Router) {
			r.Put("/", s.handleUpsertPatient)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/dashboard", s.handleDashboard)
			r.Post("/mri", s.handleMRI)
			r.Get("/decline", s.handleDecline)
		})

		r.Get("/predictions", s.handlePredictions)
		r.Get("/predictions/cache", s.handlePredictionCache)
		r.Post("/predictions/refresh", s.handlePredictionRefresh)
		r.Get("/at-risk", s.handleAtRisk)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", s.handleCacheStats)
			r.Post("/invalidate/{patientID}", s.handleCacheInvalidate)
			r.Post("/clear", s.handleCacheClear)
			r.Post("/cleanup", s.handleCacheCleanup)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      s.db.Healthy(),
		"db_path": s.db.Path,
	}
	if stats, err := s.cache.Stats(r.Context()); err == nil {
		resp["cache"] = stats
	} else {
		resp["cache_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ok wraps a payload in the API's success envelope.
func ok(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}
