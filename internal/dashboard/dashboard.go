// Package dashboard assembles a patient's dashboard from stored sessions and
// the latest MRI scan, reading through the dashboard cache.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mindmate/cognition/internal/brain"
	"github.com/mindmate/cognition/internal/dashcache"
	"github.com/mindmate/cognition/internal/metrics"
	"github.com/mindmate/cognition/internal/patient"
	"github.com/mindmate/cognition/internal/store"
)

const (
	// DefaultDaysBack is the metric time-series window.
	DefaultDaysBack = 30
	// DefaultRegionScore is shown for every region until a scan exists.
	DefaultRegionScore = 0.75

	neutralOverall = 0.5
)

// ErrUnknownPatient is returned for a patient with no record and no sessions.
var ErrUnknownPatient = errors.New("unknown patient")

// Source is the persistence a dashboard is built from. *store.DB satisfies it.
type Source interface {
	GetPatient(id string) (*store.Patient, error)
	ListSessions(patientID string, limit int) ([]patient.Session, error)
	LatestMRI(patientID string) (*store.MRIScan, error)
}

// Builder assembles dashboards. Cache may be nil.
type Builder struct {
	Source  Source
	Cache   dashcache.Cache
	Metrics *metrics.Engine
	TTL     time.Duration

	// Now stamps LastUpdated. Nil means time.Now.
	Now func() time.Time
}

// New creates a Builder.
func New(src Source, cache dashcache.Cache, engine *metrics.Engine, ttl time.Duration) *Builder {
	if engine == nil {
		engine = metrics.New()
	}
	return &Builder{Source: src, Cache: cache, Metrics: engine, TTL: ttl, Now: time.Now}
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// Get returns the cached dashboard when there is one, otherwise builds and
// caches it. The boolean reports a cache hit. Cache failures are logged
// and fall through to a fresh build.
func (b *Builder) Get(ctx context.Context, patientID string, daysBack int) (*dashcache.Entry, bool, error) {
	if b.Cache != nil {
		e, err := b.Cache.Get(ctx, patientID)
		if err != nil {
			log.Printf("dashboard: cache get %s: %v", patientID, err)
		} else if e != nil {
			return e, true, nil
		}
	}

	e, err := b.Build(patientID, daysBack)
	if err != nil {
		return nil, false, err
	}
	if b.Cache == nil {
		return e, false, nil
	}

	if err := b.Cache.Set(ctx, patientID, *e, b.TTL); err != nil {
		log.Printf("dashboard: cache set %s: %v", patientID, err)
		return e, false, nil
	}
	if stored, err := b.Cache.Get(ctx, patientID); err == nil && stored != nil {
		e = stored
	}
	return e, false, nil
}

// Build assembles a dashboard without touching the cache.
func (b *Builder) Build(patientID string, daysBack int) (*dashcache.Entry, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}

	p, err := b.Source.GetPatient(patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	sessions, err := b.Source.ListSessions(patientID, 0)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if p == nil && len(sessions) == 0 {
		return nil, ErrUnknownPatient
	}

	regions := brain.Uniform(DefaultRegionScore)
	scan, err := b.Source.LatestMRI(patientID)
	if err != nil {
		return nil, fmt.Errorf("load mri: %w", err)
	}
	if scan != nil {
		regions = scan.Regions
	}

	e := &dashcache.Entry{
		PatientID:           patientID,
		LastUpdated:         b.now().UTC(),
		BrainRegions:        regions,
		MemoryMetrics:       b.Metrics.TimeSeries(sessions, daysBack),
		RecentSessions:      recentSummaries(sessions),
		MemoryRetentionRate: b.Metrics.RetentionRate(sessions, metrics.DefaultRetentionDays),
	}
	if p != nil {
		e.PatientName = p.Profile.Name
	}
	e.OverallCognitiveScore = overall(e.RecentSessions)
	return e, nil
}

// recentSummaries condenses the newest sessions, newest first.
func recentSummaries(sessions []patient.Session) []patient.Summary {
	out := []patient.Summary{}
	for i := len(sessions) - 1; i >= 0 && len(out) < dashcache.MaxRecentSessions; i-- {
		out = append(out, patient.SummaryOf(&sessions[i]))
	}
	return out
}

func overall(recent []patient.Summary) float64 {
	if len(recent) == 0 {
		return neutralOverall
	}
	var sum float64
	for _, s := range recent {
		sum += s.Score
	}
	return patient.Round3(sum / float64(len(recent)))
}
