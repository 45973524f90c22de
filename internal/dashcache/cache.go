// Package dashcache caches assembled patient dashboards with a per-entry TTL.
//
// Entries expire lazily on Get and eagerly through CleanupExpired. New
// session activity refreshes an entry's content through UpdateSessionData
// without extending its expiry.
package dashcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindmate/cognition/internal/brain"
	"github.com/mindmate/cognition/internal/metrics"
	"github.com/mindmate/cognition/internal/patient"
)

// DefaultTTL is used when Set is called with a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// MaxRecentSessions caps the summaries kept on an entry.
const MaxRecentSessions = 10

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var (
	ErrInvalidConfig  = errors.New("invalid cache configuration")
	ErrInvalidBackend = errors.New("invalid cache backend")
)

// Entry is one patient's assembled dashboard.
type Entry struct {
	PatientID             string            `json:"patient_id"`
	PatientName           string            `json:"patient_name"`
	LastUpdated           time.Time         `json:"last_updated"`
	BrainRegions          brain.Regions     `json:"brain_regions"`
	MemoryMetrics         metrics.Series    `json:"memory_metrics"`
	RecentSessions        []patient.Summary `json:"recent_sessions"`
	OverallCognitiveScore float64           `json:"overall_cognitive_score"`
	MemoryRetentionRate   float64           `json:"memory_retention_rate"`
	CachedAt              time.Time         `json:"cached_at"`
	ExpiresAt             time.Time         `json:"ttl_expires_at"`
}

// clone returns a copy that shares no slices or maps with e.
func (e *Entry) clone() *Entry {
	c := *e
	c.RecentSessions = append([]patient.Summary(nil), e.RecentSessions...)
	if e.MemoryMetrics != nil {
		c.MemoryMetrics = make(metrics.Series, len(e.MemoryMetrics))
		for k, v := range e.MemoryMetrics {
			c.MemoryMetrics[k] = append([]metrics.Point(nil), v...)
		}
	}
	return &c
}

// expired reports whether the entry is no longer servable at now.
func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// stamp sets the cache timestamps for an entry stored at now.
func (e *Entry) stamp(id string, now time.Time, ttl time.Duration) {
	e.PatientID = id
	e.CachedAt = now
	e.ExpiresAt = now.Add(ttl)
	if e.LastUpdated.IsZero() {
		e.LastUpdated = now
	}
}

// addSummary prepends s, trims to MaxRecentSessions and recomputes the
// overall score as the mean of what remains.
func (e *Entry) addSummary(s patient.Summary, now time.Time) {
	recent := make([]patient.Summary, 0, len(e.RecentSessions)+1)
	recent = append(recent, s)
	recent = append(recent, e.RecentSessions...)
	if len(recent) > MaxRecentSessions {
		recent = recent[:MaxRecentSessions]
	}
	e.RecentSessions = recent

	var sum float64
	for _, r := range recent {
		sum += r.Score
	}
	e.OverallCognitiveScore = sum / float64(len(recent))
	e.LastUpdated = now
}

// Stats summarizes cache occupancy.
type Stats struct {
	Backend         string  `json:"backend"`
	TotalEntries    int     `json:"total_entries"`
	ActiveEntries   int     `json:"active_entries"`
	ExpiredEntries  int     `json:"expired_entries"`
	DefaultTTLHours float64 `json:"default_ttl_hours"`
}

// Cache stores dashboards keyed by patient ID.
type Cache interface {
	// Get returns the entry if it has not expired. A miss returns nil, nil;
	// an expired entry is deleted and reported as a miss.
	Get(ctx context.Context, patientID string) (*Entry, error)

	// Set stores entry, stamping CachedAt and ExpiresAt. A non-positive ttl
	// selects the cache default.
	Set(ctx context.Context, patientID string, entry Entry, ttl time.Duration) error

	// Invalidate deletes one entry and reports whether it existed.
	Invalidate(ctx context.Context, patientID string) (bool, error)

	// ClearAll deletes every entry and returns how many there were.
	ClearAll(ctx context.Context) (int, error)

	// CleanupExpired deletes expired entries and returns how many.
	CleanupExpired(ctx context.Context) (int, error)

	// UpdateSessionData prepends a session summary to a cached entry. It
	// reports false without error when the patient is not cached. Expiry is
	// left untouched.
	UpdateSessionData(ctx context.Context, patientID string, summary patient.Summary) (bool, error)

	Stats(ctx context.Context) (Stats, error)
}

// Option configures a cache.
type Option func(*options)

type options struct {
	ttl         time.Duration
	now         func() time.Time
	redisClient *redis.Client
	keyPrefix   string
}

// WithTTL sets the default entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRedisClient sets the client for the redis backend.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

func buildOptions(opts []Option) options {
	o := options{ttl: DefaultTTL, now: time.Now, keyPrefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = DefaultTTL
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// New creates a cache for the named backend. The redis backend requires
// WithRedisClient.
func New(backend string, opts ...Option) (Cache, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemory(opts...), nil
	case BackendRedis:
		o := buildOptions(opts)
		if o.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedis(o), nil
	default:
		return nil, ErrInvalidBackend
	}
}
