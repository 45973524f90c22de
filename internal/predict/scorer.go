package predict

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mindmate/cognition/internal/patient"
)

// DefaultTTL is how long a computed batch is served before recomputing.
const DefaultTTL = 24 * time.Hour

// DefaultMinProbability is the batch filter used when callers pass none.
const DefaultMinProbability = 0.4

// HistorySource supplies the patients and score histories a batch covers.
type HistorySource interface {
	Patients(ctx context.Context) ([]patient.Ref, error)
	ScoreHistory(ctx context.Context, patientID string) (patient.ScoreHistory, error)
}

// Batch is one filtered view of the population forecast.
type Batch struct {
	Predictions []Prediction `json:"predictions"`
	Cached      bool         `json:"cached"`
	ComputedAt  time.Time    `json:"computed_at"`
}

// CacheInfo reports the state of the batch cache.
type CacheInfo struct {
	Cached  bool          `json:"cached"`
	IsFresh bool          `json:"is_fresh"`
	Age     time.Duration `json:"age"`
	TTL     time.Duration `json:"ttl"`
	Count   int           `json:"prediction_count"`
}

// Scorer forecasts every patient and caches the ranked result as one batch.
// The batch is replaced whole, so readers see either the previous batch or
// the new one.
type Scorer struct {
	src HistorySource
	ttl time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time

	computeMu sync.Mutex // serializes recomputation

	mu         sync.RWMutex
	batch      []Prediction // ranked, unfiltered
	computedAt time.Time
}

// NewScorer creates a Scorer. A non-positive ttl selects DefaultTTL.
func NewScorer(src HistorySource, ttl time.Duration) *Scorer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Scorer{src: src, ttl: ttl, Now: time.Now}
}

func (s *Scorer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// fresh returns the cached batch if it is within TTL. Caller holds mu.
func (s *Scorer) fresh() ([]Prediction, bool) {
	if s.computedAt.IsZero() || s.now().Sub(s.computedAt) >= s.ttl {
		return nil, false
	}
	return s.batch, true
}

// PredictAll returns every patient whose decline probability is at least
// minProbability, ranked by probability, highest first. Within TTL the
// cached batch is filtered and returned with Cached set.
func (s *Scorer) PredictAll(ctx context.Context, minProbability float64) (Batch, error) {
	s.mu.RLock()
	preds, ok := s.fresh()
	at := s.computedAt
	s.mu.RUnlock()
	if ok {
		return Batch{Predictions: filter(preds, minProbability), Cached: true, ComputedAt: at}, nil
	}

	s.computeMu.Lock()
	defer s.computeMu.Unlock()

	// Another caller may have refreshed while we waited.
	s.mu.RLock()
	preds, ok = s.fresh()
	at = s.computedAt
	s.mu.RUnlock()
	if ok {
		return Batch{Predictions: filter(preds, minProbability), Cached: true, ComputedAt: at}, nil
	}

	preds, err := s.compute(ctx)
	if err != nil {
		return Batch{}, err
	}
	at = s.now()

	s.mu.Lock()
	s.batch = preds
	s.computedAt = at
	s.mu.Unlock()

	log.Printf("predict: computed %d predictions", len(preds))
	return Batch{Predictions: filter(preds, minProbability), ComputedAt: at}, nil
}

func (s *Scorer) compute(ctx context.Context) ([]Prediction, error) {
	refs, err := s.src.Patients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	preds := make([]Prediction, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		history, err := s.src.ScoreHistory(ctx, ref.ID)
		if err != nil {
			log.Printf("predict: skip patient %s: %v", ref.ID, err)
			continue
		}
		p := Predict(ref.ID, history)
		p.Name = ref.Name
		preds = append(preds, p)
	}

	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].DeclineProbability > preds[j].DeclineProbability
	})
	return preds, nil
}

func filter(preds []Prediction, minProbability float64) []Prediction {
	out := []Prediction{}
	for _, p := range preds {
		if p.DeclineProbability >= minProbability {
			out = append(out, p)
		}
	}
	return out
}

// CacheInfo reports whether a batch exists and how old it is.
func (s *Scorer) CacheInfo() CacheInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := CacheInfo{TTL: s.ttl}
	if s.computedAt.IsZero() {
		return info
	}
	info.Cached = true
	info.Age = s.now().Sub(s.computedAt)
	info.IsFresh = info.Age < s.ttl
	info.Count = len(s.batch)
	return info
}

// Invalidate drops the cached batch so the next call recomputes.
func (s *Scorer) Invalidate() {
	s.mu.Lock()
	s.batch = nil
	s.computedAt = time.Time{}
	s.mu.Unlock()
}
