package dashcache

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mindmate/cognition/internal/brain"
	"github.com/mindmate/cognition/internal/metrics"
	"github.com/mindmate/cognition/internal/patient"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func sampleEntry(name string, scores ...float64) Entry {
	day := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	e := Entry{
		PatientName:  name,
		BrainRegions: brain.Uniform(0.75),
		MemoryMetrics: metrics.Series{
			patient.ShortTermRecall: {{Timestamp: day, Score: 0.7}},
		},
		MemoryRetentionRate: 0.62,
	}
	var sum float64
	for i, s := range scores {
		e.RecentSessions = append(e.RecentSessions, patient.Summary{
			Date: day.AddDate(0, 0, -i), Score: s, ExerciseType: patient.DefaultExerciseType, NotableEvents: []string{},
		})
		sum += s
	}
	if len(scores) > 0 {
		e.OverallCognitiveScore = sum / float64(len(scores))
	}
	return e
}

type backend struct {
	name  string
	cache Cache
	clock *clock
}

func backends(t *testing.T) []backend {
	t.Helper()
	memClock := newClock()
	mem := NewMemory(WithClock(memClock.now), WithTTL(2*time.Hour))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	redisClock := newClock()
	rc, err := New(BackendRedis, WithRedisClient(client), WithClock(redisClock.now), WithTTL(2*time.Hour))
	if err != nil {
		t.Fatalf("New(redis): %v", err)
	}

	return []backend{
		{"memory", mem, memClock},
		{"redis", rc, redisClock},
	}
}

func TestRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			in := sampleEntry("Rosa", 0.6, 0.7)
			if err := b.cache.Set(ctx, "p1", in, time.Hour); err != nil {
				t.Fatalf("Set: %v", err)
			}

			b.clock.advance(59 * time.Minute)
			got, err := b.cache.Get(ctx, "p1")
			if err != nil || got == nil {
				t.Fatalf("Get before expiry = %v, %v", got, err)
			}
			if got.PatientID != "p1" || got.PatientName != "Rosa" {
				t.Errorf("identity = %s/%s", got.PatientID, got.PatientName)
			}
			if got.BrainRegions != in.BrainRegions || got.MemoryRetentionRate != in.MemoryRetentionRate {
				t.Errorf("content changed: %+v", got)
			}
			if len(got.RecentSessions) != 2 || got.RecentSessions[1].Score != 0.7 {
				t.Errorf("recent sessions = %+v", got.RecentSessions)
			}
			if len(got.MemoryMetrics[patient.ShortTermRecall]) != 1 {
				t.Errorf("memory metrics = %+v", got.MemoryMetrics)
			}
			if !got.ExpiresAt.Equal(got.CachedAt.Add(time.Hour)) {
				t.Errorf("ExpiresAt %v != CachedAt %v + 1h", got.ExpiresAt, got.CachedAt)
			}

			b.clock.advance(time.Minute)
			got, err = b.cache.Get(ctx, "p1")
			if err != nil || got != nil {
				t.Fatalf("Get at expiry = %v, %v; want miss", got, err)
			}
			st, err := b.cache.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if st.TotalEntries != 0 {
				t.Errorf("expired entry not removed on Get: %+v", st)
			}
		})
	}
}

func TestGetMiss(t *testing.T) {
	for _, b := range backends(t) {
		got, err := b.cache.Get(context.Background(), "nobody")
		if err != nil || got != nil {
			t.Errorf("%s: Get(missing) = %v, %v", b.name, got, err)
		}
	}
}

func TestDefaultTTL(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		if err := b.cache.Set(ctx, "p1", sampleEntry("Rosa"), 0); err != nil {
			t.Fatal(err)
		}
		got, _ := b.cache.Get(ctx, "p1")
		if got == nil || got.ExpiresAt.Sub(got.CachedAt) != 2*time.Hour {
			t.Errorf("%s: default ttl not applied: %+v", b.name, got)
		}
	}
}

func TestUpdateSessionData(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ok, err := b.cache.UpdateSessionData(ctx, "ghost", patient.Summary{Score: 0.9})
			if err != nil || ok {
				t.Fatalf("update on uncached = %v, %v; want false", ok, err)
			}

			if err := b.cache.Set(ctx, "p1", sampleEntry("Rosa", 0.4, 0.6), time.Hour); err != nil {
				t.Fatal(err)
			}
			before, _ := b.cache.Get(ctx, "p1")

			b.clock.advance(10 * time.Minute)
			ok, err = b.cache.UpdateSessionData(ctx, "p1", patient.Summary{Score: 0.8, ExerciseType: "story"})
			if err != nil || !ok {
				t.Fatalf("update = %v, %v", ok, err)
			}

			after, _ := b.cache.Get(ctx, "p1")
			if len(after.RecentSessions) != 3 || after.RecentSessions[0].Score != 0.8 {
				t.Errorf("summary not prepended: %+v", after.RecentSessions)
			}
			if math.Abs(after.OverallCognitiveScore-0.6) > 1e-9 {
				t.Errorf("overall = %v, want 0.6", after.OverallCognitiveScore)
			}
			if !after.ExpiresAt.Equal(before.ExpiresAt) || !after.CachedAt.Equal(before.CachedAt) {
				t.Error("update must not touch cached_at or expiry")
			}
			if !after.LastUpdated.After(before.LastUpdated) {
				t.Error("update should refresh last_updated")
			}

			// The entry still expires on its original schedule.
			b.clock.advance(50 * time.Minute)
			if got, _ := b.cache.Get(ctx, "p1"); got != nil {
				t.Error("updated entry outlived its original expiry")
			}
		})
	}
}

func TestUpdateSessionDataCapsRecent(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		scores := make([]float64, MaxRecentSessions)
		for i := range scores {
			scores[i] = 0.5
		}
		if err := b.cache.Set(ctx, "p1", sampleEntry("Rosa", scores...), time.Hour); err != nil {
			t.Fatal(err)
		}
		if _, err := b.cache.UpdateSessionData(ctx, "p1", patient.Summary{Score: 1.0}); err != nil {
			t.Fatal(err)
		}
		got, _ := b.cache.Get(ctx, "p1")
		if len(got.RecentSessions) != MaxRecentSessions {
			t.Errorf("%s: recent = %d, want %d", b.name, len(got.RecentSessions), MaxRecentSessions)
		}
		// Nine 0.5 scores plus the new 1.0.
		if math.Abs(got.OverallCognitiveScore-0.55) > 1e-9 {
			t.Errorf("%s: overall = %v, want 0.55", b.name, got.OverallCognitiveScore)
		}
	}
}

func TestInvalidateClearAndCleanup(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			b.cache.Set(ctx, "short", sampleEntry("A"), time.Hour)
			b.cache.Set(ctx, "long", sampleEntry("B"), 3*time.Hour)
			b.cache.Set(ctx, "gone", sampleEntry("C"), 3*time.Hour)

			if ok, err := b.cache.Invalidate(ctx, "gone"); err != nil || !ok {
				t.Errorf("Invalidate(gone) = %v, %v", ok, err)
			}
			if ok, _ := b.cache.Invalidate(ctx, "gone"); ok {
				t.Error("second Invalidate should report false")
			}

			b.clock.advance(2 * time.Hour)
			st, err := b.cache.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if st.TotalEntries != 2 || st.ActiveEntries != 1 || st.ExpiredEntries != 1 {
				t.Errorf("stats = %+v", st)
			}
			if st.Backend != b.name || st.DefaultTTLHours != 2 {
				t.Errorf("stats header = %+v", st)
			}

			removed, err := b.cache.CleanupExpired(ctx)
			if err != nil || removed != 1 {
				t.Errorf("CleanupExpired = %d, %v; want 1", removed, err)
			}

			n, err := b.cache.ClearAll(ctx)
			if err != nil || n != 1 {
				t.Errorf("ClearAll = %d, %v; want 1", n, err)
			}
			if st, _ := b.cache.Stats(ctx); st.TotalEntries != 0 {
				t.Errorf("after ClearAll: %+v", st)
			}
		})
	}
}

func TestRedisCleanupKeepsRewrittenEntry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	clk := newClock()
	c := newRedis(buildOptions([]Option{WithRedisClient(client), WithClock(clk.now), WithTTL(2 * time.Hour)}))

	c.Set(ctx, "p1", sampleEntry("Rosa"), time.Hour)
	c.Set(ctx, "p2", sampleEntry("Ana"), time.Hour)
	clk.advance(time.Hour)

	_, expired, err := c.sweep(ctx)
	if err != nil || len(expired) != 2 {
		t.Fatalf("sweep = %v, %v", expired, err)
	}

	// p1 is rebuilt between the sweep and the delete.
	if err := c.Set(ctx, "p1", sampleEntry("Rosa", 0.8), time.Hour); err != nil {
		t.Fatal(err)
	}
	for _, key := range expired {
		ok, err := c.deleteIfExpired(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if want := key == c.key("p2"); ok != want {
			t.Errorf("deleteIfExpired(%s) = %v, want %v", key, ok, want)
		}
	}

	e, err := c.Get(ctx, "p1")
	if err != nil || e == nil || len(e.RecentSessions) != 1 {
		t.Errorf("rewritten entry = %+v, %v", e, err)
	}
	if e, _ := c.Get(ctx, "p2"); e != nil {
		t.Error("expired entry survived cleanup")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	c.Set(ctx, "p1", sampleEntry("Rosa", 0.5), time.Hour)

	got, _ := c.Get(ctx, "p1")
	got.RecentSessions[0].Score = 0
	got.MemoryMetrics[patient.ShortTermRecall][0].Score = 0

	again, _ := c.Get(ctx, "p1")
	if again.RecentSessions[0].Score != 0.5 || again.MemoryMetrics[patient.ShortTermRecall][0].Score != 0.7 {
		t.Error("mutating a returned entry changed the cache")
	}
}

func TestMemoryConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	c.Set(ctx, "p1", sampleEntry("Rosa"), time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.UpdateSessionData(ctx, "p1", patient.Summary{Score: 0.5})
			c.Get(ctx, "p1")
		}()
	}
	wg.Wait()

	got, _ := c.Get(ctx, "p1")
	if len(got.RecentSessions) != MaxRecentSessions || got.OverallCognitiveScore != 0.5 {
		t.Errorf("after concurrent updates: %d sessions, overall %v", len(got.RecentSessions), got.OverallCognitiveScore)
	}
}

func TestNewBackends(t *testing.T) {
	if _, err := New(BackendRedis); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("redis without client: err = %v", err)
	}
	if _, err := New("memcached"); !errors.Is(err, ErrInvalidBackend) {
		t.Errorf("unknown backend: err = %v", err)
	}
	c, err := New(BackendMemory)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*Memory); !ok {
		t.Errorf("memory backend type = %T", c)
	}
}

func TestJanitorSweeps(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := NewMemory(WithClock(clk.now))
	c.Set(ctx, "p1", sampleEntry("Rosa"), time.Hour)
	clk.advance(2 * time.Hour)

	j := StartJanitor(c, 5*time.Millisecond)
	defer j.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := c.Stats(ctx); st.TotalEntries == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("janitor did not remove the expired entry")
}

func TestJanitorStopIsIdempotent(t *testing.T) {
	j := StartJanitor(NewMemory(), time.Hour)
	j.Stop()
	j.Stop()
}
