package dashcache

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the janitor sweeps expired entries.
const DefaultCleanupInterval = time.Hour

// Janitor periodically removes expired entries. Get enforces TTL on its own,
// so a stopped janitor only lets expired entries linger in memory.
type Janitor struct {
	cache    Cache
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	once     sync.Once
}

// StartJanitor runs CleanupExpired every interval until Stop is called.
func StartJanitor(c Cache, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	j := &Janitor{
		cache:    c,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.sweep()
			case <-j.stopCh:
				return
			}
		}
	}()
	return j
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	removed, err := j.cache.CleanupExpired(ctx)
	if err != nil {
		log.Printf("cache cleanup error: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("cache cleanup: removed %d expired entries", removed)
	}
}

// Stop ends the janitor and waits for it to exit. It is safe to call twice.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stopCh) })
	<-j.done
}
