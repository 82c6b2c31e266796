package loader

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

// store holds loader entries. Freshness is judged against the loader's
// clock on every read and stale entries are dropped on the spot; the
// ttlcache janitor is never started, so nothing sweeps in the background.
type store struct {
	mu    sync.Mutex
	items *ttlcache.Cache[string, *Entry]
	clock Clock
}

func newStore(clock Clock, maxEntries uint64, logger zerolog.Logger) *store {
	opts := []ttlcache.Option[string, *Entry]{
		ttlcache.WithDisableTouchOnHit[string, *Entry](),
	}
	if maxEntries > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *Entry](maxEntries))
	}

	items := ttlcache.New[string, *Entry](opts...)
	items.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Entry]) {
		if reason == ttlcache.EvictionReasonCapacityReached {
			logger.Debug().Str("key", item.Key()).Msg("cache entry evicted at capacity")
		}
	})

	return &store{items: items, clock: clock}
}

// Read returns the entry for key if it is still fresh
func (s *store) Read(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.items.Get(key)
	if item == nil {
		// ttlcache hides items past their wall-clock expiry without removing them
		s.items.Delete(key)
		return nil, false
	}

	entry := item.Value()
	if !entry.validAt(s.clock.Now()) {
		s.items.Delete(key)
		return nil, false
	}

	return entry, true
}

// Write stores data under key with the given ttl, stamped with the current time
func (s *store) Write(key string, data any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{
		Key:      key,
		Data:     data,
		StoredAt: s.clock.Now(),
		TTL:      ttl,
	}
	s.items.Set(key, entry, ttl)
}

func (s *store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Delete(key)
}

func (s *store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.DeleteAll()
}

func (s *store) Len() int {
	return s.items.Len()
}
