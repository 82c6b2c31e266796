package loader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used when neither the loader nor the caller sets one
const DefaultTTL = 30 * time.Second

// NoCache as a TTL de-duplicates concurrent fetches but never stores the result
const NoCache time.Duration = -1

var (
	// ErrEmptyKey is returned when a fetch is attempted with an empty key name
	ErrEmptyKey = errors.New("loader: empty key")
	// ErrTypeMismatch is returned when a cached value does not have the key's type
	ErrTypeMismatch = errors.New("loader: cached value has unexpected type")
	// ErrNotRequested is returned by Value for a key that was not part of the batch
	ErrNotRequested = errors.New("loader: key not in batch")
)

// Loader caches read results by key, shares in-flight fetches between
// callers and runs batches of independent fetches concurrently.
// A Loader is safe for concurrent use.
type Loader struct {
	store   *store
	flights singleflight.Group

	clock      Clock
	ttl        time.Duration
	maxEntries uint64
	batchLimit int
	logger     zerolog.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	shared   atomic.Int64
	failures atomic.Int64
}

type Option func(*Loader)

// WithTTL sets the default freshness window. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(l *Loader) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithClock(c Clock) Option {
	return func(l *Loader) { l.clock = c }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithMaxEntries caps the number of cached entries; the least recently
// used entry is evicted first. Zero means unbounded.
func WithMaxEntries(n uint64) Option {
	return func(l *Loader) { l.maxEntries = n }
}

// WithBatchConcurrency limits how many uncached requests a batch runs at once.
// Zero or less means all of them.
func WithBatchConcurrency(n int) Option {
	return func(l *Loader) { l.batchLimit = n }
}

// New creates an empty loader
func New(opts ...Option) *Loader {
	l := &Loader{
		clock:  systemClock{},
		ttl:    DefaultTTL,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(l)
	}
	l.store = newStore(l.clock, l.maxEntries, l.logger)
	return l
}

// Fetch returns the value for key, calling fn only when there is neither a
// fresh cached value nor a fetch already in flight. The default TTL applies.
func Fetch[T any](ctx context.Context, l *Loader, key Key[T], fn Fetcher[T]) (T, error) {
	return FetchTTL(ctx, l, key, fn, 0)
}

// FetchTTL is Fetch with an explicit TTL. Zero selects the loader default
// and NoCache skips storing the result.
//
// ctx bounds how long this caller waits. The fetch itself is not cancelled
// when ctx is: it runs to completion and its result is still cached.
func FetchTTL[T any](ctx context.Context, l *Loader, key Key[T], fn Fetcher[T], ttl time.Duration) (T, error) {
	v, err := l.load(ctx, key.name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, ttl)
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](key.name, v)
}

func (l *Loader) load(ctx context.Context, key string, fn func(context.Context) (any, error), ttl time.Duration) (any, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	if entry, ok := l.store.Read(key); ok {
		l.hits.Add(1)
		return entry.Data, nil
	}

	if ttl == 0 {
		ttl = l.ttl
	}
	detached := context.WithoutCancel(ctx)

	ch := l.flights.DoChan(key, func() (any, error) {
		// another flight may have stored the key after our first look
		if entry, ok := l.store.Read(key); ok {
			l.hits.Add(1)
			return entry.Data, nil
		}

		l.misses.Add(1)
		start := l.clock.Now()
		v, err := fn(detached)
		if err != nil {
			l.failures.Add(1)
			l.logger.Debug().Err(err).Str("key", key).Msg("fetch failed")
			return nil, err
		}
		if ttl > 0 {
			l.store.Write(key, v, ttl)
		}
		l.logger.Debug().Str("key", key).Dur("took", l.clock.Now().Sub(start)).Msg("fetched")
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			l.shared.Add(1)
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func cast[T any](key string, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T, want %T", ErrTypeMismatch, key, v, zero)
	}
	return t, nil
}

// Has reports whether key currently has a fresh cached value
func (l *Loader) Has(key string) bool {
	_, ok := l.store.Read(key)
	return ok
}

// Invalidate drops the named entries, or every entry when no keys are given.
// Fetches already in flight are unaffected and store their result when done.
func (l *Loader) Invalidate(keys ...string) {
	if len(keys) == 0 {
		l.store.Clear()
		l.logger.Debug().Msg("cache cleared")
		return
	}
	for _, k := range keys {
		l.store.Delete(k)
	}
	l.logger.Debug().Strs("keys", keys).Msg("cache entries invalidated")
}

// Close drops every cached entry. In-flight fetches and preloads are not
// interrupted.
func (l *Loader) Close() {
	l.store.Clear()
}

func (l *Loader) Stats() Stats {
	return Stats{
		Hits:     l.hits.Load(),
		Misses:   l.misses.Load(),
		Shared:   l.shared.Load(),
		Failures: l.failures.Load(),
		Entries:  l.store.Len(),
	}
}
