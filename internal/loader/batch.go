package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Request pairs a key with the fetcher that produces its value.
// Build one with Req.
type Request interface {
	Key() string
	fetch(ctx context.Context) (any, error)
}

type request[T any] struct {
	key Key[T]
	fn  Fetcher[T]
}

// Req describes one entry of a batch
func Req[T any](key Key[T], fn Fetcher[T]) Request {
	return request[T]{key: key, fn: fn}
}

func (r request[T]) Key() string { return r.key.name }

func (r request[T]) fetch(ctx context.Context) (any, error) {
	return r.fn(ctx)
}

// Result is the outcome of one batch request: either Value or Err is set
type Result struct {
	Value  any
	Err    error
	Cached bool
}

func (r Result) OK() bool { return r.Err == nil }

// Results maps each requested key to its outcome
type Results map[string]Result

// Failed returns the keys whose fetch failed
func (rs Results) Failed() []string {
	var keys []string
	for k, r := range rs {
		if r.Err != nil {
			keys = append(keys, k)
		}
	}
	return keys
}

// Value extracts a typed value from a batch result
func Value[T any](results Results, key Key[T]) (T, error) {
	var zero T
	res, ok := results[key.name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNotRequested, key.name)
	}
	if res.Err != nil {
		return zero, res.Err
	}
	return cast[T](key.name, res.Value)
}

// Batch resolves every request, serving fresh entries from the cache and
// fetching the rest concurrently. A failed request never affects its
// siblings; its error is logged and reported in its Result. Batch returns
// once every fetch has settled. ttl applies to newly fetched entries.
func (l *Loader) Batch(ctx context.Context, ttl time.Duration, reqs ...Request) Results {
	results := make(Results, len(reqs))
	seen := make(map[string]bool, len(reqs))

	var pending []Request
	for _, r := range reqs {
		key := r.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		if key != "" {
			if entry, ok := l.store.Read(key); ok {
				l.hits.Add(1)
				results[key] = Result{Value: entry.Data, Cached: true}
				continue
			}
		}
		pending = append(pending, r)
	}

	if len(pending) == 0 {
		return results
	}

	var mu sync.Mutex
	var g errgroup.Group
	if l.batchLimit > 0 {
		g.SetLimit(l.batchLimit)
	}
	for _, r := range pending {
		r := r
		g.Go(func() error {
			v, err := l.load(ctx, r.Key(), r.fetch, ttl)
			if err != nil {
				l.logger.Warn().Err(err).Str("key", r.Key()).Msg("batch request failed")
			}

			mu.Lock()
			results[r.Key()] = Result{Value: v, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Preload warms the cache in the background with the default TTL and
// returns immediately. Failures are logged and otherwise dropped.
func (l *Loader) Preload(ctx context.Context, reqs ...Request) {
	if len(reqs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	go func() {
		results := l.Batch(ctx, 0, reqs...)
		failed := results.Failed()
		if len(failed) > 0 {
			l.logger.Warn().Strs("keys", failed).Msg("preload finished with failures")
			return
		}
		l.logger.Debug().Int("requests", len(reqs)).Msg("preload finished")
	}()
}
