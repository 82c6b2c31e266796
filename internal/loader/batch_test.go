package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sleepy[T any](d time.Duration, v T, err error) Fetcher[T] {
	return func(ctx context.Context) (T, error) {
		time.Sleep(d)
		return v, err
	}
}

func TestBatchIsolatesFailuresAndRunsConcurrently(t *testing.T) {
	l := New()
	ctx := context.Background()

	files := NewKey[[]string]("files")
	models := NewKey[[]string]("models")
	datasets := NewKey[int]("datasets")
	boom := errors.New("500 from datasets")

	start := time.Now()
	results := l.Batch(ctx, time.Minute,
		Req(files, sleepy(100*time.Millisecond, []string{"a.pdf"}, nil)),
		Req(models, sleepy(100*time.Millisecond, []string{"gpt-4o"}, nil)),
		Req(datasets, sleepy(100*time.Millisecond, 0, boom)),
	)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 250*time.Millisecond, "batch should take about as long as its slowest request")
	require.Len(t, results, 3)

	gotFiles, err := Value(results, files)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, gotFiles)

	gotModels, err := Value(results, models)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o"}, gotModels)

	_, err = Value(results, datasets)
	assert.ErrorIs(t, err, boom)
	assert.False(t, results["datasets"].OK())
	assert.Equal(t, []string{"datasets"}, results.Failed())

	assert.True(t, l.Has("files"))
	assert.True(t, l.Has("models"))
	assert.False(t, l.Has("datasets"))
}

func TestBatchServesCachedEntriesWithoutFetching(t *testing.T) {
	l := New()
	ctx := context.Background()
	files := NewKey[string]("files")
	models := NewKey[string]("models")

	_, err := Fetch(ctx, l, files, func(ctx context.Context) (string, error) { return "cached", nil })
	require.NoError(t, err)

	var calls atomic.Int32
	results := l.Batch(ctx, 0,
		Req(files, countingFetcher(&calls, "fresh")),
		Req(models, countingFetcher(&calls, "fresh")),
	)

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, results["files"].Cached)
	assert.Equal(t, "cached", results["files"].Value)
	assert.False(t, results["models"].Cached)
	assert.Equal(t, "fresh", results["models"].Value)
}

func TestBatchAppliesTTLToNewEntries(t *testing.T) {
	clock := newManualClock()
	l := New(WithClock(clock))
	key := NewKey[string]("chats")

	l.Batch(context.Background(), 5*time.Second, Req(key, func(ctx context.Context) (string, error) {
		return "chat", nil
	}))
	require.True(t, l.Has("chats"))

	clock.Advance(5 * time.Second)
	assert.False(t, l.Has("chats"))
}

func TestBatchCollapsesDuplicateKeys(t *testing.T) {
	l := New()
	key := NewKey[string]("api_keys")

	var calls atomic.Int32
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "keys", nil
	}

	results := l.Batch(context.Background(), 0, Req(key, fn), Req(key, fn))
	assert.Len(t, results, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBatchConcurrencyLimit(t *testing.T) {
	l := New(WithBatchConcurrency(1))

	var running, peak atomic.Int32
	fn := func(ctx context.Context) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return int(n), nil
	}

	results := l.Batch(context.Background(), 0,
		Req(NewKey[int]("a"), fn),
		Req(NewKey[int]("b"), fn),
		Req(NewKey[int]("c"), fn),
	)
	assert.Len(t, results, 3)
	assert.Equal(t, int32(1), peak.Load())
}

func TestValueForKeyOutsideBatch(t *testing.T) {
	_, err := Value(Results{}, NewKey[string]("mcp"))
	assert.ErrorIs(t, err, ErrNotRequested)
}

func TestPreloadSwallowsFailures(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())

	l.Preload(ctx,
		Req(NewKey[string]("files"), sleepy(20*time.Millisecond, "files", nil)),
		Req(NewKey[string]("models"), sleepy(20*time.Millisecond, "", errors.New("timeout"))),
	)
	// the caller going away does not stop the preload
	cancel()

	require.Eventually(t, func() bool { return l.Has("files") }, time.Second, 5*time.Millisecond)
	assert.False(t, l.Has("models"))
	require.Eventually(t, func() bool { return l.Stats().Failures == 1 }, time.Second, 5*time.Millisecond)
}

func TestPreloadReturnsImmediately(t *testing.T) {
	l := New()
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	l.Preload(context.Background(), Req(NewKey[int]("usage"), func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	}))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
