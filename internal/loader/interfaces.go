// Package loader provides an in-memory request cache for dashboard reads.
// It stores fetched values for a TTL, collapses concurrent fetches of the
// same key into one call, and loads several independent keys together.
package loader

import (
	"context"
	"time"
)

// Entry represents a cached value with the metadata needed to judge freshness
type Entry struct {
	Key      string
	Data     any
	StoredAt time.Time
	TTL      time.Duration
}

// validAt reports whether the entry is still fresh at now
func (e *Entry) validAt(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// Clock supplies the current time. Tests swap in a manual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Fetcher produces the value for a key, typically by calling the platform API
type Fetcher[T any] func(ctx context.Context) (T, error)

// Stats is a point-in-time snapshot of loader counters
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Shared   int64 `json:"shared"`
	Failures int64 `json:"failures"`
	Entries  int   `json:"entries"`
}
