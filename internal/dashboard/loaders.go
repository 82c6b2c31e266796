package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/briangreenhill/chatdeck/internal/loader"
)

// Loaders keeps one loader per signed-in user. A user's loader is created
// on first use and closed after idle time without access, on Forget, or
// when the registry stops.
type Loaders struct {
	mu        sync.Mutex
	users     *ttlcache.Cache[string, *loader.Loader]
	newLoader func() *loader.Loader

	startOnce sync.Once
	started   bool
}

// NewLoaders creates a registry whose entries expire after idle without access
func NewLoaders(idle time.Duration, newLoader func() *loader.Loader) *Loaders {
	users := ttlcache.New[string, *loader.Loader](
		ttlcache.WithTTL[string, *loader.Loader](idle),
	)
	users.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *loader.Loader]) {
		item.Value().Close()
	})

	return &Loaders{users: users, newLoader: newLoader}
}

// Start runs the idle sweeper in the background
func (ls *Loaders) Start() {
	ls.startOnce.Do(func() {
		ls.mu.Lock()
		ls.started = true
		ls.mu.Unlock()
		go ls.users.Start()
	})
}

// Stop halts the sweeper and closes every loader
func (ls *Loaders) Stop() {
	ls.mu.Lock()
	started := ls.started
	ls.started = false
	ls.mu.Unlock()

	if started {
		ls.users.Stop()
	}
	ls.users.DeleteAll()
}

// For returns the user's loader, creating it if needed
func (ls *Loaders) For(userID string) *loader.Loader {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if item := ls.users.Get(userID); item != nil {
		return item.Value()
	}
	l := ls.newLoader()
	ls.users.Set(userID, l, ttlcache.DefaultTTL)
	return l
}

// Lookup returns the user's loader without creating one
func (ls *Loaders) Lookup(userID string) (*loader.Loader, bool) {
	item := ls.users.Get(userID)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Forget closes and drops the user's loader
func (ls *Loaders) Forget(userID string) {
	ls.users.Delete(userID)
}

func (ls *Loaders) Len() int {
	return ls.users.Len()
}
