package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedRegistrar wraps a Store and remembers successful registrations for
// ttl, so repeated turns of one session register once.
type CachedRegistrar struct {
	Store
	seen *gocache.Cache
}

// NewCachedRegistrar wraps store. ttl <= 0 defaults to one hour.
func NewCachedRegistrar(store Store, ttl time.Duration) *CachedRegistrar {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedRegistrar{
		Store: store,
		seen:  gocache.New(ttl, 2*ttl),
	}
}

func (r *CachedRegistrar) EnsureSession(ctx context.Context, project, sessionID string) error {
	key := SessionKey(project, sessionID)
	if _, ok := r.seen.Get(key); ok {
		return nil
	}
	if err := r.Store.EnsureSession(ctx, project, sessionID); err != nil {
		return err
	}
	r.seen.SetDefault(key, struct{}{})
	return nil
}

// Forget drops a cached registration.
func (r *CachedRegistrar) Forget(project, sessionID string) {
	r.seen.Delete(SessionKey(project, sessionID))
}
