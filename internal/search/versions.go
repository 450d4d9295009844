package search

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// versionCache remembers the newest version known to be in the index per
// post. It is advisory: an evicted entry only means the index decides.
type versionCache struct {
	mu    sync.Mutex
	cache *lru.Cache[uuid.UUID, time.Time]
}

// newVersionCache returns nil when size is not positive; a nil cache never
// reports anything stale.
func newVersionCache(size int) (*versionCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[uuid.UUID, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &versionCache{cache: c}, nil
}

// stale reports whether version is not newer than the cached one.
func (v *versionCache) stale(id uuid.UUID, version time.Time) bool {
	if v == nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.cache.Get(id)
	return ok && !version.After(cur)
}

// observe raises the cached version for id to version.
func (v *versionCache) observe(id uuid.UUID, version time.Time) {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if cur, ok := v.cache.Get(id); ok && !version.After(cur) {
		return
	}
	v.cache.Add(id, version)
}
