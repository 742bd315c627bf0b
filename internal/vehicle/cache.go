package vehicle

import (
	"context"
	"time"

	"github.com/bluele/gcache"
)

// Cached serves repeated reads of the same vehicle from memory for ttl, so
// several consumers polling one vehicle cost one upstream request per ttl.
type Cached struct {
	src   Source
	cache gcache.Cache
}

func NewCached(src Source, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 64
	}
	return &Cached{
		src:   src,
		cache: gcache.New(size).LRU().Expiration(ttl).Build(),
	}
}

func (c *Cached) Fetch(ctx context.Context, id string) (State, error) {
	if v, err := c.cache.Get(id); err == nil {
		return v.(State), nil
	}
	st, err := c.src.Fetch(ctx, id)
	if err != nil {
		return State{}, err
	}
	_ = c.cache.Set(id, st)
	return st, nil
}

// Forget drops any cached state for id.
func (c *Cached) Forget(id string) { c.cache.Remove(id) }
