package tenants

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultCacheTTL bounds how long a branding or credential change can go unseen.
const DefaultCacheTTL = 30 * time.Second

// Cache holds decoded tenants by slug with a time-to-live.
type Cache struct {
	c   *ristretto.Cache[string, Tenant]
	ttl time.Duration
}

// NewCache builds a cache holding up to maxTenants entries for ttl each.
func NewCache(maxTenants int64, ttl time.Duration) (*Cache, error) {
	if maxTenants <= 0 {
		maxTenants = 10_000
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Tenant]{
		NumCounters:        maxTenants * 10,
		MaxCost:            maxTenants,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tenant cache: %w", err)
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Get returns the cached tenant for slug.
func (c *Cache) Get(slug string) (Tenant, bool) {
	return c.c.Get(slug)
}

// Set caches t under slug. The write is visible to Get once Set returns.
func (c *Cache) Set(slug string, t Tenant) {
	c.c.SetWithTTL(slug, t, 1, c.ttl)
	c.c.Wait()
}

// Delete evicts slug.
func (c *Cache) Delete(slug string) {
	c.c.Del(slug)
}

// TTL is the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Close releases cache goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
