package rbac

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
)

const roleCacheTTL = 10 * time.Minute

// RoleCache memoizes role ids by (name, project). Role rows are never renamed
// or re-scoped, so entries only need to expire to bound memory.
type RoleCache struct {
	c *ristretto.Cache[string, uuid.UUID]
}

// NewRoleCache creates a cache holding up to maxItems role ids.
func NewRoleCache(maxItems int64) (*RoleCache, error) {
	if maxItems <= 0 {
		maxItems = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, uuid.UUID]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RoleCache{c: c}, nil
}

func roleCacheKey(name string, projectID *uuid.UUID) string {
	if projectID == nil {
		return "global/" + name
	}
	return projectID.String() + "/" + name
}

func (c *RoleCache) get(name string, projectID *uuid.UUID) (uuid.UUID, bool) {
	if c == nil {
		return uuid.Nil, false
	}
	return c.c.Get(roleCacheKey(name, projectID))
}

func (c *RoleCache) set(name string, projectID *uuid.UUID, id uuid.UUID) {
	if c == nil {
		return
	}
	c.c.SetWithTTL(roleCacheKey(name, projectID), id, 1, roleCacheTTL)
	c.c.Wait()
}

// Close releases the cache's background goroutines.
func (c *RoleCache) Close() {
	if c != nil {
		c.c.Close()
	}
}
