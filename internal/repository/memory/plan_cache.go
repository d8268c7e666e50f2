package memory

import (
	"time"

	"hq-billing-be/internal/entity"

	"github.com/patrickmn/go-cache"
)

const availablePlansKey = "plans:available"

// PlanCache holds the public plan catalogue between writes.
type PlanCache struct {
	cache *cache.Cache
}

func NewPlanCache(ttl time.Duration) *PlanCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PlanCache{
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *PlanCache) SetAvailable(plans []*entity.Plan) {
	c.cache.Set(availablePlansKey, plans, cache.DefaultExpiration)
}

func (c *PlanCache) GetAvailable() ([]*entity.Plan, bool) {
	if x, found := c.cache.Get(availablePlansKey); found {
		return x.([]*entity.Plan), true
	}
	return nil, false
}

func (c *PlanCache) Invalidate() {
	c.cache.Flush()
}
