package rbac

import "sync"

// profileCache memoizes profile lookups per resolver instance. The old
// implementation kept module-level maps; owning the cache here keeps
// invalidation explicit and safe under concurrent requests.
type profileCache struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func newProfileCache() *profileCache {
	return &profileCache{profiles: make(map[string]*Profile)}
}

func (c *profileCache) get(userID string) (*Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[userID]
	return p, ok
}

func (c *profileCache) put(userID string, p *Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[userID] = p
}

func (c *profileCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, userID)
}

func (c *profileCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = make(map[string]*Profile)
}
