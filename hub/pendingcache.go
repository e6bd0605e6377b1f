package hub

import (
	"sync"
	"time"

	"github.com/spilman/hub/chanstate"
)

// PendingUpdate is one staged, not-yet-countersigned hub proposal.
type PendingUpdate struct {
	Reason    chanstate.UpdateReason
	Args      chanstate.UpdateArgs
	Timestamp time.Time
}

// PendingCache holds at most one staged proposal per user.  It is purely
// advisory: losing an entry costs the user a retry, never money.  The
// engine tolerates stale reads via the exact txCount check at apply time.
type PendingCache struct {
	mtx   sync.Mutex
	ttl   time.Duration
	slots map[string]*PendingUpdate

	now func() time.Time
}

// NewPendingCache makes an empty cache with the given entry TTL.
func NewPendingCache(ttl time.Duration) *PendingCache {
	return &PendingCache{
		ttl:   ttl,
		slots: make(map[string]*PendingUpdate),
		now:   time.Now,
	}
}

// Get returns the staged proposal, or nil if nothing is staged or the
// entry has outlived its TTL.
func (c *PendingCache) Get(user string) *PendingUpdate {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	pu := c.slots[user]
	if pu == nil {
		return nil
	}
	if c.now().Sub(pu.Timestamp) > c.ttl {
		delete(c.slots, user)
		return nil
	}
	return pu
}

// Set stages a proposal, overwriting any prior entry for the user.
func (c *PendingCache) Set(user string, reason chanstate.UpdateReason, args chanstate.UpdateArgs) {
	c.mtx.Lock()
	c.slots[user] = &PendingUpdate{
		Reason:    reason,
		Args:      args,
		Timestamp: c.now(),
	}
	c.mtx.Unlock()
}

// Delete drops the staged proposal if any.
func (c *PendingCache) Delete(user string) {
	c.mtx.Lock()
	delete(c.slots, user)
	c.mtx.Unlock()
}
