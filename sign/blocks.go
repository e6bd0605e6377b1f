package sign

import (
	"sync"

	"github.com/spilman/hub/hubcore"
)

// CachedBlockReader holds the latest block pushed by whatever chain
// client feeds the hub.  The engine only ever reads the tip; how it gets
// here is the chain client's business.
type CachedBlockReader struct {
	mtx sync.RWMutex
	tip hubcore.Block
}

func NewCachedBlockReader() *CachedBlockReader {
	return &CachedBlockReader{}
}

// SetTip records a newer tip.  Stale pushes (older height) are dropped.
func (r *CachedBlockReader) SetTip(b hubcore.Block) {
	r.mtx.Lock()
	if b.Height >= r.tip.Height {
		r.tip = b
	}
	r.mtx.Unlock()
}

// LatestBlock returns the most recent tip seen.
func (r *CachedBlockReader) LatestBlock() (hubcore.Block, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.tip, nil
}
