package hub

import "sync"

// keyedMutex hands out one mutex per user, so channel mutation
// serializes per user without a global lock.  Locks are never reclaimed;
// a user costs one mutex forever, which is fine at hub scale.
type keyedMutex struct {
	mtx   sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) init() {
	k.locks = make(map[string]*sync.Mutex)
}

func (k *keyedMutex) lock(key string) {
	k.mtx.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = new(sync.Mutex)
		k.locks[key] = m
	}
	k.mtx.Unlock()
	m.Lock()
}

func (k *keyedMutex) unlock(key string) {
	k.mtx.Lock()
	m := k.locks[key]
	k.mtx.Unlock()
	m.Unlock()
}
