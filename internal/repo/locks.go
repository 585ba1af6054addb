package repo

import "sync"

// keyedMutex serializes operations per key. The store locks on the
// conversation id around every append/markRead so the counter and snapshot
// updates stay atomic with the write that justifies them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*entryLock)}
}

func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entryLock{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.Lock()
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.Unlock()
}
