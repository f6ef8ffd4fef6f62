package organizer

import (
	"sync"
)

// ItemLocker provides per-item mutual exclusion. The engine and the
// state machine assume a single in-flight mutation per media item;
// background workers must hold the item's lock around any mutation.
type ItemLocker struct {
	mu    sync.Mutex
	locks map[string]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

// NewItemLocker creates a new keyed locker.
func NewItemLocker() *ItemLocker {
	return &ItemLocker{
		locks: make(map[string]*itemLock),
	}
}

// Lock acquires the lock for an item ID and returns the matching
// unlock function.
func (l *ItemLocker) Lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &itemLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
