// Package keylock provides mutual exclusion scoped to string keys.
package keylock

import (
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out one mutex per key. Entries are dropped once no goroutine holds or waits on them.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Locker
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

func (l *Locker) acquire(key string) *entry {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return e
}

func (l *Locker) release(key string, e *entry) {
	e.mu.Unlock()

	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// Lock blocks until every key is held and returns the function that releases them.
// Keys are deduplicated and taken in sorted order, so two callers locking
// overlapping sets never deadlock. Empty keys are ignored.
func (l *Locker) Lock(keys ...string) (unlock func()) {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	held := make([]*entry, len(uniq))
	for i, k := range uniq {
		held[i] = l.acquire(k)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(uniq) - 1; i >= 0; i-- {
				l.release(uniq[i], held[i])
			}
		})
	}
}

// Len reports how many keys currently have holders or waiters
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
