// Package cache provides the message-id dedup cache: a set of keys with a
// fixed per-entry time-to-live.
package cache

import (
	"sync"
	"time"
)

const pruneEvery = 256 // opportunistic sweep interval, counted in inserts

// Expiring is a TTL-bounded presence set. Contains never reports true for an
// expired key. Safe for concurrent use by the listener and all workers.
type Expiring struct {
	mu       sync.Mutex
	ttl      time.Duration
	deadline map[string]time.Time
	inserts  int
	now      func() time.Time // swappable in tests
}

// NewExpiring creates a cache whose entries expire ttl after insertion.
func NewExpiring(ttl time.Duration) *Expiring {
	return &Expiring{
		ttl:      ttl,
		deadline: make(map[string]time.Time),
		now:      time.Now,
	}
}

// PutIfAbsent inserts key and reports true when the key was not already
// live. The check and insert are one atomic step, which is what makes the
// duplicate filter race-free under concurrent deliveries of the same id.
func (e *Expiring) PutIfAbsent(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if dl, ok := e.deadline[key]; ok && now.Before(dl) {
		return false
	}
	e.deadline[key] = now.Add(e.ttl)
	e.maybePrune(now)
	return true
}

// Put inserts or refreshes key unconditionally.
func (e *Expiring) Put(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.deadline[key] = now.Add(e.ttl)
	e.maybePrune(now)
}

// Contains reports whether key is present and still live.
func (e *Expiring) Contains(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	dl, ok := e.deadline[key]
	if !ok {
		return false
	}
	if !e.now().Before(dl) {
		delete(e.deadline, key)
		return false
	}
	return true
}

// Len returns the number of live entries.
func (e *Expiring) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	n := 0
	for _, dl := range e.deadline {
		if now.Before(dl) {
			n++
		}
	}
	return n
}

// maybePrune drops expired entries every pruneEvery inserts so the map does
// not grow unbounded between lookups. Caller holds the lock.
func (e *Expiring) maybePrune(now time.Time) {
	e.inserts++
	if e.inserts%pruneEvery != 0 {
		return
	}
	for k, dl := range e.deadline {
		if !now.Before(dl) {
			delete(e.deadline, k)
		}
	}
}
