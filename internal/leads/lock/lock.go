// Package lock serializes mutating operations per lead. The coordinator and
// the cadence engine share one Keyed instance so a manual transition and the
// cadence-completion cascade can never interleave on the same lead within a
// process; the optimistic version check in the repository covers writers in
// other processes.
package lock

import (
	"sync"

	"github.com/google/uuid"
)

// Keyed is a mutex set keyed by lead ID.
type Keyed struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyed creates a new keyed mutex set.
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[uuid.UUID]*entry)}
}

// Lock acquires the mutex for the given lead and returns its unlock func.
// Entries are reference-counted and removed when the last holder unlocks.
func (k *Keyed) Lock(leadID uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[leadID]
	if !ok {
		e = &entry{}
		k.locks[leadID] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, leadID)
		}
		k.mu.Unlock()
	}
}
