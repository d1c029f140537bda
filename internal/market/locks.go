package market

import "sync"

// eventLocks serializes mutating operations per event. Orders, the
// stop-order sweep, and settlement all take the same lock, so two triggers
// can never interleave mutations on one event. Locks are created lazily and
// never reclaimed; the event population is small and long-lived.
type eventLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newEventLocks() *eventLocks {
	return &eventLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *eventLocks) get(eventID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[eventID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[eventID] = m
	}
	return m
}
