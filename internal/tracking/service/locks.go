package service

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// clientLocks serializes work per client. Entries are reference counted and
// dropped once nobody holds or waits on them.
type clientLocks struct {
	mu    sync.Mutex
	locks map[snowflake.ID]*clientLock
}

type clientLock struct {
	mu   sync.Mutex
	refs int
}

func newClientLocks() *clientLocks {
	return &clientLocks{locks: make(map[snowflake.ID]*clientLock)}
}

func (l *clientLocks) lock(id snowflake.ID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &clientLock{}
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
