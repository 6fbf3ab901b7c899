package service

import (
	"sync"

	"github.com/google/uuid"
)

// contractLocks serializes mutations of the same contract inside this process.
// Cross-process writers are serialized by the row lock taken in the transaction.
type contractLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*contractLock
}

type contractLock struct {
	mu   sync.Mutex
	refs int
}

func newContractLocks() *contractLocks {
	return &contractLocks{locks: make(map[uuid.UUID]*contractLock)}
}

// lock blocks until the caller owns id; the returned func releases it
func (l *contractLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	cl, ok := l.locks[id]
	if !ok {
		cl = &contractLock{}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()

		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
