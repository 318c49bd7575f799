package engine

import "sync"

// instanceLocks serializes mutations per instance id. Different instances
// proceed in parallel; two completions on the same instance are ordered, so
// the loser of a duplicate completion observes the winner's write.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *instanceLocks) forInstance(instanceID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, exists := l.locks[instanceID]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[instanceID] = lock
	}

	return lock
}
