package ledger

import "sync"

// recordLocks hands out one mutex per record id. Entries are never removed;
// records are never deleted either, so the map is bounded by the record count.
type recordLocks struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func newRecordLocks() *recordLocks {
	return &recordLocks{locks: make(map[uint64]*sync.Mutex)}
}

func (l *recordLocks) lock(id uint64) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
