package ledger

import "sync"

// accountLocks hands out one mutex per account id so that read-modify-write
// of a balance is serialized without blocking unrelated accounts.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{
		locks: make(map[string]*accountLock),
	}
}

// lock blocks until the caller owns accountID and returns the matching unlock.
// Entries are dropped once no goroutine holds or waits on them, so the table
// only grows with in-flight accounts.
func (l *accountLocks) lock(accountID string) func() {
	l.mu.Lock()
	al, ok := l.locks[accountID]
	if !ok {
		al = &accountLock{}
		l.locks[accountID] = al
	}
	al.refs++
	l.mu.Unlock()

	al.Lock()

	return func() {
		al.Unlock()

		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.locks, accountID)
		}
		l.mu.Unlock()
	}
}

// size returns the number of live lock entries.
func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
