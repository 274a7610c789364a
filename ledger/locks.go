package ledger

import (
	"sort"
	"sync"

	"github.com/axiomesh/tally/types"
)

type accountLock struct {
	mu   sync.RWMutex
	refs int
}

// accountLocks hands out one RWMutex per address: exclusive for writable
// accounts, shared for read-only ones. Entries are dropped when the last
// holder releases them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[types.Address]*accountLock
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[types.Address]*accountLock)}
}

// acquire blocks until every meta is locked. Locks are taken in address order
// so two transactions can never wait on each other.
func (l *accountLocks) acquire(metas []AccountMeta) (release func()) {
	sorted := append([]AccountMeta(nil), metas...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Address.Less(sorted[j].Address)
	})

	held := make([]*accountLock, len(sorted))
	l.mu.Lock()
	for i, m := range sorted {
		lk, ok := l.locks[m.Address]
		if !ok {
			lk = &accountLock{}
			l.locks[m.Address] = lk
		}
		lk.refs++
		held[i] = lk
	}
	l.mu.Unlock()

	for i, m := range sorted {
		if m.IsWritable {
			held[i].mu.Lock()
		} else {
			held[i].mu.RLock()
		}
	}

	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].IsWritable {
				held[i].mu.Unlock()
			} else {
				held[i].mu.RUnlock()
			}
		}

		l.mu.Lock()
		for i, m := range sorted {
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, m.Address)
			}
		}
		l.mu.Unlock()
	}
}
