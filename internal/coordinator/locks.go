package coordinator

import (
	"slices"
	"sync"
)

func donationKey(id string) string { return "donation:" + id }
func claimKey(id string) string    { return "claim:" + id }
func requestKey(id string) string  { return "request:" + id }

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lockTable hands out one mutex per entity key. Entries are dropped once no
// goroutine holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// Lock acquires every key in sorted order and returns a func releasing them.
// Sorting gives all callers the same acquisition order.
func (t *lockTable) Lock(keys ...string) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	entries := make([]*lockEntry, len(keys))
	t.mu.Lock()
	for i, k := range keys {
		e := t.locks[k]
		if e == nil {
			e = &lockEntry{}
			t.locks[k] = e
		}
		e.refs++
		entries[i] = e
	}
	t.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		t.mu.Lock()
		for i, k := range keys {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(t.locks, k)
			}
		}
		t.mu.Unlock()
	}
}

// size returns the number of live entries.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

// covers reports whether every key in want is in have.
func covers(have, want []string) bool {
	for _, k := range want {
		if !slices.Contains(have, k) {
			return false
		}
	}
	return true
}
