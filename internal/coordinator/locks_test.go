package coordinator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockTableSerializesSharedKeys(t *testing.T) {
	locks := newLockTable()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []string{donationKey("d1"), claimKey("c" + string(rune('a'+i)))}
			if i%2 == 0 {
				keys[0], keys[1] = keys[1], keys[0]
			}
			unlock := locks.Lock(keys...)
			defer unlock()

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, locks.size())
}

func TestLockTableDisjointKeysRunTogether(t *testing.T) {
	locks := newLockTable()
	unlockA := locks.Lock(donationKey("a"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock(donationKey("b"), donationKey("b"))
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	assert.Equal(t, 1, locks.size())
}

func TestCovers(t *testing.T) {
	assert.True(t, covers([]string{"a", "b"}, []string{"b"}))
	assert.False(t, covers([]string{"a"}, []string{"a", "c"}))
}
