package ingest

import (
	"sync"

	"github.com/mahaj/duochat/pkg/room"
)

// keyedMutex hands out one mutex per channel. Entries are dropped once no
// caller holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[room.ChannelID]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[room.ChannelID]*refLock)}
}

// Lock blocks until the channel's mutex is held and returns its release.
func (k *keyedMutex) Lock(key room.ChannelID) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
