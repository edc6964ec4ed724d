package session

import (
	"context"
	"sync"
)

// Locker hands out one exclusive lock per identity. Entries exist only while
// someone holds or waits for them, so memory stays proportional to in-flight
// identities. Waiters are not queued fairly; only mutual exclusion is
// guaranteed.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	held  int
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Acquire blocks until the identity's lock is held or ctx is done. The
// returned func releases the lock and is safe to call more than once.
func (l *Locker) Acquire(ctx context.Context, identity string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[identity]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[identity] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(identity, kl, false)
		return nil, ctx.Err()
	}

	l.mu.Lock()
	l.held++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.release(identity, kl, true) })
	}, nil
}

func (l *Locker) release(identity string, kl *keyLock, owned bool) {
	if owned {
		<-kl.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if owned {
		l.held--
	}
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, identity)
	}
}

// Held reports how many identities are currently locked.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Tracked reports how many identities have a holder or a waiter.
func (l *Locker) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
