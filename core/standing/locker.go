package standing

import (
	"context"
	"sync"
)

// KeyLocker serializes work on the same key.
type KeyLocker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process KeyLocker.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

var _ KeyLocker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(key, lk, true) }) }, nil
}

func (l *LocalLocker) release(key string, lk *keyLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
