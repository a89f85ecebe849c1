package utils

import (
	"context"
	"slices"
	"sync"
)

// KeyedMutex serializes work per int64 key (user id). Entries are reference counted
// and dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*keyLock)}
}

// Lock acquires every distinct key in ascending order and returns the release func.
// If ctx ends while waiting, keys already taken are released and ctx.Err() is returned.
func (k *KeyedMutex) Lock(ctx context.Context, keys ...int64) (func(), error) {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]int64, 0, len(ordered))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.release(held[i], true)
		}
	}

	for _, key := range ordered {
		l := k.acquire(key)
		select {
		case l.sem <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			k.release(key, false)
			unlock()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

func (k *KeyedMutex) acquire(key int64) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

// release drops one reference; owned reports whether the caller holds the key.
func (k *KeyedMutex) release(key int64, owned bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l := k.locks[key]
	if owned {
		<-l.sem
	}
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len reports how many keys are currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
