// Package keylock provides mutual exclusion scoped to string keys.
//
// Entries are reference counted and removed when the last holder or waiter
// leaves, so memory stays proportional to keys currently in use.
package keylock

import (
	"context"
	"slices"
	"sync"
)

type entry struct {
	refs  int
	guard chan struct{}
}

// Locker hands out exclusive access per key. The zero value is not usable;
// call New.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock acquires every key, blocking until all are held or ctx is done.
// Keys are sorted and deduplicated so that two callers locking overlapping
// sets cannot deadlock. The returned function releases all keys.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]*entry, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].guard
		}
		l.mu.Lock()
		for i, key := range keys[:len(held)] {
			l.unref(key, held[i])
		}
		l.mu.Unlock()
	}

	for _, key := range keys {
		e := l.ref(key)
		select {
		case e.guard <- struct{}{}:
			held = append(held, e)
		case <-ctx.Done():
			l.mu.Lock()
			l.unref(key, e)
			l.mu.Unlock()
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Len reports the number of keys currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[key]
	if e == nil {
		e = &entry{guard: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

// unref must be called with l.mu held.
func (l *Locker) unref(key string, e *entry) {
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
