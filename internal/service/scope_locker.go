package service

import (
	"context"
	"fmt"
	"sync"
)

// ScopeLocker serialises work on one department/semester scope.
type ScopeLocker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// ScopeKey renders the lock key of a department/semester pair.
func ScopeKey(departmentID int64, semester int) string {
	return fmt.Sprintf("dept:%d:sem:%d", departmentID, semester)
}

type scopeEntry struct {
	sem  chan struct{}
	refs int
}

// LocalScopeLocker is an in-process per-key mutex. Entries are dropped once no goroutine holds or waits on them.
type LocalScopeLocker struct {
	mu      sync.Mutex
	entries map[string]*scopeEntry
}

// NewLocalScopeLocker constructs an empty locker.
func NewLocalScopeLocker() *LocalScopeLocker {
	return &LocalScopeLocker{entries: make(map[string]*scopeEntry)}
}

// Acquire blocks until key is free or ctx is done.
func (l *LocalScopeLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &scopeEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.unref(key, entry)
		})
	}, nil
}

func (l *LocalScopeLocker) unref(key string, entry *scopeEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *LocalScopeLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// chainedLocker acquires every locker in order and releases them in reverse.
type chainedLocker []ScopeLocker

// ChainScopeLockers combines lockers, skipping nil entries.
func ChainScopeLockers(lockers ...ScopeLocker) ScopeLocker {
	chain := make(chainedLocker, 0, len(lockers))
	for _, locker := range lockers {
		if locker != nil {
			chain = append(chain, locker)
		}
	}
	return chain
}

func (c chainedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, locker := range c {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
