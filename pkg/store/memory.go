package store

import (
	"context"
	"path"
	"sync"
	"time"
)

type memoryList struct {
	values    [][]byte
	expiresAt time.Time // zero means no expiry
}

// MemoryBackend is an in-process reference implementation of Backend for
// tests and embedded use. Unlike Redis it does not reap expired keys on
// its own: an elapsed key reads as empty but stays visible to Scan and
// TTL until deleted, which is what CleanupExpiredEvents exists for.
type MemoryBackend struct {
	mu    sync.RWMutex
	lists map[string]*memoryList
	clock func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		lists: make(map[string]*memoryList),
		clock: time.Now,
	}
}

// WithClock overrides the clock for testing.
func (b *MemoryBackend) WithClock(clock func() time.Time) *MemoryBackend {
	b.clock = clock
	return b
}

func (b *MemoryBackend) Push(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.lists[key]
	if !ok {
		l = &memoryList{}
		b.lists[key] = l
	}
	l.values = append([][]byte{value}, l.values...)
	return nil
}

func (b *MemoryBackend) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	l, ok := b.lists[key]
	if !ok || b.elapsed(l) {
		return nil, nil
	}

	n := int64(len(l.values))
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}

	out := make([][]byte, 0, stop-start+1)
	for _, v := range l.values[start : stop+1] {
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, cp)
	}
	return out, nil
}

func (b *MemoryBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.lists[key]; ok {
		l.expiresAt = b.clock().Add(ttl)
	}
	return nil
}

func (b *MemoryBackend) TTL(ctx context.Context, key string) (time.Duration, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	l, ok := b.lists[key]
	if !ok {
		return 0, ErrKeyNotFound
	}
	if l.expiresAt.IsZero() {
		return NoExpiry, nil
	}
	return l.expiresAt.Sub(b.clock()), nil
}

func (b *MemoryBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.lists {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (b *MemoryBackend) Delete(ctx context.Context, keys ...string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for _, k := range keys {
		if _, ok := b.lists[k]; ok {
			delete(b.lists, k)
			n++
		}
	}
	return n, nil
}

func (b *MemoryBackend) elapsed(l *memoryList) bool {
	return !l.expiresAt.IsZero() && !l.expiresAt.After(b.clock())
}
