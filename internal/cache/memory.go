package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend is a bounded in-process backend used when no Redis address
// is configured. Entries are replaced whole, so a reader never sees a value
// paired with another write's expiry.
type MemoryBackend struct {
	entries *lru.Cache[string, memEntry]
	Now     func() time.Time
}

func NewMemoryBackend(size int) (*MemoryBackend, error) {
	if size <= 0 {
		size = 10000
	}
	entries, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{entries: entries, Now: time.Now}, nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	e, ok := b.entries.Get(key)
	if !ok {
		return "", false, nil
	}
	if !b.Now().Before(e.expiresAt) {
		b.entries.Remove(key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (b *MemoryBackend) SetEX(_ context.Context, key string, ttl time.Duration, value string) (bool, error) {
	b.entries.Add(key, memEntry{value: value, expiresAt: b.Now().Add(ttl)})
	return true, nil
}

func (b *MemoryBackend) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		b.entries.Remove(k)
	}
	return nil
}

func (b *MemoryBackend) Len() int {
	return b.entries.Len()
}
