package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryBackend 进程内后端；go-cache 的 janitor 周期清理过期项，只为限制内存
type MemoryBackend struct {
	c *gocache.Cache
}

func NewMemoryBackend(defaultTTL, sweepInterval time.Duration) *MemoryBackend {
	return &MemoryBackend{c: gocache.New(defaultTTL, sweepInterval)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.c.Set(key, val, ttl)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

func (m *MemoryBackend) DeletePrefix(_ context.Context, prefix string) error {
	for k := range m.c.Items() {
		if strings.HasPrefix(k, prefix) {
			m.c.Delete(k)
		}
	}
	return nil
}

func (m *MemoryBackend) Flush(_ context.Context) error {
	m.c.Flush()
	return nil
}

// Len 当前未过期条目数
func (m *MemoryBackend) Len() int {
	return m.c.ItemCount()
}
