// Package cache 查询结果的短 TTL 读穿缓存。缓存只是优化，任何后端故障都回落到计算函数。
package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"Photo_Archive/internal/pkg"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Backend 缓存后端：进程内或 Redis
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Flush(ctx context.Context) error
}

type entry struct {
	WrittenAt time.Time       `json:"w"`
	Data      json.RawMessage `json:"d"`
}

type ReadThrough struct {
	backend   Backend
	clock     pkg.Clock
	logger    *zap.Logger
	opTimeout time.Duration
	group     singleflight.Group
	// 每次失效递增；计算开始后若发生失效，则结果不回填，避免旧结果覆盖
	epoch atomic.Uint64
}

func NewReadThrough(backend Backend, clock pkg.Clock, logger *zap.Logger, opTimeout time.Duration) *ReadThrough {
	if clock == nil {
		clock = pkg.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opTimeout <= 0 {
		opTimeout = 100 * time.Millisecond
	}
	return &ReadThrough{backend: backend, clock: clock, logger: logger, opTimeout: opTimeout}
}

// GetOrCompute 命中且未过期直接返回；否则调用 fn 并回填
func GetOrCompute[T any](ctx context.Context, c *ReadThrough, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok := c.lookup(ctx, key, ttl); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.logger.Warn("cache decode failed, recomputing", zap.String("key", key))
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		epoch := c.epoch.Load()
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if c.epoch.Load() == epoch {
			c.store(ctx, key, raw, ttl)
		}
		return raw, nil
	})
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(res.([]byte), &v); err != nil {
		return zero, err
	}
	return v, nil
}

func (c *ReadThrough) lookup(ctx context.Context, key string, ttl time.Duration) (json.RawMessage, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed, falling back to compute", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if c.clock.Now().Sub(e.WrittenAt) >= ttl {
		return nil, false
	}
	return e.Data, true
}

func (c *ReadThrough) store(ctx context.Context, key string, data []byte, ttl time.Duration) {
	raw, err := json.Marshal(entry{WrittenAt: c.clock.Now(), Data: data})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
	defer cancel()
	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate 删除指定 key；失败只记录，key 仍会在 TTL 后过期
func (c *ReadThrough) Invalidate(ctx context.Context, keys ...string) error {
	c.epoch.Add(1)
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.backend.Delete(ctx, keys...); err != nil {
		c.logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

func (c *ReadThrough) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.epoch.Add(1)
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.backend.DeletePrefix(ctx, prefix); err != nil {
		c.logger.Warn("cache prefix invalidate failed", zap.String("prefix", prefix), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateAll 粗粒度兜底：无法静态确定受影响 key 时使用
func (c *ReadThrough) InvalidateAll(ctx context.Context) error {
	c.epoch.Add(1)
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.backend.Flush(ctx); err != nil {
		c.logger.Warn("cache flush failed", zap.Error(err))
		return err
	}
	return nil
}

// Apply 执行一组失效计划
func (c *ReadThrough) Apply(ctx context.Context, plan Plan) error {
	if plan.All {
		return c.InvalidateAll(ctx)
	}
	var firstErr error
	if err := c.Invalidate(ctx, plan.Keys...); err != nil {
		firstErr = err
	}
	for _, p := range plan.Prefixes {
		if err := c.InvalidatePrefix(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
