package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const CacheKeyPrefix = "qcache:"

// CacheBackend 多实例部署时共享的查询缓存
type CacheBackend struct {
	rdb       *redis.Client
	scanBatch int64
}

func NewCacheBackend(rdb *redis.Client) *CacheBackend {
	return &CacheBackend{rdb: rdb, scanBatch: 200}
}

func (b *CacheBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, CacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *CacheBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, CacheKeyPrefix+key, val, ttl).Err()
}

func (b *CacheBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, CacheKeyPrefix+k)
	}
	return b.rdb.Del(ctx, full...).Err()
}

// DeletePrefix SCAN 分批删除，不用 KEYS 阻塞实例
func (b *CacheBackend) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := b.rdb.Scan(ctx, cursor, CacheKeyPrefix+prefix+"*", b.scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (b *CacheBackend) Flush(ctx context.Context) error {
	return b.DeletePrefix(ctx, "")
}
