package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	LikeSetTTL       = 24 * time.Hour
	LikeCntTTL       = 24 * time.Hour
	LikeSetKeyPrefix = "like:set:item" // 某内容已点赞的用户ID集合
	LikeCntKeyPrefix = "like:cnt:item" // 某内容的点赞计数
	LikeVerKeyPrefix = "like:ver:item" // 集合写版本，每次切换自增
)

// 写路径只改已存在的集合：集合缺失时绝不从单个成员起建，否则部分集合会被当作完整答案
var likeToggleScript = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[3])
if redis.call("EXISTS", KEYS[1]) == 1 then
  if ARGV[2] == "1" then
    redis.call("SADD", KEYS[1], ARGV[1])
  else
    redis.call("SREM", KEYS[1], ARGV[1])
  end
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1`)

// 整集回填：读库前取到的版本未变且集合仍不存在时才写入
var likeFillScript = redis.NewScript(`
local v = redis.call("GET", KEYS[2])
if not v then v = "0" end
if v ~= ARGV[1] then return 0 end
if redis.call("EXISTS", KEYS[1]) == 1 then return 0 end
for i = 3, #ARGV do
  redis.call("SADD", KEYS[1], ARGV[i])
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1`)

type LikeCacheRepository struct {
	rdb        *redis.Client
	likeSetTTL time.Duration
	likeCntTTL time.Duration
}

func NewLikeCacheRepository(rdb *redis.Client) *LikeCacheRepository {
	return &LikeCacheRepository{
		rdb:        rdb,
		likeSetTTL: LikeSetTTL,
		likeCntTTL: LikeCntTTL,
	}
}

func (r *LikeCacheRepository) likeSetKey(itemID uint64) string {
	return fmt.Sprintf("%s:%d", LikeSetKeyPrefix, itemID)
}
func (r *LikeCacheRepository) likeCntKey(itemID uint64) string {
	return fmt.Sprintf("%s:%d", LikeCntKeyPrefix, itemID)
}
func (r *LikeCacheRepository) likeVerKey(itemID uint64) string {
	return fmt.Sprintf("%s:%d", LikeVerKeyPrefix, itemID)
}

func (r *LikeCacheRepository) toggle(ctx context.Context, userID, itemID uint64, liked bool) error {
	flag := "0"
	if liked {
		flag = "1"
	}
	keys := []string{r.likeSetKey(itemID), r.likeVerKey(itemID)}
	return likeToggleScript.Run(ctx, r.rdb, keys, userID, flag, r.likeSetTTL.Milliseconds()).Err()
}

// AddLike 写路径：成功写 MySQL 后再调用
func (r *LikeCacheRepository) AddLike(ctx context.Context, userID, itemID uint64) error {
	if err := r.toggle(ctx, userID, itemID, true); err != nil {
		return err
	}

	// 计数 key 不存在时不创建，交给读侧回填，避免从 0 起算
	ck := r.likeCntKey(itemID)
	if n, _ := r.rdb.Exists(ctx, ck).Result(); n > 0 {
		if err := r.rdb.Incr(ctx, ck).Err(); err != nil {
			return err
		}
		_ = r.rdb.Expire(ctx, ck, r.likeCntTTL).Err()
	}
	return nil
}

func (r *LikeCacheRepository) RemoveLike(ctx context.Context, userID, itemID uint64) error {
	if err := r.toggle(ctx, userID, itemID, false); err != nil {
		return err
	}
	ck := r.likeCntKey(itemID)
	// 计数防负数
	return r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, ck).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if val <= 0 {
			// 不存在或<=0，交给对账兜底
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Decr(ctx, ck)
			return nil
		})
		return err
	}, ck)
}

// IsLikedCached 集合存在才算命中
func (r *LikeCacheRepository) IsLikedCached(ctx context.Context, userID, itemID uint64) (bool, bool, error) {
	k := r.likeSetKey(itemID)
	exists, err := r.rdb.Exists(ctx, k).Result()
	if err != nil {
		return false, false, err
	}
	if exists == 0 {
		return false, false, nil
	}
	b, err := r.rdb.SIsMember(ctx, k, userID).Result()
	return b, true, err
}

func (r *LikeCacheRepository) GetLikeCountCached(ctx context.Context, itemID uint64) (int64, bool, error) {
	val, err := r.rdb.Get(ctx, r.likeCntKey(itemID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	return val, err == nil, err
}

// SetLikeCount 回填点赞数
func (r *LikeCacheRepository) SetLikeCount(ctx context.Context, itemID uint64, cnt int64) error {
	return r.rdb.Set(ctx, r.likeCntKey(itemID), cnt, r.likeCntTTL).Err()
}

// LikeSetVersion 回填前先取版本，再读库
func (r *LikeCacheRepository) LikeSetVersion(ctx context.Context, itemID uint64) (int64, error) {
	v, err := r.rdb.Get(ctx, r.likeVerKey(itemID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// FillLikeSet 用库里的完整点赞者名单重建集合；期间有切换发生则放弃
func (r *LikeCacheRepository) FillLikeSet(ctx context.Context, itemID uint64, version int64, userIDs []uint64) (bool, error) {
	if len(userIDs) == 0 {
		return false, nil
	}
	args := make([]any, 0, len(userIDs)+2)
	args = append(args, version, r.likeSetTTL.Milliseconds())
	for _, id := range userIDs {
		args = append(args, id)
	}
	keys := []string{r.likeSetKey(itemID), r.likeVerKey(itemID)}
	n, err := likeFillScript.Run(ctx, r.rdb, keys, args...).Int()
	return n == 1, err
}

// DeleteCount 删除计数缓存，delay>0 时异步延迟二删，抵消并发回填窗口
func (r *LikeCacheRepository) DeleteCount(ctx context.Context, itemID uint64, delay ...time.Duration) error {
	key := r.likeCntKey(itemID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if len(delay) > 0 && delay[0] > 0 {
		d := delay[0]
		go func() {
			t := time.NewTimer(d)
			defer t.Stop()
			<-t.C
			_ = r.rdb.Del(context.Background(), key).Err()
		}()
	}
	return nil
}
