package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"Photo_Archive/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const RateKeyPrefix = "rate:events" // zset: member=事件ID, score=毫秒时间戳

// RateEventRepository 每个 (action, subject) 一个有序集合
type RateEventRepository struct {
	rdb *redis.Client
}

func NewRateEventRepository(rdb *redis.Client) *RateEventRepository {
	return &RateEventRepository{rdb: rdb}
}

func (r *RateEventRepository) key(subject string, action model.Action) string {
	return fmt.Sprintf("%s:%s:%s", RateKeyPrefix, action, subject)
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Append 追加事件，同时裁掉超出最长窗口的旧事件
func (r *RateEventRepository) Append(ctx context.Context, subject string, action model.Action, at time.Time, retention time.Duration) error {
	k := r.key(subject, action)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, k, redis.Z{Score: float64(at.UnixMilli()), Member: uuid.NewString()})
		p.ZRemRangeByScore(ctx, k, "-inf", "("+ms(at.Add(-retention)))
		p.Expire(ctx, k, retention)
		return nil
	})
	return err
}

// CountAfter 统计 (after, +inf) 内的事件，窗口下界开区间
func (r *RateEventRepository) CountAfter(ctx context.Context, subject string, action model.Action, after time.Time) (int64, error) {
	return r.rdb.ZCount(ctx, r.key(subject, action), "("+ms(after), "+inf").Result()
}

// OldestAfter 窗口内最早的一条事件
func (r *RateEventRepository) OldestAfter(ctx context.Context, subject string, action model.Action, after time.Time) (time.Time, bool, error) {
	res, err := r.rdb.ZRangeByScoreWithScores(ctx, r.key(subject, action), &redis.ZRangeBy{
		Min:   "(" + ms(after),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return time.Time{}, false, err
	}
	if len(res) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(res[0].Score)), true, nil
}
