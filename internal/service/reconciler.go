package service

import (
	"context"
	"time"

	"Photo_Archive/internal/repository/interfaces"

	"go.uber.org/zap"
)

// CounterReconciler 点赞/浏览冗余计数只是参考值，定时按互动记录校正
type CounterReconciler struct {
	repo      interfaces.CounterReconcileRepository
	likeCache interfaces.LikeCache
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewCounterReconciler(repo interfaces.CounterReconcileRepository, likeCache interfaces.LikeCache, interval time.Duration, batchSize int, logger *zap.Logger) *CounterReconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterReconciler{
		repo:      repo,
		likeCache: likeCache,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (r *CounterReconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce 游标扫描全部已通过内容，返回修正条数
func (r *CounterReconciler) ReconcileOnce(ctx context.Context) int {
	var (
		lastID uint64
		fixed  int
	)
	for {
		if ctx.Err() != nil {
			return fixed
		}
		list, next, err := r.repo.ReconcileList(ctx, r.batchSize, lastID)
		if err != nil {
			r.logger.Warn("reconcile list failed", zap.Uint64("last_id", lastID), zap.Error(err))
			return fixed
		}
		for _, p := range list {
			likes, views, err := r.repo.RealCounts(ctx, p.ID)
			if err != nil {
				continue
			}
			if likes == p.LikeCount && views == p.ViewCount {
				continue
			}
			if err := r.repo.FixCounts(ctx, p.ID, likes, views); err != nil {
				r.logger.Warn("fix counters failed", zap.Uint64("item_id", p.ID), zap.Error(err))
				continue
			}
			if r.likeCache != nil && likes != p.LikeCount {
				_ = r.likeCache.DeleteCount(ctx, p.ID)
			}
			r.logger.Info("counters reconciled",
				zap.Uint64("item_id", p.ID),
				zap.Int64("like_count", likes),
				zap.Int64("view_count", views))
			fixed++
		}
		if len(list) < r.batchSize {
			return fixed
		}
		lastID = next
	}
}
