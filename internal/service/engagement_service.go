package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/repository/interfaces"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	toggleLockTTL = 3 * time.Second
	countLockTTL  = 2 * time.Second
	// 点赞者超过该数的内容不回填集合，直接查库
	likeSetFillLimit = 2000
)

// EngagementService 点赞/浏览幂等：同一用户对同一内容至多一个点赞、一次浏览计数
type EngagementService struct {
	content   interfaces.ContentRepository
	repo      interfaces.EngagementRepository
	likeCache interfaces.LikeCache
	lock      interfaces.Locker
	logger    *zap.Logger
}

func NewEngagementService(content interfaces.ContentRepository, repo interfaces.EngagementRepository, likeCache interfaces.LikeCache, lock interfaces.Locker, logger *zap.Logger) *EngagementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngagementService{
		content:   content,
		repo:      repo,
		likeCache: likeCache,
		lock:      lock,
		logger:    logger,
	}
}

func (s *EngagementService) approvedItem(ctx context.Context, itemID uint64) (*model.ContentItem, error) {
	item, err := s.content.FindByID(ctx, itemID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperr.NotFound("item", itemID)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	if item.Status != model.StatusApproved {
		return nil, apperr.NotFound("item", itemID)
	}
	return item, nil
}

// ToggleLike 同一 (用户, 内容) 的切换由分布式锁防抖，并发的第二次切换直接拒绝
func (s *EngagementService) ToggleLike(ctx context.Context, userID, itemID uint64) (*model.LikeResult, error) {
	if userID == 0 || itemID == 0 {
		return nil, apperr.BadRequest("invalid id")
	}
	item, err := s.approvedItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("toggle:%d:%d", userID, itemID)
	token := uuid.NewString()
	got, err := s.lock.Acquire(ctx, lockKey, token, toggleLockTTL)
	if err != nil {
		// 锁不可用时退回到存储层的事务保证
		s.logger.Warn("toggle lock unavailable", zap.Uint64("item_id", itemID), zap.Error(err))
	} else if !got {
		return nil, apperr.MutationInFlight(itemID)
	} else {
		defer func() { _ = s.lock.Release(context.WithoutCancel(ctx), lockKey, token) }()
	}

	// 自己点赞自己不通知
	var notes []model.Notification
	if item.OwnerID != userID {
		notes = append(notes, model.NewNotification(item.OwnerID, model.NotifyLikeReceived, model.NotificationPayload{
			ItemID:   item.ID,
			ItemKind: string(item.Kind),
			ActorID:  userID,
		}))
	}
	liked, count, err := s.repo.ToggleLike(ctx, userID, itemID, notes...)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperr.NotFound("item", itemID)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}

	// 缓存尽力更新，计数以库为准回写；失败则删 key 交给读侧重建
	if liked {
		_ = s.likeCache.AddLike(ctx, userID, itemID)
	} else {
		_ = s.likeCache.RemoveLike(ctx, userID, itemID)
	}
	if err := s.likeCache.SetLikeCount(ctx, itemID, count); err != nil {
		_ = s.likeCache.DeleteCount(ctx, itemID)
	}
	return &model.LikeResult{Liked: liked, Count: count}, nil
}

// RecordView 首次浏览计数 +1，重复调用无副作用；返回是否计入
func (s *EngagementService) RecordView(ctx context.Context, userID, itemID uint64) (bool, error) {
	if userID == 0 || itemID == 0 {
		return false, apperr.BadRequest("invalid id")
	}
	if _, err := s.approvedItem(ctx, itemID); err != nil {
		return false, err
	}
	created, err := s.repo.RecordView(ctx, userID, itemID)
	if err != nil {
		return false, apperr.StoreUnavailable(err)
	}
	return created, nil
}

func (s *EngagementService) IsLiked(ctx context.Context, userID, itemID uint64) (bool, error) {
	if userID == 0 || itemID == 0 {
		return false, apperr.BadRequest("invalid id")
	}
	if b, ok, err := s.likeCache.IsLikedCached(ctx, userID, itemID); err == nil && ok {
		return b, nil
	}
	// 版本须在读库之前取
	ver, verErr := s.likeCache.LikeSetVersion(ctx, itemID)
	b, err := s.repo.IsLiked(ctx, userID, itemID)
	if err != nil {
		return false, apperr.StoreUnavailable(err)
	}
	if verErr == nil {
		s.fillLikeSet(ctx, itemID, ver)
	}
	return b, nil
}

// fillLikeSet 集合缺失时按库里完整名单重建，失败只影响命中率
func (s *EngagementService) fillLikeSet(ctx context.Context, itemID uint64, ver int64) {
	ids, err := s.repo.Likers(ctx, itemID, likeSetFillLimit+1)
	if err != nil || len(ids) == 0 || len(ids) > likeSetFillLimit {
		return
	}
	if _, err := s.likeCache.FillLikeSet(ctx, itemID, ver, ids); err != nil {
		s.logger.Warn("fill like set failed", zap.Uint64("item_id", itemID), zap.Error(err))
	}
}

// LikeCount 缓存优先；miss 时持锁单个回源重建，拿不到锁短暂退避后重读
func (s *EngagementService) LikeCount(ctx context.Context, itemID uint64) (int64, error) {
	if v, ok, err := s.likeCache.GetLikeCountCached(ctx, itemID); err == nil && ok {
		return v, nil
	}
	lockKey := fmt.Sprintf("likecnt:%d", itemID)
	token := uuid.NewString()
	got, _ := s.lock.Acquire(ctx, lockKey, token, countLockTTL)
	if got {
		defer func() { _ = s.lock.Release(context.WithoutCancel(ctx), lockKey, token) }()
		// 双检
		if v, ok, err := s.likeCache.GetLikeCountCached(ctx, itemID); err == nil && ok {
			return v, nil
		}
		v, err := s.repo.LikeCount(ctx, itemID)
		if err != nil {
			return 0, apperr.StoreUnavailable(err)
		}
		_ = s.likeCache.SetLikeCount(ctx, itemID, v)
		return v, nil
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	if v, ok, err := s.likeCache.GetLikeCountCached(ctx, itemID); err == nil && ok {
		return v, nil
	}
	v, err := s.repo.LikeCount(ctx, itemID)
	if err != nil {
		return 0, apperr.StoreUnavailable(err)
	}
	return v, nil
}
