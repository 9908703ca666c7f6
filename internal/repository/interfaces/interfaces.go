package interfaces

import (
	"context"
	"errors"
	"time"

	"Photo_Archive/internal/model"
)

var (
	// ErrNotFound 记录不存在（含已软删除的不可见记录由调用方按状态判断）
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion 条件更新未命中：状态或版本已被其他会话修改
	ErrStaleVersion = errors.New("stale version")
	// ErrDuplicate 唯一键冲突
	ErrDuplicate = errors.New("duplicate record")
)

// ContentRepository 内容存储，所有状态变更均为条件更新
type ContentRepository interface {
	Create(ctx context.Context, item *model.ContentItem) error
	FindByID(ctx context.Context, id uint64) (*model.ContentItem, error)
	// Transition 仅当 (status, version) 仍与 t 一致时生效，notes 与状态变更同事务写入 outbox
	Transition(ctx context.Context, t model.Transition, notes ...model.Notification) (*model.ContentItem, error)
	// UpdateApproved 编辑已通过的内容，条件同上
	UpdateApproved(ctx context.Context, id uint64, version int64, fields map[string]any, at time.Time, notes ...model.Notification) (*model.ContentItem, error)
	Query(ctx context.Context, filter model.ContentFilter) ([]model.ContentItem, error)
	CountApproved(ctx context.Context, ownerID uint64, kind model.ContentKind) (int64, error)
	CountCreatedSince(ctx context.Context, ownerID uint64, kind model.ContentKind, since time.Time) (int64, error)
}

// RateEventRepository 限流事件的追加与区间计数
type RateEventRepository interface {
	Append(ctx context.Context, subject string, action model.Action, at time.Time, retention time.Duration) error
	// 窗口下界为开区间：恰好 W 之前的事件已滚出窗口
	CountAfter(ctx context.Context, subject string, action model.Action, after time.Time) (int64, error)
	OldestAfter(ctx context.Context, subject string, action model.Action, after time.Time) (time.Time, bool, error)
}

// EngagementRepository 点赞/浏览记录；门闩与计数增减在同一事务内完成
type EngagementRepository interface {
	// onLike 仅在新建点赞时与记录同事务写入
	ToggleLike(ctx context.Context, userID, itemID uint64, onLike ...model.Notification) (liked bool, count int64, err error)
	RecordView(ctx context.Context, userID, itemID uint64) (created bool, err error)
	IsLiked(ctx context.Context, userID, itemID uint64) (bool, error)
	LikeCount(ctx context.Context, itemID uint64) (int64, error)
	// Likers 最多返回 limit 个点赞者
	Likers(ctx context.Context, itemID uint64, limit int) ([]uint64, error)
}

// CounterPair 冗余计数对账用
type CounterPair struct {
	ID        uint64
	LikeCount int64
	ViewCount int64
}

type CounterReconcileRepository interface {
	ReconcileList(ctx context.Context, batchSize int, lastID uint64) ([]CounterPair, uint64, error)
	RealCounts(ctx context.Context, itemID uint64) (likes, views int64, err error)
	FixCounts(ctx context.Context, itemID uint64, likes, views int64) error
}

type StatsRepository interface {
	Recompute(ctx context.Context, ownerID uint64, at time.Time) (*model.UserStats, error)
	Get(ctx context.Context, ownerID uint64) (*model.UserStats, error)
}

type BadgeRepository interface {
	// Award 已有该徽章时返回 false；新授予时 notes 同事务入 outbox
	Award(ctx context.Context, userID uint64, badge string, notes ...model.Notification) (bool, error)
	List(ctx context.Context, userID uint64) ([]string, error)
}

type NotificationRepository interface {
	Enqueue(ctx context.Context, notes ...model.Notification) error
	ListDeliverable(ctx context.Context, batchSize, maxRetry int) ([]model.Notification, error)
	MarkSent(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64) error
	ListByRecipient(ctx context.Context, recipientID, cursor uint64, limit int) ([]model.Notification, uint64, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	UpdatePassword(ctx context.Context, user *model.User, hash string) error
	Suspend(ctx context.Context, id uint64, until time.Time, notes ...model.Notification) error
}

// SessionRepository 单点登录 token
type SessionRepository interface {
	AddUserToken(ctx context.Context, userID uint64, token string) error
	GetUserToken(ctx context.Context, userID uint64) (string, error)
	ExtendUserToken(ctx context.Context, userID uint64) error
	DeleteUserToken(ctx context.Context, userID uint64) error
}

// LikeCache 点赞集合与计数缓存
type LikeCache interface {
	AddLike(ctx context.Context, userID, itemID uint64) error
	RemoveLike(ctx context.Context, userID, itemID uint64) error
	IsLikedCached(ctx context.Context, userID, itemID uint64) (liked bool, hit bool, err error)
	// LikeSetVersion/FillLikeSet 整集回填，集合从不由单个成员起建
	LikeSetVersion(ctx context.Context, itemID uint64) (int64, error)
	FillLikeSet(ctx context.Context, itemID uint64, version int64, userIDs []uint64) (bool, error)
	GetLikeCountCached(ctx context.Context, itemID uint64) (int64, bool, error)
	SetLikeCount(ctx context.Context, itemID uint64, cnt int64) error
	DeleteCount(ctx context.Context, itemID uint64, delay ...time.Duration) error
}

// Locker 分布式锁
type Locker interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}
