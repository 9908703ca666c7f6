package mysql

import (
	"context"
	"errors"
	"time"

	"Photo_Archive/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatsRepository struct {
	DB *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{DB: db}
}

// Recompute 从内容表与互动记录表全量重算作者数据并覆盖写入，自愈历史漂移
func (r *StatsRepository) Recompute(ctx context.Context, ownerID uint64, at time.Time) (*model.UserStats, error) {
	db := r.DB.WithContext(ctx)
	stats := model.UserStats{UserID: ownerID, RecomputedAt: at}

	if err := db.Model(&model.ContentItem{}).
		Where("owner_id = ? AND kind = ? AND status = ?", ownerID, model.KindPhoto, model.StatusApproved).
		Count(&stats.ApprovedCount).Error; err != nil {
		return nil, err
	}

	countEngagement := func(kind model.EngagementKind, out *int64) error {
		return db.Table("engagement_records AS e").
			Joins("JOIN content_items AS c ON c.id = e.item_id").
			Where("c.owner_id = ? AND c.status = ? AND e.kind = ?", ownerID, model.StatusApproved, kind).
			Count(out).Error
	}
	if err := countEngagement(model.EngagementLike, &stats.TotalLikes); err != nil {
		return nil, err
	}
	if err := countEngagement(model.EngagementView, &stats.TotalViews); err != nil {
		return nil, err
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"approved_count", "total_likes", "total_views", "recomputed_at"}),
	}).Create(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *StatsRepository) Get(ctx context.Context, ownerID uint64) (*model.UserStats, error) {
	var stats model.UserStats
	err := r.DB.WithContext(ctx).First(&stats, "user_id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.UserStats{UserID: ownerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

type BadgeRepository struct {
	DB *gorm.DB
}

func NewBadgeRepository(db *gorm.DB) *BadgeRepository {
	return &BadgeRepository{DB: db}
}

// Award 唯一键幂等插入，新授予时通知同事务入 outbox
func (r *BadgeRepository) Award(ctx context.Context, userID uint64, badge string, notes ...model.Notification) (bool, error) {
	var awarded bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.UserBadge{UserID: userID, Badge: badge})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		awarded = true
		return insertNotifications(tx, notes)
	})
	return awarded, err
}

func (r *BadgeRepository) List(ctx context.Context, userID uint64) ([]string, error) {
	var badges []string
	err := r.DB.WithContext(ctx).Model(&model.UserBadge{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("badge", &badges).Error
	return badges, err
}
