package mysql

import (
	"context"

	"Photo_Archive/internal/model"
	"Photo_Archive/internal/repository/interfaces"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EngagementRepository struct {
	DB *gorm.DB
}

func NewEngagementRepository(db *gorm.DB) *EngagementRepository {
	return &EngagementRepository{DB: db}
}

// ToggleLike 门闩(删除/插入记录)与计数增减同事务；内容行加行锁串行化同一内容上的切换。
// onLike 仅在点赞边沿写入 outbox
func (r *EngagementRepository) ToggleLike(ctx context.Context, userID, itemID uint64, onLike ...model.Notification) (bool, int64, error) {
	var (
		liked bool
		count int64
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.ContentItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "like_count").
			First(&item, itemID).Error; err != nil {
			return err
		}

		// 已点赞 -> 删除记录即取消
		res := tx.Where("user_id = ? AND item_id = ? AND kind = ?", userID, itemID, model.EngagementLike).
			Delete(&model.EngagementRecord{})
		if res.Error != nil {
			return res.Error
		}

		expr := gorm.Expr("GREATEST(like_count - 1, 0)")
		count = item.LikeCount - 1
		if res.RowsAffected == 0 {
			if err := tx.Create(&model.EngagementRecord{UserID: userID, ItemID: itemID, Kind: model.EngagementLike}).Error; err != nil {
				return err
			}
			expr = gorm.Expr("like_count + 1")
			count = item.LikeCount + 1
			liked = true
			if err := insertNotifications(tx, onLike); err != nil {
				return err
			}
		}
		if count < 0 {
			count = 0
		}
		return tx.Model(&model.ContentItem{}).
			Where("id = ?", itemID).
			UpdateColumn("like_count", expr).Error
	})
	if err != nil {
		return false, 0, translate(err)
	}
	return liked, count, nil
}

// RecordView 唯一键 insert-if-absent；仅首次插入成功时计数 +1
func (r *EngagementRepository) RecordView(ctx context.Context, userID, itemID uint64) (bool, error) {
	var created bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.EngagementRecord{UserID: userID, ItemID: itemID, Kind: model.EngagementView})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		return tx.Model(&model.ContentItem{}).
			Where("id = ?", itemID).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
	})
	return created, translate(err)
}

func (r *EngagementRepository) IsLiked(ctx context.Context, userID, itemID uint64) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.EngagementRecord{}).
		Where("user_id = ? AND item_id = ? AND kind = ?", userID, itemID, model.EngagementLike).
		Count(&count).Error
	return count > 0, err
}

func (r *EngagementRepository) LikeCount(ctx context.Context, itemID uint64) (int64, error) {
	var item model.ContentItem
	err := r.DB.WithContext(ctx).Select("id", "like_count").First(&item, itemID).Error
	if err != nil {
		return 0, translate(err)
	}
	return item.LikeCount, nil
}

func (r *EngagementRepository) Likers(ctx context.Context, itemID uint64, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.DB.WithContext(ctx).
		Model(&model.EngagementRecord{}).
		Where("item_id = ? AND kind = ?", itemID, model.EngagementLike).
		Order("user_id ASC").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}

// CounterReconcilerRepo 冗余计数对账
type CounterReconcilerRepo struct {
	DB *gorm.DB
}

func NewCounterReconcilerRepo(db *gorm.DB) *CounterReconcilerRepo {
	return &CounterReconcilerRepo{DB: db}
}

// ReconcileList 按 id 游标批量扫描已通过内容
func (r *CounterReconcilerRepo) ReconcileList(ctx context.Context, batchSize int, lastID uint64) ([]interfaces.CounterPair, uint64, error) {
	var list []interfaces.CounterPair
	if err := r.DB.WithContext(ctx).Model(&model.ContentItem{}).
		Select("id", "like_count", "view_count").
		Where("id > ? AND status = ?", lastID, model.StatusApproved).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, lastID, err
	}
	if len(list) == 0 {
		return nil, lastID, nil
	}
	return list, list[len(list)-1].ID, nil
}

// RealCounts 以记录表为准的真实计数
func (r *CounterReconcilerRepo) RealCounts(ctx context.Context, itemID uint64) (int64, int64, error) {
	type row struct {
		Kind model.EngagementKind
		N    int64
	}
	var rows []row
	if err := r.DB.WithContext(ctx).Model(&model.EngagementRecord{}).
		Select("kind, COUNT(*) AS n").
		Where("item_id = ?", itemID).
		Group("kind").
		Scan(&rows).Error; err != nil {
		return 0, 0, err
	}
	var likes, views int64
	for _, rw := range rows {
		switch rw.Kind {
		case model.EngagementLike:
			likes = rw.N
		case model.EngagementView:
			views = rw.N
		}
	}
	return likes, views, nil
}

func (r *CounterReconcilerRepo) FixCounts(ctx context.Context, itemID uint64, likes, views int64) error {
	return r.DB.WithContext(ctx).Model(&model.ContentItem{}).
		Where("id = ?", itemID).
		UpdateColumns(map[string]any{"like_count": likes, "view_count": views}).Error
}
