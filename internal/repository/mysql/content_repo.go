package mysql

import (
	"context"
	"strings"
	"time"

	"Photo_Archive/internal/model"
	"Photo_Archive/internal/repository/interfaces"

	"gorm.io/gorm"
)

type ContentRepository struct {
	DB *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

func (r *ContentRepository) Create(ctx context.Context, item *model.ContentItem) error {
	return translate(r.DB.WithContext(ctx).Create(item).Error)
}

func (r *ContentRepository) FindByID(ctx context.Context, id uint64) (*model.ContentItem, error) {
	var item model.ContentItem
	if err := r.DB.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// Transition 条件更新：WHERE id=? AND status=? AND version=?，命中 0 行即为并发冲突
func (r *ContentRepository) Transition(ctx context.Context, t model.Transition, notes ...model.Notification) (*model.ContentItem, error) {
	var updated model.ContentItem
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols := map[string]any{
			"status":     t.To,
			"version":    gorm.Expr("version + 1"),
			"updated_at": t.At,
		}
		if t.ModeratorID != 0 {
			cols["moderated_by"] = t.ModeratorID
			cols["moderated_at"] = t.At
		}
		if t.Reason != "" {
			cols["rejection_reason"] = t.Reason
		}
		res := tx.Model(&model.ContentItem{}).
			Where("id = ? AND status = ? AND version = ?", t.ItemID, t.From, t.Version).
			UpdateColumns(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return interfaces.ErrStaleVersion
		}
		if err := insertNotifications(tx, notes); err != nil {
			return err
		}
		return tx.First(&updated, t.ItemID).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}

// UpdateApproved 编辑仅对 approved 生效，同样走版本号条件
func (r *ContentRepository) UpdateApproved(ctx context.Context, id uint64, version int64, fields map[string]any, at time.Time, notes ...model.Notification) (*model.ContentItem, error) {
	var updated model.ContentItem
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols := make(map[string]any, len(fields)+2)
		for k, v := range fields {
			cols[k] = v
		}
		cols["version"] = gorm.Expr("version + 1")
		cols["updated_at"] = at
		res := tx.Model(&model.ContentItem{}).
			Where("id = ? AND status = ? AND version = ?", id, model.StatusApproved, version).
			UpdateColumns(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return interfaces.ErrStaleVersion
		}
		if err := insertNotifications(tx, notes); err != nil {
			return err
		}
		return tx.First(&updated, id).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}

// 搜索词里的 % _ 按字面匹配；反斜杠是 MySQL LIKE 的默认转义符
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Query 通用过滤；Statuses 为空时只返回 approved
func (r *ContentRepository) Query(ctx context.Context, f model.ContentFilter) ([]model.ContentItem, error) {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = []model.ContentStatus{model.StatusApproved}
	}
	q := r.DB.WithContext(ctx).Where("status IN ?", statuses)
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.OwnerID != 0 {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.ParentID != 0 {
		q = q.Where("parent_id = ?", f.ParentID)
	}
	if f.Location != "" {
		q = q.Where("location = ?", f.Location)
	}
	if f.Search != "" {
		like := "%" + escapeLike(f.Search) + "%"
		q = q.Where("(title LIKE ? OR body LIKE ?)", like, like)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var list []model.ContentItem
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *ContentRepository) CountApproved(ctx context.Context, ownerID uint64, kind model.ContentKind) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.ContentItem{}).
		Where("owner_id = ? AND kind = ? AND status = ?", ownerID, kind, model.StatusApproved).
		Count(&n).Error
	return n, err
}

// CountCreatedSince 不区分状态：被拒绝的上传同样占用当日配额
func (r *ContentRepository) CountCreatedSince(ctx context.Context, ownerID uint64, kind model.ContentKind, since time.Time) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.ContentItem{}).
		Where("owner_id = ? AND kind = ? AND created_at >= ?", ownerID, kind, since).
		Count(&n).Error
	return n, err
}

func insertNotifications(tx *gorm.DB, notes []model.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	return tx.Create(&notes).Error
}
