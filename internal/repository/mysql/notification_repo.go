package mysql

import (
	"context"

	"Photo_Archive/internal/model"

	"gorm.io/gorm"
)

// NotificationRepository 通知 outbox 表
type NotificationRepository struct {
	DB *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{DB: db}
}

func (r *NotificationRepository) Enqueue(ctx context.Context, notes ...model.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&notes).Error
}

// ListDeliverable 待投递 + 失败但未超过重试上限的记录
func (r *NotificationRepository) ListDeliverable(ctx context.Context, batchSize, maxRetry int) ([]model.Notification, error) {
	var list []model.Notification
	if err := r.DB.WithContext(ctx).
		Where("status = ? OR (status = ? AND retry < ?)", model.OutboxPending, model.OutboxFailed, maxRetry).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// MarkFailed 投递失败，重试次数 +1
func (r *NotificationRepository) MarkFailed(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxFailed, "retry": gorm.Expr("retry + 1")}).Error
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id).
		Update("status", model.OutboxSent).Error
}

// ListByRecipient 收件箱，id 倒序游标分页；多取一条判断是否有下一页
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID, cursor uint64, limit int) ([]model.Notification, uint64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := r.DB.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	var rows []model.Notification
	if err := q.Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	var next uint64
	if len(rows) > limit {
		next = rows[limit-1].ID
		rows = rows[:limit]
	}
	return rows, next, nil
}
