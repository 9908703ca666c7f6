package model

import "time"

type EngagementKind string

const (
	EngagementLike EngagementKind = "like"
	EngagementView EngagementKind = "view"
)

// EngagementRecord (user_id, item_id, kind) 唯一；like 记录存在即代表当前已点赞，view 只增不删
type EngagementRecord struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	UserID    uint64         `gorm:"not null;uniqueIndex:uk_user_item_kind,priority:1"`
	ItemID    uint64         `gorm:"not null;index;uniqueIndex:uk_user_item_kind,priority:2"`
	Kind      EngagementKind `gorm:"size:8;not null;uniqueIndex:uk_user_item_kind,priority:3"`
	CreatedAt time.Time
}

func (EngagementRecord) TableName() string {
	return "engagement_records"
}

type LikeResult struct {
	Liked bool  `json:"liked"`
	Count int64 `json:"count"`
}
