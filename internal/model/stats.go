package model

import "time"

// UserStats 作者聚合数据，每次由权威记录重算，不做增量维护
type UserStats struct {
	UserID        uint64 `gorm:"primaryKey" json:"user_id"`
	ApprovedCount int64  `gorm:"not null;default:0" json:"approved_count"`
	TotalLikes    int64  `gorm:"not null;default:0" json:"total_likes"`
	TotalViews    int64  `gorm:"not null;default:0" json:"total_views"`
	RecomputedAt  time.Time
}

func (UserStats) TableName() string {
	return "user_stats"
}

type UserBadge struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    uint64 `gorm:"not null;uniqueIndex:uk_user_badge,priority:1"`
	Badge     string `gorm:"size:64;not null;uniqueIndex:uk_user_badge,priority:2"`
	CreatedAt time.Time
}

func (UserBadge) TableName() string {
	return "user_badges"
}
