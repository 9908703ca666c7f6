package model

import (
	"strings"
	"time"
)

type ContentKind string

const (
	KindPhoto   ContentKind = "photo"
	KindTag     ContentKind = "tag"
	KindStory   ContentKind = "story"
	KindComment ContentKind = "comment"
)

// ParseKind 解析路由/请求中的内容类型
func ParseKind(s string) (ContentKind, bool) {
	switch k := ContentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPhoto, KindTag, KindStory, KindComment:
		return k, true
	}
	return "", false
}

// NeedsParent tag/comment 必须挂在一张照片下
func (k ContentKind) NeedsParent() bool {
	return k == KindTag || k == KindComment
}

type ContentStatus string

const (
	StatusPending  ContentStatus = "pending"
	StatusApproved ContentStatus = "approved"
	StatusRejected ContentStatus = "rejected"
	StatusDeleted  ContentStatus = "deleted"
)

// Terminal rejected / deleted 为终态
func (s ContentStatus) Terminal() bool {
	return s == StatusRejected || s == StatusDeleted
}

// ContentItem 照片/标签/故事/评论共用一张表，Kind 区分
type ContentItem struct {
	ID              uint64        `gorm:"primaryKey" json:"id"`
	Kind            ContentKind   `gorm:"size:16;not null;index:idx_owner_kind_time,priority:2" json:"kind"`
	OwnerID         uint64        `gorm:"not null;index:idx_owner_kind_time,priority:1" json:"owner_id"`
	ParentID        uint64        `gorm:"not null;default:0;index" json:"parent_id,omitempty"`
	Status          ContentStatus `gorm:"size:16;not null;default:'pending';index" json:"status"`
	Title           string        `gorm:"size:200" json:"title,omitempty"`
	Body            string        `gorm:"type:text" json:"body,omitempty"`
	Location        string        `gorm:"size:128;index" json:"location,omitempty"`
	LikeCount       int64         `gorm:"not null;default:0" json:"like_count"`
	ViewCount       int64         `gorm:"not null;default:0" json:"view_count"`
	Version         int64         `gorm:"not null;default:1" json:"version"` // 条件更新用的乐观锁版本号
	ModeratedBy     *uint64       `json:"moderated_by,omitempty"`
	ModeratedAt     *time.Time    `json:"moderated_at,omitempty"`
	RejectionReason string        `gorm:"size:512" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `gorm:"index:idx_owner_kind_time,priority:3" json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (ContentItem) TableName() string {
	return "content_items"
}

// VisibleTo 公开可见仅限 approved；pending 只对作者、父内容作者(tag/comment)以及版主可见
func (c *ContentItem) VisibleTo(viewerID, parentOwnerID uint64, moderator bool) bool {
	switch c.Status {
	case StatusApproved:
		return true
	case StatusPending:
		if moderator || (viewerID != 0 && viewerID == c.OwnerID) {
			return true
		}
		return c.Kind.NeedsParent() && viewerID != 0 && viewerID == parentOwnerID
	default:
		return false
	}
}

// EditableFields 可编辑字段快照
func (c *ContentItem) EditableFields() map[string]string {
	return map[string]string{
		"title":    c.Title,
		"body":     c.Body,
		"location": c.Location,
	}
}

// ContentFilter 查询条件，零值字段不参与过滤
type ContentFilter struct {
	Kind     ContentKind
	OwnerID  uint64
	ParentID uint64
	Location string
	Search   string
	Statuses []ContentStatus
	Limit    int
}

// Transition 一次状态迁移；From+Version 共同构成条件更新的前置条件
type Transition struct {
	ItemID      uint64
	From        ContentStatus
	To          ContentStatus
	Version     int64
	ModeratorID uint64
	Reason      string
	At          time.Time
}
