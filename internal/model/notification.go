package model

import (
	"encoding/json"
	"time"
)

type NotificationKind string

const (
	NotifyContentDeleted   NotificationKind = "content_deleted"
	NotifyContentChanged   NotificationKind = "content_changed"
	NotifyBadgeAwarded     NotificationKind = "badge_awarded"
	NotifyLikeReceived     NotificationKind = "like_received"
	NotifyAccountSuspended NotificationKind = "account_suspended"
)

// ApprovedKind photo_approved / tag_approved ...
func ApprovedKind(k ContentKind) NotificationKind {
	return NotificationKind(string(k) + "_approved")
}

// RejectedKind photo_rejected / tag_rejected ...
func RejectedKind(k ContentKind) NotificationKind {
	return NotificationKind(string(k) + "_rejected")
}

type NotificationPayload struct {
	ItemID         uint64     `json:"item_id,omitempty"`
	ItemKind       string     `json:"item_kind,omitempty"`
	ActorID        uint64     `json:"actor_id,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	ChangedFields  []string   `json:"changed_fields,omitempty"`
	Badge          string     `json:"badge,omitempty"`
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
}

const (
	OutboxPending int8 = 0
	OutboxSent    int8 = 1
	OutboxFailed  int8 = 2
)

// Notification 通知 outbox 表：与状态迁移同事务写入，由 relayer 异步投递
type Notification struct {
	ID          uint64           `gorm:"primaryKey" json:"id"`
	RecipientID uint64           `gorm:"not null;index" json:"recipient_id"`
	Kind        NotificationKind `gorm:"size:32;not null" json:"kind"`
	Payload     string           `gorm:"type:json;not null" json:"payload"`
	Status      int8             `gorm:"not null;default:0;index;comment:'0=pending,1=sent,2=failed'" json:"-"`
	Retry       int              `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"-"`
}

func (Notification) TableName() string { return "notification_outbox" }

// NewNotification 构造一条待投递通知
func NewNotification(recipient uint64, kind NotificationKind, p NotificationPayload) Notification {
	raw, _ := json.Marshal(p)
	return Notification{
		RecipientID: recipient,
		Kind:        kind,
		Payload:     string(raw),
		Status:      OutboxPending,
	}
}

// DecodePayload 解析 payload
func (n *Notification) DecodePayload() (NotificationPayload, error) {
	var p NotificationPayload
	err := json.Unmarshal([]byte(n.Payload), &p)
	return p, err
}
