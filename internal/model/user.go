package model

import "time"

const (
	RoleUser      = 0
	RoleModerator = 1
)

type User struct {
	ID             uint64     `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Password       string     `gorm:"size:255;not null" json:"-"`
	Role           int        `gorm:"default:0" json:"role"`
	Email          string     `gorm:"uniqueIndex;size:64;not null" json:"email"`
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"` // 封禁截止，期间不能提交内容
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *User) IsModerator() bool {
	return u.Role >= RoleModerator
}

func (u *User) SuspendedAt(now time.Time) bool {
	return u.SuspendedUntil != nil && now.Before(*u.SuspendedUntil)
}
