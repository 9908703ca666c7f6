package model

import (
	"errors"
	"time"
)

type Action string

const (
	ActionUpload  Action = "upload"
	ActionTag     Action = "tag"
	ActionComment Action = "comment"
	ActionStory   Action = "story"
	ActionLike    Action = "like"
	ActionView    Action = "view"
)

// ActionFor 内容类型到限流动作
func ActionFor(k ContentKind) Action {
	switch k {
	case KindTag:
		return ActionTag
	case KindComment:
		return ActionComment
	case KindStory:
		return ActionStory
	default:
		return ActionUpload
	}
}

type RateWindow struct {
	Duration  time.Duration `json:"duration"`
	MaxEvents int64         `json:"max_events"`
}

var ErrInvalidWindows = errors.New("rate windows must be non-empty, positive and strictly increasing")

// RateWindowConfig 按窗口时长升序排列
type RateWindowConfig []RateWindow

// Validate 窗口时长必须严格递增
func (c RateWindowConfig) Validate() error {
	if len(c) == 0 {
		return ErrInvalidWindows
	}
	var prev time.Duration
	for _, w := range c {
		if w.Duration <= prev || w.MaxEvents <= 0 {
			return ErrInvalidWindows
		}
		prev = w.Duration
	}
	return nil
}

// Longest 最长窗口，决定事件保留时间
func (c RateWindowConfig) Longest() time.Duration {
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].Duration
}

type RateDecision struct {
	Allowed         bool          `json:"allowed"`
	CountsPerWindow []int64       `json:"counts_per_window"`
	ViolatedWindow  *RateWindow   `json:"violated_window,omitempty"`
	NextAvailableAt *time.Time    `json:"next_available_at,omitempty"`
	RetryAfter      time.Duration `json:"-"`
}
