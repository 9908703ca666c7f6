package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/pkg"
	"Photo_Archive/internal/repository/interfaces"

	"go.uber.org/zap"
)

type RateLimiterConfig struct {
	Windows map[model.Action]model.RateWindowConfig
	// 计数存储故障时拒绝写入的动作
	FailClosed    map[model.Action]bool
	LookupTimeout time.Duration
	// 影子预留的最长存活时间，覆盖 CanWrite 与 RecordWrite 之间的空档
	ShadowTTL time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Windows: map[model.Action]model.RateWindowConfig{
			model.ActionUpload:  {{Duration: time.Minute, MaxEvents: 3}, {Duration: time.Hour, MaxEvents: 10}, {Duration: 24 * time.Hour, MaxEvents: 30}},
			model.ActionTag:     {{Duration: time.Minute, MaxEvents: 10}, {Duration: time.Hour, MaxEvents: 60}, {Duration: 24 * time.Hour, MaxEvents: 300}},
			model.ActionComment: {{Duration: time.Minute, MaxEvents: 5}, {Duration: time.Hour, MaxEvents: 30}, {Duration: 24 * time.Hour, MaxEvents: 200}},
			model.ActionStory:   {{Duration: time.Hour, MaxEvents: 3}, {Duration: 24 * time.Hour, MaxEvents: 10}},
			model.ActionLike:    {{Duration: time.Minute, MaxEvents: 30}, {Duration: time.Hour, MaxEvents: 300}},
			model.ActionView:    {{Duration: time.Minute, MaxEvents: 120}},
		},
		FailClosed: map[model.Action]bool{
			model.ActionTag:     true,
			model.ActionComment: true,
			model.ActionStory:   true,
		},
		LookupTimeout: 200 * time.Millisecond,
		ShadowTTL:     10 * time.Second,
	}
}

const lockStripes = 64

// RateLimiter 多窗口滑动限流
type RateLimiter struct {
	events interfaces.RateEventRepository
	cfg    RateLimiterConfig
	clock  pkg.Clock
	logger *zap.Logger

	stripes [lockStripes]sync.Mutex
	mu      sync.Mutex
	shadow  map[string][]time.Time
}

func NewRateLimiter(events interfaces.RateEventRepository, cfg RateLimiterConfig, clock pkg.Clock, logger *zap.Logger) (*RateLimiter, error) {
	for action, w := range cfg.Windows {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("rate windows for %s: %w", action, err)
		}
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 200 * time.Millisecond
	}
	if cfg.ShadowTTL <= 0 {
		cfg.ShadowTTL = 10 * time.Second
	}
	if clock == nil {
		clock = pkg.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		events: events,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		shadow: make(map[string][]time.Time),
	}, nil
}

func shadowKey(subject string, action model.Action) string {
	return string(action) + "|" + subject
}

func (r *RateLimiter) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &r.stripes[h.Sum32()%lockStripes]
}

// CanWrite 检查所有窗口；通过后占一个影子预留，由 RecordWrite 或 Release 消费
func (r *RateLimiter) CanWrite(ctx context.Context, subjectID uint64, action model.Action) (*model.RateDecision, error) {
	windows, ok := r.cfg.Windows[action]
	if !ok {
		return &model.RateDecision{Allowed: true}, nil
	}
	subject := strconv.FormatUint(subjectID, 10)
	key := shadowKey(subject, action)

	l := r.stripe(key)
	l.Lock()
	defer l.Unlock()

	now := r.clock.Now()
	shadows := r.liveShadows(key, now)

	lctx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	defer cancel()

	decision := &model.RateDecision{Allowed: true, CountsPerWindow: make([]int64, len(windows))}
	for i, w := range windows {
		after := now.Add(-w.Duration)
		n, err := r.events.CountAfter(lctx, subject, action, after)
		if err != nil {
			if r.cfg.FailClosed[action] {
				r.logger.Warn("rate lookup failed, denying",
					zap.String("action", string(action)), zap.Uint64("subject_id", subjectID), zap.Error(err))
				return &model.RateDecision{Allowed: false}, apperr.StoreUnavailable(err)
			}
			r.logger.Warn("rate lookup failed, allowing",
				zap.String("action", string(action)), zap.Uint64("subject_id", subjectID), zap.Error(err))
			r.reserve(key, now)
			return &model.RateDecision{Allowed: true}, nil
		}
		for _, ts := range shadows {
			if ts.After(after) {
				n++
			}
		}
		decision.CountsPerWindow[i] = n
		if n >= w.MaxEvents && decision.Allowed {
			win := w
			decision.Allowed = false
			decision.ViolatedWindow = &win
		}
	}

	if !decision.Allowed {
		w := *decision.ViolatedWindow
		next := r.nextAvailable(lctx, subject, action, w, now, shadows)
		decision.NextAvailableAt = &next
		decision.RetryAfter = next.Sub(now)
		idx := 0
		for i := range windows {
			if windows[i] == w {
				idx = i
				break
			}
		}
		return decision, apperr.RateLimitExceeded(string(action), w.Duration, decision.CountsPerWindow[idx], w.MaxEvents, next)
	}

	r.reserve(key, now)
	return decision, nil
}

// nextAvailable 最小违规窗口内最早事件 + 窗口时长
func (r *RateLimiter) nextAvailable(ctx context.Context, subject string, action model.Action, w model.RateWindow, now time.Time, shadows []time.Time) time.Time {
	after := now.Add(-w.Duration)
	oldest, found, err := r.events.OldestAfter(ctx, subject, action, after)
	if err != nil {
		found = false
	}
	for _, ts := range shadows {
		if ts.After(after) && (!found || ts.Before(oldest)) {
			oldest, found = ts, true
		}
	}
	if !found {
		return now.Add(w.Duration)
	}
	return oldest.Add(w.Duration)
}

// RecordWrite 写入真正发生后追加持久事件；追加失败时保留影子预留直到过期
func (r *RateLimiter) RecordWrite(ctx context.Context, subjectID uint64, action model.Action) error {
	windows, ok := r.cfg.Windows[action]
	if !ok {
		return nil
	}
	subject := strconv.FormatUint(subjectID, 10)
	now := r.clock.Now()

	lctx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	defer cancel()
	if err := r.events.Append(lctx, subject, action, now, windows.Longest()); err != nil {
		r.logger.Error("rate event append failed",
			zap.String("action", string(action)), zap.Uint64("subject_id", subjectID), zap.Error(err))
		return apperr.StoreUnavailable(err)
	}
	r.consume(shadowKey(subject, action), true)
	return nil
}

// Release 写入未发生，归还预留
func (r *RateLimiter) Release(subjectID uint64, action model.Action) {
	r.consume(shadowKey(strconv.FormatUint(subjectID, 10), action), false)
}

// Windows 某动作的窗口配置
func (r *RateLimiter) Windows(action model.Action) model.RateWindowConfig {
	return r.cfg.Windows[action]
}

func (r *RateLimiter) liveShadows(key string, now time.Time) []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.shadow[key]
	live := list[:0]
	for _, ts := range list {
		if now.Sub(ts) < r.cfg.ShadowTTL {
			live = append(live, ts)
		}
	}
	if len(live) == 0 {
		delete(r.shadow, key)
		return nil
	}
	r.shadow[key] = live
	return append([]time.Time(nil), live...)
}

func (r *RateLimiter) reserve(key string, at time.Time) {
	r.mu.Lock()
	r.shadow[key] = append(r.shadow[key], at)
	r.mu.Unlock()
}

// consume oldest=true 消费最早的预留，否则归还最近的一个
func (r *RateLimiter) consume(key string, oldest bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.shadow[key]
	if len(list) == 0 {
		return
	}
	if oldest {
		list = list[1:]
	} else {
		list = list[:len(list)-1]
	}
	if len(list) == 0 {
		delete(r.shadow, key)
		return
	}
	r.shadow[key] = list
}
