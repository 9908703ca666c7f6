package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/optimistic"
	"Photo_Archive/internal/pkg"
	"Photo_Archive/internal/repository/interfaces"

	"go.uber.org/zap"
)

// QueueEntry 版主待审列表中的一项
type QueueEntry struct {
	ItemID    uint64            `json:"item_id"`
	Kind      model.ContentKind `json:"kind"`
	OwnerID   uint64            `json:"owner_id"`
	ParentID  uint64            `json:"parent_id,omitempty"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body,omitempty"`
	Location  string            `json:"location,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func entryOf(item *model.ContentItem) QueueEntry {
	return QueueEntry{
		ItemID:    item.ID,
		Kind:      item.Kind,
		OwnerID:   item.OwnerID,
		ParentID:  item.ParentID,
		Title:     item.Title,
		Body:      item.Body,
		Location:  item.Location,
		CreatedAt: item.CreatedAt,
	}
}

// ModerationQueue 待审队列投影：通过/拒绝先从列表中暂时移除，写入失败或超时再放回
type ModerationQueue struct {
	mod     *ModerationService
	content interfaces.ContentRepository
	ctrl    *optimistic.Controller[QueueEntry]
	clock   pkg.Clock
	logger  *zap.Logger

	staleAfter time.Duration
	mu         sync.Mutex
	loadedAt   time.Time
}

func NewModerationQueue(mod *ModerationService, content interfaces.ContentRepository, commitTimeout, staleAfter time.Duration, clock pkg.Clock, logger *zap.Logger) *ModerationQueue {
	if clock == nil {
		clock = pkg.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &ModerationQueue{
		mod:        mod,
		content:    content,
		ctrl:       optimistic.NewController[QueueEntry](commitTimeout),
		clock:      clock,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

func queueKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Refresh 从存储重新加载 pending 内容
func (q *ModerationQueue) Refresh(ctx context.Context) error {
	list, err := q.content.Query(ctx, model.ContentFilter{
		Statuses: []model.ContentStatus{model.StatusPending},
		Limit:    200,
	})
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	items := make(map[string]QueueEntry, len(list))
	for i := range list {
		items[queueKey(list[i].ID)] = entryOf(&list[i])
	}
	q.ctrl.Load(items)
	q.mu.Lock()
	q.loadedAt = q.clock.Now()
	q.mu.Unlock()
	return nil
}

// List 按提交时间先后返回；投影过期时先刷新，刷新失败则返回现有投影
func (q *ModerationQueue) List(ctx context.Context, kind model.ContentKind) ([]QueueEntry, error) {
	q.mu.Lock()
	stale := q.loadedAt.IsZero() || q.clock.Now().Sub(q.loadedAt) >= q.staleAfter
	never := q.loadedAt.IsZero()
	q.mu.Unlock()
	if stale {
		if err := q.Refresh(ctx); err != nil {
			if never {
				return nil, err
			}
			q.logger.Warn("moderation queue refresh failed, serving previous projection", zap.Error(err))
		}
	}

	snap := q.ctrl.Snapshot()
	out := make([]QueueEntry, 0, len(snap))
	for _, e := range snap {
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *ModerationQueue) Approve(ctx context.Context, itemID, moderatorID uint64) (*model.ContentItem, error) {
	return q.resolve(ctx, itemID, func(ctx context.Context) (*model.ContentItem, error) {
		return q.mod.Approve(ctx, itemID, moderatorID)
	})
}

func (q *ModerationQueue) Reject(ctx context.Context, itemID, moderatorID uint64, reason string) (*model.ContentItem, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.MissingReason("reject")
	}
	return q.resolve(ctx, itemID, func(ctx context.Context) (*model.ContentItem, error) {
		return q.mod.Reject(ctx, itemID, moderatorID, reason)
	})
}

func (q *ModerationQueue) resolve(ctx context.Context, itemID uint64, do func(context.Context) (*model.ContentItem, error)) (*model.ContentItem, error) {
	key := queueKey(itemID)
	var result *model.ContentItem
	_, err := q.ctrl.Mutate(ctx, key,
		func(QueueEntry, bool) (QueueEntry, bool) { return QueueEntry{}, false },
		func(ctx context.Context) (QueueEntry, bool, error) {
			item, err := do(ctx)
			if err != nil {
				return QueueEntry{}, false, err
			}
			result = item
			return QueueEntry{}, false, nil
		})
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, optimistic.ErrInFlight):
		return nil, apperr.MutationInFlight(itemID)
	case errors.Is(err, optimistic.ErrTimeout):
		q.logger.Warn("moderation not confirmed in time, restored queue entry", zap.Uint64("item_id", itemID))
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, "moderation was not confirmed in time, please retry", err)
	}
	// 权威状态已不是 pending：不再放回队列
	if apperr.Is(err, apperr.ErrConflictingTransition) ||
		apperr.Is(err, apperr.ErrInvalidTransition) ||
		apperr.Is(err, apperr.ErrNotFound) {
		q.ctrl.Remove(key)
	}
	return nil, err
}
