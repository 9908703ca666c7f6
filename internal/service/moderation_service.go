package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"Photo_Archive/internal/cache"
	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/pkg"
	"Photo_Archive/internal/repository/interfaces"

	"go.uber.org/zap"
)

// ModerationService 内容状态机：pending -> approved/rejected, approved -> deleted/approved(编辑)
type ModerationService struct {
	content interfaces.ContentRepository
	stats   interfaces.StatsRepository
	badges  interfaces.BadgeRepository
	users   interfaces.UserRepository
	cache   *cache.ReadThrough
	rules   []BadgeRule
	clock   pkg.Clock
	logger  *zap.Logger
}

type ModerationDeps struct {
	Content interfaces.ContentRepository
	Stats   interfaces.StatsRepository
	Badges  interfaces.BadgeRepository
	Users   interfaces.UserRepository
	Cache   *cache.ReadThrough
	Rules   []BadgeRule
	Clock   pkg.Clock
	Logger  *zap.Logger
}

func NewModerationService(d ModerationDeps) *ModerationService {
	s := &ModerationService{
		content: d.Content,
		stats:   d.Stats,
		badges:  d.Badges,
		users:   d.Users,
		cache:   d.Cache,
		rules:   d.Rules,
		clock:   d.Clock,
		logger:  d.Logger,
	}
	if s.rules == nil {
		s.rules = DefaultBadgeRules()
	}
	if s.clock == nil {
		s.clock = pkg.SystemClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Submit 以 pending 落库；当日额度靠这条带日期的记录隐式占用，不发通知
func (s *ModerationService) Submit(ctx context.Context, item *model.ContentItem) error {
	item.ID = 0
	item.Status = model.StatusPending
	item.Version = 1
	item.ModeratedBy = nil
	item.ModeratedAt = nil
	item.RejectionReason = ""
	item.LikeCount, item.ViewCount = 0, 0
	now := s.clock.Now()
	item.CreatedAt, item.UpdatedAt = now, now
	if err := s.content.Create(ctx, item); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// Approve 审核通过。状态更新与通知同事务；之后的缓存、统计、徽章失败只记日志
func (s *ModerationService) Approve(ctx context.Context, itemID, moderatorID uint64) (*model.ContentItem, error) {
	item, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != model.StatusPending {
		return nil, apperr.InvalidTransition("approve", string(item.Status))
	}
	note := model.NewNotification(item.OwnerID, model.ApprovedKind(item.Kind), model.NotificationPayload{
		ItemID:   item.ID,
		ItemKind: string(item.Kind),
		ActorID:  moderatorID,
	})
	updated, err := s.transition(ctx, item, model.StatusApproved, moderatorID, "", note)
	if err != nil {
		return nil, err
	}

	ectx := context.WithoutCancel(ctx)
	s.invalidate(ectx, cache.PlanFor(updated))
	s.refreshOwner(ectx, updated.OwnerID)
	return updated, nil
}

// Reject 必须给出原因；被拒内容保留记录但不再出现在任何查询中
func (s *ModerationService) Reject(ctx context.Context, itemID, moderatorID uint64, reason string) (*model.ContentItem, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.MissingReason("reject")
	}
	item, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != model.StatusPending {
		return nil, apperr.InvalidTransition("reject", string(item.Status))
	}
	note := model.NewNotification(item.OwnerID, model.RejectedKind(item.Kind), model.NotificationPayload{
		ItemID:   item.ID,
		ItemKind: string(item.Kind),
		ActorID:  moderatorID,
		Reason:   reason,
	})
	updated, err := s.transition(ctx, item, model.StatusRejected, moderatorID, reason, note)
	if err != nil {
		return nil, err
	}
	s.invalidate(context.WithoutCancel(ctx), cache.PlanFor(updated))
	return updated, nil
}

// EditApproved 只允许编辑 approved 内容，状态不变；编辑者不是作者时通知变更字段
func (s *ModerationService) EditApproved(ctx context.Context, itemID, editorID uint64, fields map[string]string) (*model.ContentItem, error) {
	item, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != model.StatusApproved {
		return nil, apperr.InvalidTransition("edit", string(item.Status))
	}
	before := item.EditableFields()
	for k := range fields {
		if _, ok := before[k]; !ok {
			return nil, apperr.BadRequest("field " + k + " cannot be edited")
		}
		if k == "location" && item.Kind != model.KindPhoto {
			return nil, apperr.BadRequest("location applies to photos only")
		}
	}
	// 合并后按提交时的同一套规则校验
	merged := SubmitInput{Kind: item.Kind, ParentID: item.ParentID, Title: item.Title, Body: item.Body, Location: item.Location}
	if v, ok := fields["title"]; ok {
		merged.Title = v
	}
	if v, ok := fields["body"]; ok {
		merged.Body = v
	}
	if v, ok := fields["location"]; ok {
		merged.Location = v
	}
	if err := merged.normalize(); err != nil {
		return nil, err
	}
	after := map[string]string{"title": merged.Title, "body": merged.Body, "location": merged.Location}
	changes := make(map[string]any)
	var changed []string
	for k := range fields {
		if after[k] != before[k] {
			changes[k] = after[k]
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return item, nil
	}
	sort.Strings(changed)

	var notes []model.Notification
	if item.OwnerID != editorID {
		notes = append(notes, model.NewNotification(item.OwnerID, model.NotifyContentChanged, model.NotificationPayload{
			ItemID:        item.ID,
			ItemKind:      string(item.Kind),
			ActorID:       editorID,
			ChangedFields: changed,
		}))
	}
	updated, err := s.content.UpdateApproved(ctx, item.ID, item.Version, changes, s.clock.Now(), notes...)
	if err != nil {
		return nil, s.translateWrite(item.ID, err)
	}
	// 地点变更时新旧两个 location key 都要失效
	s.invalidate(context.WithoutCancel(ctx), cache.PlanFor(item).Merge(cache.PlanFor(updated)))
	return updated, nil
}

// DeleteApproved 版主删除已通过内容，必须给出原因
func (s *ModerationService) DeleteApproved(ctx context.Context, itemID, moderatorID uint64, reason string) (*model.ContentItem, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.MissingReason("delete")
	}
	item, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != model.StatusApproved {
		return nil, apperr.InvalidTransition("delete", string(item.Status))
	}
	var notes []model.Notification
	if item.OwnerID != moderatorID {
		notes = append(notes, model.NewNotification(item.OwnerID, model.NotifyContentDeleted, model.NotificationPayload{
			ItemID:   item.ID,
			ItemKind: string(item.Kind),
			ActorID:  moderatorID,
			Reason:   reason,
		}))
	}
	updated, err := s.transition(ctx, item, model.StatusDeleted, moderatorID, reason, notes...)
	if err != nil {
		return nil, err
	}
	ectx := context.WithoutCancel(ctx)
	s.invalidate(ectx, cache.PlanFor(updated))
	// 删除的内容带走了其点赞/浏览以及通过数
	s.refreshOwner(ectx, updated.OwnerID)
	return updated, nil
}

// Withdraw 作者撤回自己的 pending 或 approved 内容，不发通知
func (s *ModerationService) Withdraw(ctx context.Context, itemID, ownerID uint64) (*model.ContentItem, error) {
	item, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, apperr.Forbidden("only the owner can withdraw this item")
	}
	if item.Status.Terminal() {
		return nil, apperr.InvalidTransition("withdraw", string(item.Status))
	}
	wasApproved := item.Status == model.StatusApproved
	updated, err := s.transition(ctx, item, model.StatusDeleted, 0, "")
	if err != nil {
		return nil, err
	}
	ectx := context.WithoutCancel(ctx)
	s.invalidate(ectx, cache.PlanFor(updated))
	if wasApproved {
		s.refreshOwner(ectx, updated.OwnerID)
	}
	return updated, nil
}

// SuspendUser 封禁用户到指定时间
func (s *ModerationService) SuspendUser(ctx context.Context, userID, moderatorID uint64, until time.Time, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.MissingReason("suspend")
	}
	if !until.After(s.clock.Now()) {
		return apperr.BadRequest("suspension must end in the future")
	}
	note := model.NewNotification(userID, model.NotifyAccountSuspended, model.NotificationPayload{
		ActorID:        moderatorID,
		Reason:         reason,
		SuspendedUntil: &until,
	})
	if err := s.users.Suspend(ctx, userID, until, note); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return apperr.NotFound("user", userID)
		}
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// RecomputeStats 重算作者数据并评估徽章，返回重算结果
func (s *ModerationService) RecomputeStats(ctx context.Context, ownerID uint64) (*model.UserStats, []string, error) {
	stats, err := s.stats.Recompute(ctx, ownerID, s.clock.Now())
	if err != nil {
		return nil, nil, apperr.StoreUnavailable(err)
	}
	var awarded []string
	for _, badge := range QualifiedBadges(s.rules, stats) {
		note := model.NewNotification(ownerID, model.NotifyBadgeAwarded, model.NotificationPayload{Badge: badge})
		ok, err := s.badges.Award(ctx, ownerID, badge, note)
		if err != nil {
			s.logger.Warn("award badge failed", zap.Uint64("owner_id", ownerID), zap.String("badge", badge), zap.Error(err))
			continue
		}
		if ok {
			awarded = append(awarded, badge)
		}
	}
	return stats, awarded, nil
}

// OwnerStats 只读：返回审核流水线最近一次重算的数据与已获得的徽章，不触发重算
func (s *ModerationService) OwnerStats(ctx context.Context, ownerID uint64) (*model.UserStats, []string, error) {
	stats, err := s.stats.Get(ctx, ownerID)
	if err != nil {
		return nil, nil, apperr.StoreUnavailable(err)
	}
	badges, err := s.badges.List(ctx, ownerID)
	if err != nil {
		return nil, nil, apperr.StoreUnavailable(err)
	}
	return stats, badges, nil
}

func (s *ModerationService) refreshOwner(ctx context.Context, ownerID uint64) {
	if _, awarded, err := s.RecomputeStats(ctx, ownerID); err != nil {
		s.logger.Warn("recompute stats failed", zap.Uint64("owner_id", ownerID), zap.Error(err))
	} else if len(awarded) > 0 {
		s.logger.Info("badges awarded", zap.Uint64("owner_id", ownerID), zap.Strings("badges", awarded))
	}
}

func (s *ModerationService) invalidate(ctx context.Context, plan cache.Plan) {
	if s.cache == nil {
		return
	}
	// 失败已在缓存层记录，条目会在 TTL 后自然过期
	_ = s.cache.Apply(ctx, plan)
}

func (s *ModerationService) load(ctx context.Context, id uint64) (*model.ContentItem, error) {
	item, err := s.content.FindByID(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperr.NotFound("item", id)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return item, nil
}

func (s *ModerationService) transition(ctx context.Context, item *model.ContentItem, to model.ContentStatus, actorID uint64, reason string, notes ...model.Notification) (*model.ContentItem, error) {
	updated, err := s.content.Transition(ctx, model.Transition{
		ItemID:      item.ID,
		From:        item.Status,
		To:          to,
		Version:     item.Version,
		ModeratorID: actorID,
		Reason:      reason,
		At:          s.clock.Now(),
	}, notes...)
	if err != nil {
		return nil, s.translateWrite(item.ID, err)
	}
	s.logger.Info("content transition",
		zap.Uint64("item_id", item.ID),
		zap.String("from", string(item.Status)),
		zap.String("to", string(to)),
		zap.Uint64("actor_id", actorID))
	return updated, nil
}

// translateWrite 条件更新未命中说明被别人抢先，作为冲突上报
func (s *ModerationService) translateWrite(id uint64, err error) error {
	switch {
	case errors.Is(err, interfaces.ErrStaleVersion):
		return apperr.ConflictingTransition(id)
	case errors.Is(err, interfaces.ErrNotFound):
		return apperr.NotFound("item", id)
	}
	return apperr.StoreUnavailable(err)
}
