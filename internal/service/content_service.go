package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"Photo_Archive/internal/cache"
	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/pkg"
	"Photo_Archive/internal/repository/interfaces"

	"go.uber.org/zap"
)

const (
	maxTitleLen    = 200
	maxBodyLen     = 5000
	maxLocationLen = 128
	locationLimit  = 100
	childrenLimit  = 200
	searchLimit    = 50
)

// SubmitInput 一次内容提交
type SubmitInput struct {
	Kind     model.ContentKind
	ParentID uint64
	Title    string
	Body     string
	Location string
}

// ContentService 内容提交的准入（限流、额度）以及走缓存的公开查询
type ContentService struct {
	content interfaces.ContentRepository
	users   interfaces.UserRepository
	mod     *ModerationService
	limiter *RateLimiter
	quota   *QuotaResolver
	cache   *cache.ReadThrough
	ttl     time.Duration
	clock   pkg.Clock
	logger  *zap.Logger
}

type ContentDeps struct {
	Content    interfaces.ContentRepository
	Users      interfaces.UserRepository
	Moderation *ModerationService
	Limiter    *RateLimiter
	Quota      *QuotaResolver
	Cache      *cache.ReadThrough
	TTL        time.Duration
	Clock      pkg.Clock
	Logger     *zap.Logger
}

func NewContentService(d ContentDeps) *ContentService {
	s := &ContentService{
		content: d.Content,
		users:   d.Users,
		mod:     d.Moderation,
		limiter: d.Limiter,
		quota:   d.Quota,
		cache:   d.Cache,
		ttl:     d.TTL,
		clock:   d.Clock,
		logger:  d.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = 30 * time.Second
	}
	if s.clock == nil {
		s.clock = pkg.SystemClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (in *SubmitInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.Location = strings.TrimSpace(in.Location)
	if utf8.RuneCountInString(in.Title) > maxTitleLen {
		return apperr.BadRequest("title is too long")
	}
	if utf8.RuneCountInString(in.Body) > maxBodyLen {
		return apperr.BadRequest("body is too long")
	}
	if utf8.RuneCountInString(in.Location) > maxLocationLen {
		return apperr.BadRequest("location is too long")
	}
	switch in.Kind {
	case model.KindPhoto:
		if in.Title == "" {
			return apperr.BadRequest("photo title required")
		}
	case model.KindTag:
		if in.Title == "" {
			return apperr.BadRequest("tag label required")
		}
	case model.KindComment:
		if in.Body == "" {
			return apperr.BadRequest("comment body required")
		}
	case model.KindStory:
		if in.Title == "" || in.Body == "" {
			return apperr.BadRequest("story title and body required")
		}
	default:
		return apperr.BadRequest("unknown content kind")
	}
	if in.Kind.NeedsParent() && in.ParentID == 0 {
		return apperr.BadRequest("parent photo required")
	}
	if !in.Kind.NeedsParent() {
		in.ParentID = 0
	}
	return nil
}

// Submit 校验 -> 封禁 -> 限流 -> 额度(仅照片) -> 以 pending 落库 -> 记录限流事件
func (s *ContentService) Submit(ctx context.Context, ownerID uint64, in SubmitInput) (*model.ContentItem, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if in.Kind.NeedsParent() {
		parent, err := s.content.FindByID(ctx, in.ParentID)
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperr.NotFound("photo", in.ParentID)
		}
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		if parent.Kind != model.KindPhoto || parent.Status != model.StatusApproved {
			return nil, apperr.NotFound("photo", in.ParentID)
		}
	}

	user, err := s.users.FindByID(ctx, ownerID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperr.Unauthorized("unknown user")
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	if user.SuspendedAt(s.clock.Now()) {
		return nil, apperr.Forbidden("account is suspended").With("suspended_until", *user.SuspendedUntil)
	}

	action := model.ActionFor(in.Kind)
	if _, err := s.limiter.CanWrite(ctx, ownerID, action); err != nil {
		return nil, err
	}
	if in.Kind == model.KindPhoto {
		_, release, err := s.quota.Reserve(ctx, ownerID)
		if err != nil {
			s.limiter.Release(ownerID, action)
			return nil, err
		}
		// 落库后才释放，并发上传看得到在途名额
		defer release()
	}

	item := &model.ContentItem{
		Kind:     in.Kind,
		OwnerID:  ownerID,
		ParentID: in.ParentID,
		Title:    in.Title,
		Body:     in.Body,
		Location: in.Location,
	}
	if err := s.mod.Submit(ctx, item); err != nil {
		s.limiter.Release(ownerID, action)
		return nil, err
	}
	if err := s.limiter.RecordWrite(ctx, ownerID, action); err != nil {
		s.logger.Warn("record rate event failed", zap.Uint64("item_id", item.ID), zap.Error(err))
	}
	return item, nil
}

// Get 按可见性返回单条内容；不可见与不存在同样返回 NotFound
func (s *ContentService) Get(ctx context.Context, viewerID uint64, moderator bool, id uint64) (*model.ContentItem, error) {
	item, err := s.cachedItem(ctx, id)
	if err != nil {
		return nil, err
	}
	var parentOwner uint64
	if item.Status == model.StatusPending && item.Kind.NeedsParent() && !moderator && viewerID != item.OwnerID {
		if parent, err := s.cachedItem(ctx, item.ParentID); err == nil {
			parentOwner = parent.OwnerID
		}
	}
	if !item.VisibleTo(viewerID, parentOwner, moderator) {
		return nil, apperr.NotFound("item", id)
	}
	return item, nil
}

func (s *ContentService) cachedItem(ctx context.Context, id uint64) (*model.ContentItem, error) {
	item, err := cache.GetOrCompute(ctx, s.cache, cache.ItemKey(id), s.ttl, func(ctx context.Context) (*model.ContentItem, error) {
		return s.content.FindByID(ctx, id)
	})
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperr.NotFound("item", id)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return item, nil
}

func (s *ContentService) ByLocation(ctx context.Context, location string) ([]model.ContentItem, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, apperr.BadRequest("location required")
	}
	return s.list(ctx, cache.LocationKey(location), model.ContentFilter{
		Kind:     model.KindPhoto,
		Location: location,
		Limit:    locationLimit,
	})
}

func (s *ContentService) Recent(ctx context.Context, kind model.ContentKind, limit int) ([]model.ContentItem, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.list(ctx, cache.RecentKey(kind, limit), model.ContentFilter{Kind: kind, Limit: limit})
}

// Children 某张照片下已通过的标签或评论
func (s *ContentService) Children(ctx context.Context, parentID uint64, kind model.ContentKind) ([]model.ContentItem, error) {
	if !kind.NeedsParent() {
		return nil, apperr.BadRequest("only tags and comments belong to a photo")
	}
	return s.list(ctx, cache.ParentKey(parentID, kind), model.ContentFilter{
		Kind:     kind,
		ParentID: parentID,
		Limit:    childrenLimit,
	})
}

func (s *ContentService) Search(ctx context.Context, query string) ([]model.ContentItem, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < 2 {
		return nil, apperr.BadRequest("search query must be at least 2 characters")
	}
	return s.list(ctx, cache.SearchKey(query), model.ContentFilter{Search: query, Limit: searchLimit})
}

// list 只返回 approved；存储不可用时读路径降级为空结果
func (s *ContentService) list(ctx context.Context, key string, f model.ContentFilter) ([]model.ContentItem, error) {
	f.Statuses = []model.ContentStatus{model.StatusApproved}
	items, err := cache.GetOrCompute(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]model.ContentItem, error) {
		return s.content.Query(ctx, f)
	})
	if err != nil {
		s.logger.Warn("content query failed, serving empty result", zap.String("key", key), zap.Error(err))
		return []model.ContentItem{}, nil
	}
	if items == nil {
		items = []model.ContentItem{}
	}
	return items, nil
}
