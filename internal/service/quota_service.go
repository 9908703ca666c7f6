package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/pkg"
	"Photo_Archive/internal/repository/interfaces"
)

// DefaultTierRules 累计通过照片数 -> 每日上传额度
func DefaultTierRules() []model.TierRule {
	return []model.TierRule{
		{Tier: model.TierNewUser, Threshold: 0, DailyLimit: 1},
		{Tier: model.TierVerified, Threshold: 3, DailyLimit: 3},
		{Tier: model.TierContributor, Threshold: 10, DailyLimit: 10},
		{Tier: model.TierPowerUser, Threshold: 50, DailyLimit: 30},
	}
}

// quotaStripe 同一用户的预留与统计串行化；inflight 为已过检查、尚未落库的上传数
type quotaStripe struct {
	mu       sync.Mutex
	inflight map[uint64]int64
}

// QuotaResolver 档位按需计算，不落库
type QuotaResolver struct {
	content interfaces.ContentRepository
	rules   []model.TierRule
	loc     *time.Location
	clock   pkg.Clock
	stripes [lockStripes]quotaStripe
}

func NewQuotaResolver(content interfaces.ContentRepository, rules []model.TierRule, loc *time.Location, clock pkg.Clock) *QuotaResolver {
	if len(rules) == 0 {
		rules = DefaultTierRules()
	}
	sorted := append([]model.TierRule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = pkg.SystemClock{}
	}
	q := &QuotaResolver{content: content, rules: sorted, loc: loc, clock: clock}
	for i := range q.stripes {
		q.stripes[i].inflight = make(map[uint64]int64)
	}
	return q
}

func (q *QuotaResolver) stripe(ownerID uint64) *quotaStripe {
	return &q.stripes[ownerID%lockStripes]
}

// RuleFor 阈值 <= approved 的最高档，以及下一档（若有）
func (q *QuotaResolver) RuleFor(approved int64) (model.TierRule, *model.TierRule) {
	cur := q.rules[0]
	var next *model.TierRule
	for i, r := range q.rules {
		if r.Threshold <= approved {
			cur = r
			continue
		}
		next = &q.rules[i]
		break
	}
	return cur, next
}

func (q *QuotaResolver) Resolve(ctx context.Context, ownerID uint64) (*model.QuotaStatus, error) {
	approved, err := q.content.CountApproved(ctx, ownerID, model.KindPhoto)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	now := q.clock.Now()
	dayStart := pkg.StartOfDay(now, q.loc)
	// 当天创建的都算，不看状态，防止被拒后反复提交刷额度
	used, err := q.content.CountCreatedSince(ctx, ownerID, model.KindPhoto, dayStart)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}

	rule, next := q.RuleFor(approved)
	st := &model.QuotaStatus{
		Tier:          rule.Tier,
		ApprovedCount: approved,
		DailyLimit:    rule.DailyLimit,
		ResetAt:       dayStart.AddDate(0, 0, 1),
	}
	applyUsed(st, used)
	if next != nil {
		st.NextTierHint = fmt.Sprintf("%d more approved photos to reach %s (%d uploads per day)",
			next.Threshold-approved, next.Tier, next.DailyLimit)
	}
	return st, nil
}

func applyUsed(st *model.QuotaStatus, used int64) {
	st.UsedToday = used
	st.RemainingToday = st.DailyLimit - used
	if st.RemainingToday < 0 {
		st.RemainingToday = 0
	}
	st.Allowed = st.RemainingToday > 0
}

// Check 额度用尽时返回 QuotaExceeded
func (q *QuotaResolver) Check(ctx context.Context, ownerID uint64) (*model.QuotaStatus, error) {
	st, err := q.Resolve(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !st.Allowed {
		return st, apperr.QuotaExceeded(st.Tier.String(), st.DailyLimit, st.UsedToday, st.ResetAt)
	}
	return st, nil
}

// Reserve 与 Check 相同，但通过后占一个名额直到 release 被调用。
// release 须在照片落库(或失败)之后调用；同一用户的 Reserve 与 release 互斥，
// 因此后来者要么看到在途名额，要么看到已提交的行。
func (q *QuotaResolver) Reserve(ctx context.Context, ownerID uint64) (*model.QuotaStatus, func(), error) {
	sp := q.stripe(ownerID)
	sp.mu.Lock()
	defer sp.mu.Unlock()

	st, err := q.Resolve(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if n := sp.inflight[ownerID]; n > 0 {
		applyUsed(st, st.UsedToday+n)
	}
	if !st.Allowed {
		return st, nil, apperr.QuotaExceeded(st.Tier.String(), st.DailyLimit, st.UsedToday, st.ResetAt)
	}
	sp.inflight[ownerID]++

	var once sync.Once
	release := func() {
		once.Do(func() {
			sp.mu.Lock()
			defer sp.mu.Unlock()
			if sp.inflight[ownerID]--; sp.inflight[ownerID] <= 0 {
				delete(sp.inflight, ownerID)
			}
		})
	}
	return st, release, nil
}
