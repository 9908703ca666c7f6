package service

import (
	"context"
	"testing"
	"time"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaResolver_TierFlipsExactlyAtThreshold(t *testing.T) {
	q := NewQuotaResolver(nil, DefaultTierRules(), time.UTC, nil)
	cases := []struct {
		approved int64
		tier     model.QuotaTier
		limit    int64
	}{
		{0, model.TierNewUser, 1},
		{2, model.TierNewUser, 1},
		{3, model.TierVerified, 3},
		{9, model.TierVerified, 3},
		{10, model.TierContributor, 10},
		{49, model.TierContributor, 10},
		{50, model.TierPowerUser, 30},
		{500, model.TierPowerUser, 30},
	}
	for _, c := range cases {
		rule, _ := q.RuleFor(c.approved)
		assert.Equal(t, c.tier, rule.Tier, "approved=%d", c.approved)
		assert.Equal(t, c.limit, rule.DailyLimit, "approved=%d", c.approved)
	}
	_, next := q.RuleFor(500)
	assert.Nil(t, next)
}

func TestQuotaResolver_ResolveCountsAttemptsSinceLocalMidnight(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.user(t, "alice")

	e.photo(owner, model.StatusApproved, t0.Add(-48*time.Hour))
	// 昨天的不算，今天的无论状态都算
	e.photo(owner, model.StatusRejected, t0.Add(-11*time.Hour))
	e.photo(owner, model.StatusRejected, t0.Add(-time.Hour))

	st, err := e.quota.Resolve(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, model.TierNewUser, st.Tier)
	assert.Equal(t, int64(1), st.ApprovedCount)
	assert.Equal(t, int64(1), st.UsedToday)
	assert.Equal(t, int64(0), st.RemainingToday)
	assert.False(t, st.Allowed)
	assert.True(t, st.ResetAt.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, st.NextTierHint, "2 more approved photos to reach VERIFIED")

	_, err = e.quota.Check(ctx, owner)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrQuotaExceeded))
	var appErr *apperr.AppError
	require.True(t, apperr.As(err, &appErr))
	assert.Equal(t, "NEW_USER", appErr.Details["tier"])
}

func TestQuotaResolver_UsesConfiguredTimeZone(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "bob")
	tokyo := time.FixedZone("JST", 9*3600)
	q := NewQuotaResolver(memContent{e.db}, nil, tokyo, e.clock)

	// t0 = 10:00 UTC = 19:00 JST；JST 零点是 15:00 UTC 前一天
	e.photo(owner, model.StatusPending, t0.Add(-9*time.Hour-30*time.Minute))
	st, err := q.Resolve(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.UsedToday)
	assert.True(t, st.ResetAt.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, tokyo)))
}

func TestQuotaResolver_ReserveCountsInflightUploads(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.user(t, "alice")

	st, release, err := e.quota.Reserve(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.UsedToday)

	st, _, err = e.quota.Reserve(ctx, owner)
	assert.True(t, apperr.Is(err, apperr.ErrQuotaExceeded))
	assert.Equal(t, int64(1), st.UsedToday)

	// 其他用户不受影响
	_, other, err := e.quota.Reserve(ctx, e.user(t, "bob"))
	require.NoError(t, err)
	other()

	release()
	release()
	_, again, err := e.quota.Reserve(ctx, owner)
	require.NoError(t, err)
	again()
}
