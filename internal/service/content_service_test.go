package service

import (
	"context"
	"errors"
	"testing"
	"time"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.user(t, "alice")
	pending := e.photo(owner, model.StatusPending, t0.Add(-48*time.Hour))

	cases := []struct {
		name string
		in   SubmitInput
		code apperr.ErrorCode
	}{
		{"photo without title", SubmitInput{Kind: model.KindPhoto}, apperr.ErrBadRequest},
		{"tag without parent", SubmitInput{Kind: model.KindTag, Title: "x"}, apperr.ErrBadRequest},
		{"comment without body", SubmitInput{Kind: model.KindComment, ParentID: pending.ID}, apperr.ErrBadRequest},
		{"story without body", SubmitInput{Kind: model.KindStory, Title: "x"}, apperr.ErrBadRequest},
		{"tag on pending photo", SubmitInput{Kind: model.KindTag, ParentID: pending.ID, Title: "x"}, apperr.ErrNotFound},
		{"tag on missing photo", SubmitInput{Kind: model.KindTag, ParentID: 999, Title: "x"}, apperr.ErrNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := e.content.Submit(ctx, owner, c.in)
			assert.True(t, apperr.Is(err, c.code), "got %v", err)
		})
	}
}

func TestSubmit_RateLimitedCommentsDoNotCountRejectedAttempts(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.user(t, "alice")
	photo := e.photo(owner, model.StatusApproved, t0.Add(-time.Hour))
	limit := DefaultRateLimiterConfig().Windows[model.ActionComment][0].MaxEvents

	for i := int64(0); i < limit; i++ {
		_, err := e.content.Submit(ctx, owner, SubmitInput{Kind: model.KindComment, ParentID: photo.ID, Body: "nice"})
		require.NoError(t, err)
	}
	_, err := e.content.Submit(ctx, owner, SubmitInput{Kind: model.KindComment, ParentID: photo.ID, Body: "nice"})
	assert.True(t, apperr.Is(err, apperr.ErrRateLimitExceeded))

	n, _ := e.events.CountAfter(ctx, "1", model.ActionComment, t0.Add(-time.Minute))
	assert.Equal(t, limit, n)
}

func TestSubmit_StoreFailureReleasesReservation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.user(t, "alice")
	cfg := DefaultRateLimiterConfig()
	cfg.Windows[model.ActionStory] = model.RateWindowConfig{{Duration: time.Hour, MaxEvents: 1}}
	l, err := NewRateLimiter(e.events, cfg, e.clock, nil)
	require.NoError(t, err)
	e.content.limiter = l

	e.db.failContent = errors.New("mysql gone")
	_, err = e.content.Submit(ctx, owner, SubmitInput{Kind: model.KindStory, Title: "t", Body: "b"})
	require.Error(t, err)
	e.db.failContent = nil

	// 失败的提交不占用限流名额
	_, err = e.content.Submit(ctx, owner, SubmitInput{Kind: model.KindStory, Title: "t", Body: "b"})
	require.NoError(t, err)
}

func TestSubmit_ConcurrentPhotosRespectDailyQuota(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.user(t, "alice")

	entered := make(chan struct{})
	proceed := make(chan struct{})
	e.db.onCreate = func() {
		close(entered)
		<-proceed
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.content.Submit(ctx, owner, SubmitInput{Kind: model.KindPhoto, Title: "first"})
		done <- err
	}()
	<-entered

	// 第一张还没落库，新用户的唯一名额已被占用
	_, err := e.content.Submit(ctx, owner, SubmitInput{Kind: model.KindPhoto, Title: "second"})
	assert.True(t, apperr.Is(err, apperr.ErrQuotaExceeded), "got %v", err)

	close(proceed)
	require.NoError(t, <-done)

	st, err := e.quota.Resolve(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.UsedToday)
	assert.False(t, st.Allowed)
}

func TestSubmit_FailedPhotoFreesQuotaReservation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.user(t, "alice")

	e.db.failContent = errors.New("mysql gone")
	_, err := e.content.Submit(ctx, owner, SubmitInput{Kind: model.KindPhoto, Title: "first"})
	require.Error(t, err)
	e.db.failContent = nil

	_, err = e.content.Submit(ctx, owner, SubmitInput{Kind: model.KindPhoto, Title: "again"})
	require.NoError(t, err)
}

func TestGet_Visibility(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	photoOwner := e.user(t, "alice")
	tagger := e.user(t, "bob")
	stranger := e.user(t, "carol")
	photo := e.photo(photoOwner, model.StatusApproved, t0.Add(-time.Hour))

	tag, err := e.content.Submit(ctx, tagger, SubmitInput{Kind: model.KindTag, ParentID: photo.ID, Title: "tram"})
	require.NoError(t, err)

	for _, viewer := range []uint64{tagger, photoOwner} {
		got, err := e.content.Get(ctx, viewer, false, tag.ID)
		require.NoError(t, err)
		assert.Equal(t, tag.ID, got.ID)
	}
	_, err = e.content.Get(ctx, 0, true, tag.ID)
	assert.NoError(t, err)
	_, err = e.content.Get(ctx, stranger, false, tag.ID)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
	_, err = e.content.Get(ctx, 0, false, tag.ID)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))

	_, err = e.mod.Approve(ctx, tag.ID, moderatorID)
	require.NoError(t, err)
	got, err := e.content.Get(ctx, stranger, false, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
}

func TestRecent_CachedWithinTTL(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.user(t, "alice")
	e.photo(owner, model.StatusApproved, t0.Add(-time.Hour))

	first, err := e.content.Recent(ctx, model.KindPhoto, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// 绕过服务直接写库：TTL 内仍返回缓存结果
	e.photo(owner, model.StatusApproved, t0.Add(-time.Minute))
	second, err := e.content.Recent(ctx, model.KindPhoto, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	e.clock.Advance(31 * time.Second)
	third, err := e.content.Recent(ctx, model.KindPhoto, 10)
	require.NoError(t, err)
	assert.Len(t, third, 2)
}

func TestList_StoreFailureDegradesToEmpty(t *testing.T) {
	e := newTestEnv(t)
	e.db.failContent = errors.New("mysql gone")
	list, err := e.content.Recent(context.Background(), model.KindStory, 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSearch_RequiresQuery(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.content.Search(context.Background(), " a ")
	assert.True(t, apperr.Is(err, apperr.ErrBadRequest))
}
