package service

import (
	"context"
	"testing"
	"time"

	"Photo_Archive/internal/cache"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/pkg"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *memDB
	clock    *pkg.ManualClock
	events   *memRateEvents
	cache    *cache.ReadThrough
	limiter  *RateLimiter
	quota    *QuotaResolver
	mod      *ModerationService
	content  *ContentService
	engage   *EngagementService
	likes    *memLikeCache
	locker   *memLocker
	sessions *memSessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		db:       newMemDB(),
		clock:    pkg.NewManualClock(t0),
		events:   newMemRateEvents(),
		locker:   newMemLocker(),
		sessions: newMemSessions(),
		likes:    newMemLikeCache(),
	}
	e.cache = cache.NewReadThrough(cache.NewMemoryBackend(time.Minute, time.Minute), e.clock, nil, time.Second)

	limiter, err := NewRateLimiter(e.events, DefaultRateLimiterConfig(), e.clock, nil)
	require.NoError(t, err)
	e.limiter = limiter
	e.quota = NewQuotaResolver(memContent{e.db}, DefaultTierRules(), time.UTC, e.clock)
	e.mod = NewModerationService(ModerationDeps{
		Content: memContent{e.db},
		Stats:   memStats{e.db},
		Badges:  memBadges{e.db},
		Users:   memUsers{e.db},
		Cache:   e.cache,
		Clock:   e.clock,
	})
	e.content = NewContentService(ContentDeps{
		Content:    memContent{e.db},
		Users:      memUsers{e.db},
		Moderation: e.mod,
		Limiter:    e.limiter,
		Quota:      e.quota,
		Cache:      e.cache,
		TTL:        30 * time.Second,
		Clock:      e.clock,
	})
	e.engage = NewEngagementService(memContent{e.db}, memEngagement{e.db}, e.likes, e.locker, nil)
	return e
}

// user 建一个普通用户
func (e *testEnv) user(t *testing.T, name string) uint64 {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", Password: "x"}
	require.NoError(t, memUsers{e.db}.Create(context.Background(), u))
	return u.ID
}

func (e *testEnv) photo(owner uint64, status model.ContentStatus, createdAt time.Time) *model.ContentItem {
	return e.db.put(model.ContentItem{
		Kind:      model.KindPhoto,
		OwnerID:   owner,
		Status:    status,
		Title:     "old bridge",
		Location:  "Riverside",
		CreatedAt: createdAt,
	})
}
