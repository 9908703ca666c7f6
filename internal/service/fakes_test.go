package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"Photo_Archive/internal/model"
	"Photo_Archive/internal/repository/interfaces"
)

// memDB 各仓储接口共用的内存数据
type memDB struct {
	mu       sync.Mutex
	items    map[uint64]*model.ContentItem
	nextItem uint64
	records  map[engKey]bool
	notes    []model.Notification
	nextNote uint64
	users    map[uint64]*model.User
	nextUser uint64
	stats    map[uint64]*model.UserStats
	badges   map[uint64][]string

	failContent  error
	failStats    error
	onTransition func()
	onCreate     func()
}

type engKey struct {
	user, item uint64
	kind       model.EngagementKind
}

func newMemDB() *memDB {
	return &memDB{
		items:   make(map[uint64]*model.ContentItem),
		records: make(map[engKey]bool),
		users:   make(map[uint64]*model.User),
		stats:   make(map[uint64]*model.UserStats),
		badges:  make(map[uint64][]string),
	}
}

func (db *memDB) appendNotes(notes []model.Notification) {
	for _, n := range notes {
		db.nextNote++
		n.ID = db.nextNote
		db.notes = append(db.notes, n)
	}
}

// put 直接写入一条内容，测试准备数据用
func (db *memDB) put(item model.ContentItem) *model.ContentItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextItem++
	item.ID = db.nextItem
	if item.Version == 0 {
		item.Version = 1
	}
	cp := item
	db.items[item.ID] = &cp
	return &item
}

func (db *memDB) item(id uint64) model.ContentItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.items[id]
}

func (db *memDB) notesFor(recipient uint64, kind model.NotificationKind) []model.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.Notification
	for _, n := range db.notes {
		if n.RecipientID == recipient && n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type memContent struct{ db *memDB }

func (r memContent) Create(_ context.Context, item *model.ContentItem) error {
	r.db.mu.Lock()
	hook := r.db.onCreate
	r.db.onCreate = nil
	r.db.mu.Unlock()
	if hook != nil {
		hook()
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failContent != nil {
		return r.db.failContent
	}
	r.db.nextItem++
	item.ID = r.db.nextItem
	cp := *item
	r.db.items[item.ID] = &cp
	return nil
}

func (r memContent) FindByID(_ context.Context, id uint64) (*model.ContentItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failContent != nil {
		return nil, r.db.failContent
	}
	it, ok := r.db.items[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (r memContent) Transition(_ context.Context, t model.Transition, notes ...model.Notification) (*model.ContentItem, error) {
	if hook := r.db.onTransition; hook != nil {
		r.db.onTransition = nil
		hook()
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failContent != nil {
		return nil, r.db.failContent
	}
	it, ok := r.db.items[t.ItemID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if it.Status != t.From || it.Version != t.Version {
		return nil, interfaces.ErrStaleVersion
	}
	it.Status = t.To
	it.Version++
	it.UpdatedAt = t.At
	if t.ModeratorID != 0 {
		id, at := t.ModeratorID, t.At
		it.ModeratedBy, it.ModeratedAt = &id, &at
	}
	if t.Reason != "" {
		it.RejectionReason = t.Reason
	}
	r.db.appendNotes(notes)
	cp := *it
	return &cp, nil
}

func (r memContent) UpdateApproved(_ context.Context, id uint64, version int64, fields map[string]any, at time.Time, notes ...model.Notification) (*model.ContentItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failContent != nil {
		return nil, r.db.failContent
	}
	it, ok := r.db.items[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if it.Status != model.StatusApproved || it.Version != version {
		return nil, interfaces.ErrStaleVersion
	}
	for k, v := range fields {
		switch k {
		case "title":
			it.Title = v.(string)
		case "body":
			it.Body = v.(string)
		case "location":
			it.Location = v.(string)
		}
	}
	it.Version++
	it.UpdatedAt = at
	r.db.appendNotes(notes)
	cp := *it
	return &cp, nil
}

func (r memContent) Query(_ context.Context, f model.ContentFilter) ([]model.ContentItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failContent != nil {
		return nil, r.db.failContent
	}
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = []model.ContentStatus{model.StatusApproved}
	}
	var out []model.ContentItem
	for _, it := range r.db.items {
		okStatus := false
		for _, s := range statuses {
			if it.Status == s {
				okStatus = true
			}
		}
		if !okStatus ||
			(f.Kind != "" && it.Kind != f.Kind) ||
			(f.OwnerID != 0 && it.OwnerID != f.OwnerID) ||
			(f.ParentID != 0 && it.ParentID != f.ParentID) ||
			(f.Location != "" && !strings.EqualFold(it.Location, f.Location)) {
			continue
		}
		if f.Search != "" && !strings.Contains(it.Title, f.Search) && !strings.Contains(it.Body, f.Search) {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memContent) CountApproved(_ context.Context, ownerID uint64, kind model.ContentKind) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, it := range r.db.items {
		if it.OwnerID == ownerID && it.Kind == kind && it.Status == model.StatusApproved {
			n++
		}
	}
	return n, nil
}

func (r memContent) CountCreatedSince(_ context.Context, ownerID uint64, kind model.ContentKind, since time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, it := range r.db.items {
		if it.OwnerID == ownerID && it.Kind == kind && !it.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type memEngagement struct{ db *memDB }

func (r memEngagement) ToggleLike(_ context.Context, userID, itemID uint64, onLike ...model.Notification) (bool, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	it, ok := r.db.items[itemID]
	if !ok {
		return false, 0, interfaces.ErrNotFound
	}
	k := engKey{userID, itemID, model.EngagementLike}
	if r.db.records[k] {
		delete(r.db.records, k)
		if it.LikeCount > 0 {
			it.LikeCount--
		}
		return false, it.LikeCount, nil
	}
	r.db.records[k] = true
	it.LikeCount++
	r.db.appendNotes(onLike)
	return true, it.LikeCount, nil
}

func (r memEngagement) RecordView(_ context.Context, userID, itemID uint64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k := engKey{userID, itemID, model.EngagementView}
	if r.db.records[k] {
		return false, nil
	}
	r.db.records[k] = true
	r.db.items[itemID].ViewCount++
	return true, nil
}

func (r memEngagement) IsLiked(_ context.Context, userID, itemID uint64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.records[engKey{userID, itemID, model.EngagementLike}], nil
}

func (r memEngagement) LikeCount(_ context.Context, itemID uint64) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	it, ok := r.db.items[itemID]
	if !ok {
		return 0, interfaces.ErrNotFound
	}
	return it.LikeCount, nil
}

func (r memEngagement) Likers(_ context.Context, itemID uint64, limit int) ([]uint64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []uint64
	for k, ok := range r.db.records {
		if ok && k.item == itemID && k.kind == model.EngagementLike {
			ids = append(ids, k.user)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type memCounters struct{ db *memDB }

func (r memCounters) ReconcileList(_ context.Context, batch int, lastID uint64) ([]interfaces.CounterPair, uint64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []uint64
	for id, it := range r.db.items {
		if id > lastID && it.Status == model.StatusApproved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > batch {
		ids = ids[:batch]
	}
	var out []interfaces.CounterPair
	for _, id := range ids {
		it := r.db.items[id]
		out = append(out, interfaces.CounterPair{ID: id, LikeCount: it.LikeCount, ViewCount: it.ViewCount})
	}
	if len(out) == 0 {
		return nil, lastID, nil
	}
	return out, out[len(out)-1].ID, nil
}

func (r memCounters) RealCounts(_ context.Context, itemID uint64) (int64, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var likes, views int64
	for k := range r.db.records {
		if k.item != itemID {
			continue
		}
		if k.kind == model.EngagementLike {
			likes++
		} else {
			views++
		}
	}
	return likes, views, nil
}

func (r memCounters) FixCounts(_ context.Context, itemID uint64, likes, views int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	it := r.db.items[itemID]
	it.LikeCount, it.ViewCount = likes, views
	return nil
}

type memStats struct{ db *memDB }

func (r memStats) Recompute(_ context.Context, ownerID uint64, at time.Time) (*model.UserStats, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failStats != nil {
		return nil, r.db.failStats
	}
	st := &model.UserStats{UserID: ownerID, RecomputedAt: at}
	for _, it := range r.db.items {
		if it.OwnerID != ownerID || it.Status != model.StatusApproved {
			continue
		}
		if it.Kind == model.KindPhoto {
			st.ApprovedCount++
		}
		for k := range r.db.records {
			if k.item != it.ID {
				continue
			}
			if k.kind == model.EngagementLike {
				st.TotalLikes++
			} else {
				st.TotalViews++
			}
		}
	}
	r.db.stats[ownerID] = st
	cp := *st
	return &cp, nil
}

func (r memStats) Get(_ context.Context, ownerID uint64) (*model.UserStats, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if st, ok := r.db.stats[ownerID]; ok {
		cp := *st
		return &cp, nil
	}
	return &model.UserStats{UserID: ownerID}, nil
}

type memBadges struct{ db *memDB }

func (r memBadges) Award(_ context.Context, userID uint64, badge string, notes ...model.Notification) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, b := range r.db.badges[userID] {
		if b == badge {
			return false, nil
		}
	}
	r.db.badges[userID] = append(r.db.badges[userID], badge)
	r.db.appendNotes(notes)
	return true, nil
}

func (r memBadges) List(_ context.Context, userID uint64) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return append([]string(nil), r.db.badges[userID]...), nil
}

type memNotifications struct{ db *memDB }

func (r memNotifications) Enqueue(_ context.Context, notes ...model.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.appendNotes(notes)
	return nil
}

func (r memNotifications) ListDeliverable(_ context.Context, batch, maxRetry int) ([]model.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Notification
	for _, n := range r.db.notes {
		if n.Status == model.OutboxPending || (n.Status == model.OutboxFailed && n.Retry < maxRetry) {
			out = append(out, n)
		}
		if len(out) == batch {
			break
		}
	}
	return out, nil
}

func (r memNotifications) update(id uint64, fn func(n *model.Notification)) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.notes {
		if r.db.notes[i].ID == id {
			fn(&r.db.notes[i])
		}
	}
}

func (r memNotifications) MarkSent(_ context.Context, id uint64) error {
	r.update(id, func(n *model.Notification) { n.Status = model.OutboxSent })
	return nil
}

func (r memNotifications) MarkFailed(_ context.Context, id uint64) error {
	r.update(id, func(n *model.Notification) { n.Status = model.OutboxFailed; n.Retry++ })
	return nil
}

func (r memNotifications) ListByRecipient(_ context.Context, recipient, cursor uint64, limit int) ([]model.Notification, uint64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Notification
	for i := len(r.db.notes) - 1; i >= 0; i-- {
		n := r.db.notes[i]
		if n.RecipientID != recipient || (cursor > 0 && n.ID >= cursor) {
			continue
		}
		out = append(out, n)
	}
	var next uint64
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

type memUsers struct{ db *memDB }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, x := range r.db.users {
		if x.Username == u.Username || x.Email == u.Email {
			return interfaces.ErrDuplicate
		}
	}
	r.db.nextUser++
	u.ID = r.db.nextUser
	cp := *u
	r.db.users[u.ID] = &cp
	return nil
}

func (r memUsers) FindByUsername(_ context.Context, name string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Username == name || u.Email == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (r memUsers) FindByID(_ context.Context, id uint64) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) UpdatePassword(_ context.Context, u *model.User, hash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.users[u.ID].Password = hash
	return nil
}

func (r memUsers) Suspend(_ context.Context, id uint64, until time.Time, notes ...model.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	u.SuspendedUntil = &until
	r.db.appendNotes(notes)
	return nil
}

type memSessions struct {
	mu     sync.Mutex
	tokens map[uint64]string
}

func newMemSessions() *memSessions { return &memSessions{tokens: make(map[uint64]string)} }

func (s *memSessions) AddUserToken(_ context.Context, id uint64, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[id] = tok
	return nil
}

func (s *memSessions) GetUserToken(_ context.Context, id uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return "", errors.New("token not found")
	}
	return tok, nil
}

func (s *memSessions) ExtendUserToken(context.Context, uint64) error { return nil }

func (s *memSessions) DeleteUserToken(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}

// memRateEvents 内存事件存储；block 为 true 时一直等到 ctx 结束
type memRateEvents struct {
	mu     sync.Mutex
	events map[string][]time.Time
	err    error
	block  bool
}

func newMemRateEvents() *memRateEvents {
	return &memRateEvents{events: make(map[string][]time.Time)}
}

func (m *memRateEvents) fail(ctx context.Context) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.err
}

func (m *memRateEvents) Append(ctx context.Context, subject string, action model.Action, at time.Time, _ time.Duration) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(action) + ":" + subject
	m.events[k] = append(m.events[k], at)
	return nil
}

func (m *memRateEvents) CountAfter(ctx context.Context, subject string, action model.Action, after time.Time) (int64, error) {
	if err := m.fail(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, ts := range m.events[string(action)+":"+subject] {
		if ts.After(after) {
			n++
		}
	}
	return n, nil
}

func (m *memRateEvents) OldestAfter(ctx context.Context, subject string, action model.Action, after time.Time) (time.Time, bool, error) {
	if err := m.fail(ctx); err != nil {
		return time.Time{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		oldest time.Time
		found  bool
	)
	for _, ts := range m.events[string(action)+":"+subject] {
		if ts.After(after) && (!found || ts.Before(oldest)) {
			oldest, found = ts, true
		}
	}
	return oldest, found, nil
}

// memLikeCache 集合语义与 redis 实现一致：写路径只改已存在的集合，版本不变才回填
type memLikeCache struct {
	mu     sync.Mutex
	counts map[uint64]int64
	sets   map[uint64]map[uint64]bool
	vers   map[uint64]int64
}

func newMemLikeCache() *memLikeCache {
	return &memLikeCache{
		counts: make(map[uint64]int64),
		sets:   make(map[uint64]map[uint64]bool),
		vers:   make(map[uint64]int64),
	}
}

func (c *memLikeCache) toggle(userID, itemID uint64, liked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vers[itemID]++
	set, ok := c.sets[itemID]
	if !ok {
		return
	}
	if liked {
		set[userID] = true
	} else {
		delete(set, userID)
		if len(set) == 0 {
			delete(c.sets, itemID)
		}
	}
}

func (c *memLikeCache) AddLike(_ context.Context, userID, itemID uint64) error {
	c.toggle(userID, itemID, true)
	return nil
}

func (c *memLikeCache) RemoveLike(_ context.Context, userID, itemID uint64) error {
	c.toggle(userID, itemID, false)
	return nil
}

func (c *memLikeCache) IsLikedCached(_ context.Context, userID, itemID uint64) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[itemID]
	if !ok {
		return false, false, nil
	}
	return set[userID], true, nil
}

func (c *memLikeCache) LikeSetVersion(_ context.Context, itemID uint64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vers[itemID], nil
}

func (c *memLikeCache) FillLikeSet(_ context.Context, itemID uint64, version int64, userIDs []uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(userIDs) == 0 || c.vers[itemID] != version {
		return false, nil
	}
	if _, ok := c.sets[itemID]; ok {
		return false, nil
	}
	set := make(map[uint64]bool, len(userIDs))
	for _, id := range userIDs {
		set[id] = true
	}
	c.sets[itemID] = set
	return true, nil
}

func (c *memLikeCache) GetLikeCountCached(_ context.Context, id uint64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.counts[id]
	return v, ok, nil
}

func (c *memLikeCache) SetLikeCount(_ context.Context, id uint64, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[id] = n
	return nil
}

func (c *memLikeCache) DeleteCount(_ context.Context, id uint64, _ ...time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, id)
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: make(map[string]string)} }

func (l *memLocker) Acquire(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = token
	return true, nil
}

func (l *memLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
