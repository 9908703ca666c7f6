package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"Photo_Archive/internal/model"
	"Photo_Archive/internal/pkg"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

type captureDialer struct {
	sent []*gomail.Message
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return nil
}

func enqueue(t *testing.T, e *testEnv, notes ...model.Notification) {
	t.Helper()
	require.NoError(t, memNotifications{e.db}.Enqueue(context.Background(), notes...))
}

func TestOutboxRelayer_RetriesUntilMaxRetry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	enqueue(t, e,
		model.NewNotification(1, model.NotifyLikeReceived, model.NotificationPayload{ItemID: 7, ItemKind: "photo"}),
		model.NewNotification(2, model.NotifyBadgeAwarded, model.NotificationPayload{Badge: "archivist"}),
	)

	var attempts int
	sender := func(_ context.Context, n *model.Notification) error {
		attempts++
		if n.RecipientID == 2 {
			return errors.New("smtp down")
		}
		return nil
	}
	r := NewOutboxRelayer(memNotifications{e.db}, sender, 0, 10, 2, nil)

	assert.Equal(t, 1, r.DrainOnce(ctx))
	assert.Equal(t, 0, r.DrainOnce(ctx))
	// 第二次失败后达到上限，不再投递
	assert.Equal(t, 0, r.DrainOnce(ctx))
	assert.Equal(t, 3, attempts)

	failed := e.db.notesFor(2, model.NotifyBadgeAwarded)
	require.Len(t, failed, 1)
	assert.Equal(t, model.OutboxFailed, failed[0].Status)
	assert.Equal(t, 2, failed[0].Retry)
	assert.Equal(t, model.OutboxSent, e.db.notesFor(1, model.NotifyLikeReceived)[0].Status)
}

func TestKafkaSender_KeysByRecipient(t *testing.T) {
	w := &captureWriter{}
	send := KafkaSender(pkg.NewKafkaProducerWithWriter("notifications", w))
	n := model.NewNotification(42, model.ApprovedKind(model.KindPhoto), model.NotificationPayload{ItemID: 9, ItemKind: "photo", ActorID: 900})
	n.ID = 5
	require.NoError(t, send(context.Background(), &n))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "photo_approved", string(msg.Headers[0].Value))

	var body notificationMessage
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, uint64(5), body.ID)
	assert.Equal(t, uint64(9), body.Payload.ItemID)
}

func TestEmailSender_LooksUpRecipient(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "alice")
	d := &captureDialer{}
	send := EmailSender(d, "archive@example.com", memUsers{e.db})

	n := model.NewNotification(owner, model.RejectedKind(model.KindTag), model.NotificationPayload{ItemID: 3, ItemKind: "tag", Reason: "not visible in photo"})
	require.NoError(t, send(context.Background(), &n))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"alice@example.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Your tag was rejected"}, d.sent[0].GetHeader("Subject"))

	missing := model.NewNotification(999, model.NotifyBadgeAwarded, model.NotificationPayload{Badge: "historian"})
	assert.Error(t, send(context.Background(), &missing))
}

func TestRenderNotification(t *testing.T) {
	subject, lines := RenderNotification(model.NotifyContentChanged, model.NotificationPayload{
		ItemID: 4, ItemKind: "story", ChangedFields: []string{"body", "title"},
	})
	assert.Equal(t, "Your content was edited by a moderator", subject)
	assert.Equal(t, "Item: story #4", lines[0])
	assert.True(t, strings.Contains(lines[1], "body"))

	subject, _ = RenderNotification(model.ApprovedKind(model.KindComment), model.NotificationPayload{ItemKind: "comment"})
	assert.Equal(t, "Your comment was approved", subject)
}

func TestInbox_CursorPagination(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 5; i++ {
		enqueue(t, e, model.NewNotification(1, model.NotifyLikeReceived, model.NotificationPayload{ItemID: uint64(i + 1)}))
	}
	enqueue(t, e, model.NewNotification(2, model.NotifyLikeReceived, model.NotificationPayload{ItemID: 99}))
	s := NewNotificationService(memNotifications{e.db})
	ctx := context.Background()

	page, next, err := s.Inbox(ctx, 1, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, uint64(5), page[0].Payload.ItemID)
	require.NotZero(t, next)

	rest, next, err := s.Inbox(ctx, 1, next, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, uint64(1), rest[1].Payload.ItemID)
	assert.Zero(t, next)
}
