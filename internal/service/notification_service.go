package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/pkg"
	"Photo_Archive/internal/repository/interfaces"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sender 投递一条通知，返回错误即视为本次投递失败
type Sender func(ctx context.Context, n *model.Notification) error

// OutboxRelayer 定时从 outbox 表拉取待投递通知交给 sender
type OutboxRelayer struct {
	repo      interfaces.NotificationRepository
	sender    Sender
	interval  time.Duration
	batchSize int
	maxRetry  int
	logger    *zap.Logger
}

func NewOutboxRelayer(repo interfaces.NotificationRepository, sender Sender, interval time.Duration, batchSize, maxRetry int, logger *zap.Logger) *OutboxRelayer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelayer{
		repo:      repo,
		sender:    sender,
		interval:  interval,
		batchSize: batchSize,
		maxRetry:  maxRetry,
		logger:    logger,
	}
}

func (r *OutboxRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce 投递一批，返回成功条数
func (r *OutboxRelayer) DrainOnce(ctx context.Context) int {
	rows, err := r.repo.ListDeliverable(ctx, r.batchSize, r.maxRetry)
	if err != nil {
		r.logger.Warn("outbox query failed", zap.Error(err))
		return 0
	}
	sent := 0
	for i := range rows {
		n := rows[i]
		if err := r.sender(ctx, &n); err != nil {
			r.logger.Warn("notification delivery failed",
				zap.Uint64("notification_id", n.ID),
				zap.String("kind", string(n.Kind)),
				zap.Int("retry", n.Retry+1),
				zap.Error(err))
			_ = r.repo.MarkFailed(ctx, n.ID)
			continue
		}
		if err := r.repo.MarkSent(ctx, n.ID); err != nil {
			r.logger.Warn("mark notification sent failed", zap.Uint64("notification_id", n.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// LogSender 只写日志，本地开发用
func LogSender(logger *zap.Logger) Sender {
	return func(ctx context.Context, n *model.Notification) error {
		logger.Info("notification",
			zap.Uint64("notification_id", n.ID),
			zap.Uint64("recipient_id", n.RecipientID),
			zap.String("kind", string(n.Kind)),
			zap.String("payload", n.Payload))
		return nil
	}
}

// notificationMessage 写入 kafka 的消息体
type notificationMessage struct {
	ID          uint64                    `json:"id"`
	RecipientID uint64                    `json:"recipient_id"`
	Kind        model.NotificationKind    `json:"kind"`
	Payload     model.NotificationPayload `json:"payload"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// KafkaSender 以收件人为 key 写入 kafka，同一用户的通知保持顺序
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, n *model.Notification) error {
		payload, err := n.DecodePayload()
		if err != nil {
			return err
		}
		raw, err := json.Marshal(notificationMessage{
			ID:          n.ID,
			RecipientID: n.RecipientID,
			Kind:        n.Kind,
			Payload:     payload,
			CreatedAt:   n.CreatedAt,
		})
		if err != nil {
			return err
		}
		return p.Send(ctx, pkg.MakeKeyFromID(n.RecipientID), raw,
			kafka.Header{Key: "kind", Value: []byte(n.Kind)})
	}
}

// EmailSender 查询收件人邮箱后通过 SMTP 发送
func EmailSender(dialer pkg.MailDialer, from string, users interfaces.UserRepository) Sender {
	return func(ctx context.Context, n *model.Notification) error {
		user, err := users.FindByID(ctx, n.RecipientID)
		if err != nil {
			return err
		}
		if user.Email == "" {
			return errors.New("recipient has no email")
		}
		payload, err := n.DecodePayload()
		if err != nil {
			return err
		}
		subject, lines := RenderNotification(n.Kind, payload)
		return dialer.DialAndSend(pkg.BuildEmail(from, user.Email, subject, pkg.NotificationHTML(subject, lines)))
	}
}

// RenderNotification 通知标题与正文行
func RenderNotification(kind model.NotificationKind, p model.NotificationPayload) (string, []string) {
	var lines []string
	if p.ItemID != 0 {
		lines = append(lines, fmt.Sprintf("Item: %s #%d", p.ItemKind, p.ItemID))
	}
	if p.Reason != "" {
		lines = append(lines, "Reason: "+p.Reason)
	}
	if len(p.ChangedFields) > 0 {
		lines = append(lines, fmt.Sprintf("Changed fields: %v", p.ChangedFields))
	}
	if p.Badge != "" {
		lines = append(lines, "Badge: "+p.Badge)
	}
	if p.SuspendedUntil != nil {
		lines = append(lines, "Suspended until: "+p.SuspendedUntil.Format(time.RFC1123))
	}

	switch kind {
	case model.NotifyContentDeleted:
		return "Your content was removed", lines
	case model.NotifyContentChanged:
		return "Your content was edited by a moderator", lines
	case model.NotifyBadgeAwarded:
		return "You earned a new badge", lines
	case model.NotifyLikeReceived:
		return "Someone liked your content", lines
	case model.NotifyAccountSuspended:
		return "Your account has been suspended", lines
	}
	if p.ItemKind != "" {
		switch kind {
		case model.ApprovedKind(model.ContentKind(p.ItemKind)):
			return fmt.Sprintf("Your %s was approved", p.ItemKind), lines
		case model.RejectedKind(model.ContentKind(p.ItemKind)):
			return fmt.Sprintf("Your %s was rejected", p.ItemKind), lines
		}
	}
	return string(kind), lines
}

// NotificationView 收件箱中的一条
type NotificationView struct {
	ID        uint64                    `json:"id"`
	Kind      model.NotificationKind    `json:"kind"`
	Payload   model.NotificationPayload `json:"payload"`
	CreatedAt time.Time                 `json:"created_at"`
}

type NotificationService struct {
	repo interfaces.NotificationRepository
}

func NewNotificationService(repo interfaces.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// Inbox 游标分页，cursor 为上一页最后一条的 id
func (s *NotificationService) Inbox(ctx context.Context, userID, cursor uint64, limit int) ([]NotificationView, uint64, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	rows, next, err := s.repo.ListByRecipient(ctx, userID, cursor, limit)
	if err != nil {
		return nil, 0, apperr.StoreUnavailable(err)
	}
	out := make([]NotificationView, 0, len(rows))
	for i := range rows {
		p, _ := rows[i].DecodePayload()
		out = append(out, NotificationView{
			ID:        rows[i].ID,
			Kind:      rows[i].Kind,
			Payload:   p,
			CreatedAt: rows[i].CreatedAt,
		})
	}
	return out, next, nil
}
