package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Notifier отвечает за доставку уведомлений
type Notifier interface {
	SendNotification(ctx context.Context, notification Notification) error
}

// TextSender - канал доставки текстовых сообщений по номеру телефона
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

type logNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) SendNotification(_ context.Context, notification Notification) error {
	n.logger.Info("notification",
		zap.String("type", notification.Type),
		zap.String("task_id", notification.TaskID),
		zap.String("recipient_id", notification.RecipientID),
		zap.String("message", notification.Message),
		zap.String("at", notification.CreatedAt.Format(time.RFC3339)),
	)
	return nil
}

type messagingNotifier struct {
	sender   TextSender
	fallback Notifier
	timeout  time.Duration
}

// NewMessagingNotifier шлёт сообщение по телефону; без телефона пишет в fallback
func NewMessagingNotifier(sender TextSender, fallback Notifier, timeout time.Duration) Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &messagingNotifier{sender: sender, fallback: fallback, timeout: timeout}
}

func (n *messagingNotifier) SendNotification(ctx context.Context, notification Notification) error {
	if notification.Phone == "" {
		if n.fallback == nil {
			return nil
		}
		return n.fallback.SendNotification(ctx, notification)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.sender.SendText(ctx, notification.Phone, notification.Message)
}
