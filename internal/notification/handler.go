package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

var ErrEmptyTaskID = errors.New("taskID is required")

// RecipientResolver находит телефон заявителя, если его нет в событии
type RecipientResolver interface {
	ResolvePhone(ctx context.Context, event TaskEvent) (string, error)
}

type eventHandler struct {
	notifier Notifier
	resolver RecipientResolver
	logger   *zap.Logger
}

func NewEventHandler(notifier Notifier, resolver RecipientResolver, logger *zap.Logger) EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventHandler{notifier: notifier, resolver: resolver, logger: logger}
}

func (h *eventHandler) HandleEvent(ctx context.Context, event TaskEvent) error {
	if strings.TrimSpace(event.TaskID) == "" {
		return ErrEmptyTaskID
	}
	if !event.NotifiesReporter() {
		return nil
	}

	notification := NewNotificationFromEvent(event)
	if notification.Phone == "" && h.resolver != nil {
		phone, err := h.resolver.ResolvePhone(ctx, event)
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}
		notification.Phone = phone
	}

	if err := h.notifier.SendNotification(ctx, notification); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

type taskReporterResolver struct {
	tasks task.TaskRepository
}

// NewTaskReporterResolver берёт телефон заявителя из сохранённой задачи
func NewTaskReporterResolver(tasks task.TaskRepository) RecipientResolver {
	return &taskReporterResolver{tasks: tasks}
}

func (r *taskReporterResolver) ResolvePhone(ctx context.Context, event TaskEvent) (string, error) {
	t, err := r.tasks.Get(ctx, event.TaskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return t.Reporter.Phone, nil
}
