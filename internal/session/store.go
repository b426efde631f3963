package session

import (
	"context"
	"errors"
	"time"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

var ErrNotFound = errors.New("pending report not found")

// PendingReport - снимок, ожидающий от пользователя геолокацию
type PendingReport struct {
	ImageKey    string        `json:"imageKey"`
	ContentType string        `json:"contentType"`
	Reporter    task.Reporter `json:"reporter"`
	Description string        `json:"description,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// PendingStore хранит контекст диалога; срок жизни записи соблюдает само хранилище
type PendingStore interface {
	Save(ctx context.Context, conversationID string, report PendingReport) error
	Get(ctx context.Context, conversationID string) (PendingReport, error)
	Delete(ctx context.Context, conversationID string) error
}
