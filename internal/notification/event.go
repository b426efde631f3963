package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

// TaskEvent - событие смены статуса задачи в Kafka
type TaskEvent struct {
	EventID            string    `json:"eventId"`
	TaskID             string    `json:"taskId"`
	Category           string    `json:"category"`
	Title              string    `json:"title"`
	From               string    `json:"from"`
	Status             string    `json:"status"`
	ActorID            string    `json:"actorId"`
	AssignedResourceID string    `json:"assignedResourceId,omitempty"`
	ReporterID         string    `json:"reporterId,omitempty"`
	ReporterName       string    `json:"reporterName,omitempty"`
	ReporterPhone      string    `json:"reporterPhone,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

func NewTaskEvent(change task.StatusChange) TaskEvent {
	t := change.Task
	event := TaskEvent{
		EventID:       ulid.Make().String(),
		TaskID:        t.ID,
		Category:      string(t.Category),
		Title:         t.Title,
		From:          string(change.From),
		Status:        string(change.To),
		ActorID:       change.ActorID,
		ReporterID:    t.Reporter.ID,
		ReporterName:  t.Reporter.Name,
		ReporterPhone: t.Reporter.Phone,
		Timestamp:     change.At,
	}
	if t.AssignedResourceID != nil {
		event.AssignedResourceID = *t.AssignedResourceID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

// Notification описывает сообщение, которое будет отправлено заявителю
type Notification struct {
	Type        string
	EventID     string
	TaskID      string
	RecipientID string
	Phone       string
	Message     string
	CreatedAt   time.Time
}

// NotifiesReporter - заявителю сообщаем только о значимых этапах
func (e TaskEvent) NotifiesReporter() bool {
	switch task.Status(strings.ToLower(e.Status)) {
	case task.StatusAssigned, task.StatusOngoing, task.StatusResolved:
		return true
	default:
		return false
	}
}

func NewNotificationFromEvent(event TaskEvent) Notification {
	title := event.Title
	if title == "" {
		title = task.ParseCategory(event.Category).Title()
	}
	ref := shortID(event.TaskID)

	var message string
	switch task.Status(strings.ToLower(event.Status)) {
	case task.StatusAssigned:
		message = fmt.Sprintf("Your report #%s (%s) has been assigned to a field technician.", ref, title)
	case task.StatusOngoing:
		message = fmt.Sprintf("Work has started on your report #%s (%s).", ref, title)
	case task.StatusResolved:
		message = fmt.Sprintf("Your report #%s (%s) has been resolved. Thank you for helping your city!", ref, title)
	default:
		message = fmt.Sprintf("Your report #%s (%s) is now %s.", ref, title, strings.ToLower(event.Status))
	}

	return Notification{
		Type:        "task_status_" + strings.ToLower(event.Status),
		EventID:     event.EventID,
		TaskID:      event.TaskID,
		RecipientID: event.ReporterID,
		Phone:       event.ReporterPhone,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
