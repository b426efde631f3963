package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) SendNotification(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

type recordingSender struct {
	to, body string
}

func (s *recordingSender) SendText(_ context.Context, to, body string) error {
	s.to, s.body = to, body
	return nil
}

func sampleChange() task.StatusChange {
	resourceID := "res-1"
	return task.StatusChange{
		Task: task.Task{
			ID:                 "0f8fad5b-d9cb-469f-a165-70867728950e",
			Category:           task.CategoryInfrastructure,
			Title:              task.CategoryInfrastructure.Title(),
			AssignedResourceID: &resourceID,
			Reporter:           task.Reporter{ID: "rep-1", Name: "Ana", Phone: "+15550001"},
		},
		From:    task.StatusAssigned,
		To:      task.StatusResolved,
		ActorID: "tech-1",
		At:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublisherWritesEventKeyedByTask(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisher(writer)

	require.NoError(t, pub.NotifyStatusChange(context.Background(), sampleChange()))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", string(msg.Key))

	var event TaskEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "resolved", event.Status)
	assert.Equal(t, "assigned", event.From)
	assert.Equal(t, "res-1", event.AssignedResourceID)
	assert.Equal(t, "+15550001", event.ReporterPhone)
	assert.Equal(t, "tech-1", event.ActorID)
}

func TestPublisherReturnsWriterError(t *testing.T) {
	pub := NewPublisher(&fakeWriter{err: errors.New("broker down")})
	assert.Error(t, pub.NotifyStatusChange(context.Background(), sampleChange()))
}

func TestNotificationMessages(t *testing.T) {
	event := NewTaskEvent(sampleChange())
	n := NewNotificationFromEvent(event)

	assert.Equal(t, "task_status_resolved", n.Type)
	assert.Contains(t, n.Message, "#0f8fad5b")
	assert.Contains(t, n.Message, "resolved")
	assert.Equal(t, "+15550001", n.Phone)

	event.Status = "ongoing"
	assert.Contains(t, NewNotificationFromEvent(event).Message, "Work has started")
}

func TestEventHandlerSkipsPreWorkStatuses(t *testing.T) {
	notifier := &recordingNotifier{}
	h := NewEventHandler(notifier, nil, zaptest.NewLogger(t))

	event := NewTaskEvent(sampleChange())
	event.Status = "pending"
	require.NoError(t, h.HandleEvent(context.Background(), event))
	assert.Empty(t, notifier.Sent())

	assert.ErrorIs(t, h.HandleEvent(context.Background(), TaskEvent{}), ErrEmptyTaskID)
}

func TestEventHandlerResolvesPhoneFromTaskStore(t *testing.T) {
	ctx := context.Background()
	repo := task.NewMemoryRepository()
	change := sampleChange()
	require.NoError(t, repo.Create(ctx, change.Task))

	notifier := &recordingNotifier{}
	h := NewEventHandler(notifier, NewTaskReporterResolver(repo), zaptest.NewLogger(t))

	event := NewTaskEvent(change)
	event.ReporterPhone = ""
	require.NoError(t, h.HandleEvent(ctx, event))

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+15550001", sent[0].Phone)
}

func TestMessagingNotifierFallsBackWithoutPhone(t *testing.T) {
	sender := &recordingSender{}
	fallback := &recordingNotifier{}
	n := NewMessagingNotifier(sender, fallback, time.Second)

	require.NoError(t, n.SendNotification(context.Background(), Notification{Phone: "+1555", Message: "hi"}))
	assert.Equal(t, "+1555", sender.to)
	assert.Equal(t, "hi", sender.body)

	require.NoError(t, n.SendNotification(context.Background(), Notification{Message: "no phone"}))
	assert.Len(t, fallback.Sent(), 1)
}

func TestConsumerHandlesAndCommitsMessages(t *testing.T) {
	event := NewTaskEvent(sampleChange())
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	reader := &fakeReader{messages: []kafka.Message{
		{Value: []byte("{broken")},
		{Value: payload},
	}}
	notifier := &recordingNotifier{}
	consumer := NewConsumer(reader, NewEventHandler(notifier, nil, zaptest.NewLogger(t)), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	assert.Eventually(t, func() bool { return reader.Committed() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, event.TaskID, sent[0].TaskID)
}
