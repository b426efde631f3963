package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

// MessageWriter - часть kafka.Writer, которой пользуется издатель
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher interface {
	task.Notifier
	Publish(ctx context.Context, event TaskEvent) error
	Close() error
}

type kafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(brokers []string, topic string) Publisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &kafkaPublisher{writer: writer}
}

// NewPublisher принимает готовый writer, используется в тестах
func NewPublisher(writer MessageWriter) Publisher {
	return &kafkaPublisher{writer: writer}
}

func (p *kafkaPublisher) NotifyStatusChange(ctx context.Context, change task.StatusChange) error {
	return p.Publish(ctx, NewTaskEvent(change))
}

// Publish пишет событие с ключом по задаче, чтобы события одной задачи шли по порядку
func (p *kafkaPublisher) Publish(ctx context.Context, event TaskEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}

	message := kafka.Message{
		Key:   []byte(event.TaskID),
		Value: eventJSON,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.EventID)},
		},
	}
	return p.writer.WriteMessages(ctx, message)
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}
