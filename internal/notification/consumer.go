package notification

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Consumer interface {
	Start(ctx context.Context) error
	Close() error
}

type EventHandler interface {
	HandleEvent(ctx context.Context, event TaskEvent) error
}

// MessageReader - часть kafka.Reader, которой пользуется потребитель
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaConsumer struct {
	reader  MessageReader
	handler EventHandler
	logger  *zap.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, handler EventHandler, logger *zap.Logger) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return NewConsumer(reader, handler, logger)
}

func NewConsumer(reader MessageReader, handler EventHandler, logger *zap.Logger) Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &kafkaConsumer{reader: reader, handler: handler, logger: logger}
}

// Start читает сообщения до отмены контекста. Сообщение коммитится после
// обработки; битые и необработанные сообщения логируются и пропускаются.
func (c *kafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info("kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("kafka consumer stopped")
				return ctx.Err()
			}
			c.logger.Warn("read message error", zap.Error(err))
			continue
		}

		var event TaskEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn("unmarshal task event error",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		} else if err := c.handler.HandleEvent(ctx, event); err != nil {
			c.logger.Warn("handle event error",
				zap.String("task_id", event.TaskID),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit message error", zap.Error(err))
		}
	}
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}
