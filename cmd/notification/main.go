package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/bootstrap"
	"github.com/Oniqq60/civic_report_system/internal/cfg"
	"github.com/Oniqq60/civic_report_system/internal/logger"
	"github.com/Oniqq60/civic_report_system/internal/notification"
	"github.com/Oniqq60/civic_report_system/internal/whatsapp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("notification worker stopped: %v", err)
	}
}

func run() error {
	conf, err := cfg.LoadNotification()
	if err != nil {
		return err
	}

	zl, err := logger.New(conf.Env, conf.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := notification.NewLogNotifier(zl.Named("log_notifier"))
	if conf.WhatsApp.Enabled() {
		client := whatsapp.NewClient(whatsapp.ClientConfig{
			BaseURL:       conf.WhatsApp.BaseURL,
			Token:         conf.WhatsApp.Token,
			PhoneNumberID: conf.WhatsApp.PhoneNumberID,
		}, nil)
		notifier = notification.NewMessagingNotifier(client, notifier, conf.SendTimeout)
	} else {
		zl.Warn("whatsapp is not configured, notifications are only logged")
	}

	// телефон заявителя дочитываем из хранилища задач, если его нет в событии
	var resolver notification.RecipientResolver
	if conf.TaskStore != "memory" {
		stores, err := bootstrap.OpenStores(ctx, conf.TaskStore, conf.DB, conf.Mongo, zl)
		if err != nil {
			return err
		}
		defer func() { _ = stores.Close(context.Background()) }()
		resolver = notification.NewTaskReporterResolver(stores.Tasks)
	}

	brokers := conf.Kafka.BrokerList()
	handler := notification.NewEventHandler(notifier, resolver, zl.Named("handler"))
	consumer := notification.NewKafkaConsumer(brokers, conf.Kafka.Topic, conf.Kafka.GroupID, handler, zl.Named("consumer"))
	defer consumer.Close()

	zl.Info("kafka consumer subscribing",
		zap.String("topic", conf.Kafka.Topic),
		zap.String("group", conf.Kafka.GroupID),
	)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	zl.Info("notification worker stopped")
	return nil
}
