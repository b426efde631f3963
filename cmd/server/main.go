package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Oniqq60/civic_report_system/internal/assignment"
	"github.com/Oniqq60/civic_report_system/internal/auth"
	"github.com/Oniqq60/civic_report_system/internal/bootstrap"
	"github.com/Oniqq60/civic_report_system/internal/cfg"
	"github.com/Oniqq60/civic_report_system/internal/classifier"
	"github.com/Oniqq60/civic_report_system/internal/intake"
	"github.com/Oniqq60/civic_report_system/internal/logger"
	"github.com/Oniqq60/civic_report_system/internal/middleware"
	"github.com/Oniqq60/civic_report_system/internal/notification"
	"github.com/Oniqq60/civic_report_system/internal/routers"
	"github.com/Oniqq60/civic_report_system/internal/rpc"
	"github.com/Oniqq60/civic_report_system/internal/session"
	"github.com/Oniqq60/civic_report_system/internal/task"
	"github.com/Oniqq60/civic_report_system/internal/whatsapp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("civic server stopped: %v", err)
	}
}

func run() error {
	conf, err := cfg.Load()
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

	stores, err := bootstrap.OpenStores(ctx, conf.TaskStore, conf.DB, conf.Mongo, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			zl.Warn("store close error", zap.Error(err))
		}
	}()

	objects, err := bootstrap.OpenObjectStore(ctx, conf)
	if err != nil {
		return err
	}

	var notifier task.Notifier
	if brokers := conf.Kafka.BrokerList(); len(brokers) > 0 {
		publisher := notification.NewKafkaPublisher(brokers, conf.Kafka.Topic)
		defer publisher.Close()
		notifier = publisher
	} else {
		zl.Warn("KAFKA_BROKERS not set, status notifications are disabled")
	}

	var (
		blacklist auth.Blacklist
		sessions  session.PendingStore
	)
	if conf.SessionStore == "redis" {
		rdb := bootstrap.NewRedis(conf.Redis)
		defer rdb.Close()
		blacklist = auth.NewRedisBlacklist(rdb)
		sessions = session.NewRedisStore(rdb, conf.SessionTTL)
	} else {
		sessions = session.NewMemoryStore(conf.SessionTTL)
	}

	verifier, err := auth.NewVerifier(conf.JWTSecret, blacklist)
	if err != nil {
		return err
	}

	taskService := task.NewTaskService(stores.Tasks, notifier, zl.Named("task"), task.WithNotifyTimeout(conf.NotifyTimeout))
	engine := assignment.NewEngine(stores.Tasks, stores.Resources, bootstrap.NewEstimator(conf.Travel, zl.Named("travel")), zl.Named("assignment"), assignment.Config{
		ReserveOnAssign: conf.ReserveOnAssign,
		EstimateTimeout: conf.Travel.Timeout,
		Notifier:        notifier,
		NotifyTimeout:   conf.NotifyTimeout,
	})
	gemini := classifier.NewGemini(classifier.GeminiConfig{
		BaseURL: conf.Gemini.BaseURL,
		APIKey:  conf.Gemini.APIKey,
		Model:   conf.Gemini.Model,
		Timeout: conf.Gemini.Timeout,
	}, nil)
	pipeline := intake.NewPipeline(gemini, objects, stores.Tasks, engine, zl.Named("intake"), intake.Config{
		ClassifyTimeout: conf.Gemini.Timeout,
		StorageTimeout:  conf.StorageTimeout,
		AutoAssign:      conf.AutoAssign,
	})

	deps := routers.Dependencies{
		Tasks:          taskService,
		Intake:         pipeline,
		Assigner:       engine,
		Resources:      stores.Resources,
		Objects:        objects,
		Verifier:       verifier,
		RateLimiter:    middleware.NewRateLimiter(conf.RateLimitRequests, conf.RateLimitWindow),
		Logger:         zl.Named("http"),
		AllowedOrigins: conf.Origins(),
		MaxImageSize:   conf.MaxImageSize,
	}
	if conf.WhatsApp.Enabled() {
		client := whatsapp.NewClient(whatsapp.ClientConfig{
			BaseURL:       conf.WhatsApp.BaseURL,
			Token:         conf.WhatsApp.Token,
			PhoneNumberID: conf.WhatsApp.PhoneNumberID,
		}, nil)
		deps.WhatsApp = whatsapp.NewWebhook(client, objects, sessions, pipeline, zl.Named("whatsapp"), whatsapp.WebhookConfig{
			VerifyToken: conf.WhatsApp.VerifyToken,
			AppSecret:   conf.WhatsApp.AppSecret,
		})
	}

	router, err := routers.New(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + conf.HTTPPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	grpcListener, err := net.Listen("tcp", ":"+conf.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}
	grpcServer := rpc.NewServer(rpc.NewHandler(taskService, engine), verifier, zl.Named("grpc"))

	errCh := make(chan error, 2)
	go func() {
		zl.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		zl.Info("gRPC server listening", zap.String("addr", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		zl.Info("shutdown signal received")
	case runErr = <-errCh:
		zl.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()
	zl.Info("civic server stopped")
	return runErr
}
