package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Oniqq60/civic_report_system/internal/cfg"
	"github.com/Oniqq60/civic_report_system/internal/resource"
	"github.com/Oniqq60/civic_report_system/internal/storage"
	"github.com/Oniqq60/civic_report_system/internal/task"
	"github.com/Oniqq60/civic_report_system/internal/travel"
)

// Closer освобождает соединение хранилища при остановке
type Closer func(ctx context.Context) error

func OpenPostgres(conf cfg.DBConfig) (*gorm.DB, Closer, error) {
	db, err := gorm.Open(postgres.Open(conf.DSN()), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("init sql DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, func(context.Context) error { return sqlDB.Close() }, nil
}

func OpenMongo(ctx context.Context, conf cfg.MongoConfig) (*mongo.Collection, Closer, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(conf.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(conf.Database).Collection(conf.Collection)
	return coll, client.Disconnect, nil
}

// Stores - хранилища задач и справочник исполнителей
type Stores struct {
	Tasks     task.TaskRepository
	Resources resource.Directory
	closers   []Closer
}

func (s *Stores) Close(ctx context.Context) error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenStores: справочник исполнителей живёт в Postgres для всех режимов, кроме memory
func OpenStores(ctx context.Context, kind string, db cfg.DBConfig, mongoConf cfg.MongoConfig, logger *zap.Logger) (*Stores, error) {
	if kind == "memory" {
		logger.Warn("using in-memory stores, data is lost on restart")
		return &Stores{Tasks: task.NewMemoryRepository(), Resources: resource.NewMemoryDirectory()}, nil
	}

	gdb, closeDB, err := OpenPostgres(db)
	if err != nil {
		return nil, err
	}
	stores := &Stores{Resources: resource.NewDirectory(gdb), closers: []Closer{closeDB}}
	if err := resource.Migrate(gdb); err != nil {
		_ = stores.Close(ctx)
		return nil, fmt.Errorf("migrate resources: %w", err)
	}

	switch kind {
	case "postgres":
		if err := task.Migrate(gdb); err != nil {
			_ = stores.Close(ctx)
			return nil, fmt.Errorf("migrate tasks: %w", err)
		}
		stores.Tasks = task.NewRepository(gdb)
	case "mongo":
		coll, closeMongo, err := OpenMongo(ctx, mongoConf)
		if err != nil {
			_ = stores.Close(ctx)
			return nil, err
		}
		stores.closers = append(stores.closers, closeMongo)
		stores.Tasks = task.NewMongoRepository(coll)
	default:
		_ = stores.Close(ctx)
		return nil, fmt.Errorf("unknown task store %q", kind)
	}
	return stores, nil
}

func OpenObjectStore(ctx context.Context, conf cfg.Config) (storage.ObjectStore, error) {
	var (
		store storage.ObjectStore
		err   error
	)
	switch conf.ObjectStore {
	case "minio":
		m := conf.Minio
		store, err = storage.NewMinioStore(m.Endpoint, m.AccessKey, m.SecretKey, m.UseSSL, m.Bucket)
	case "s3":
		store, err = storage.NewS3Store(ctx, conf.S3.Bucket, conf.S3.Prefix, conf.S3.Region)
	case "local":
		store, err = storage.NewLocalStore(conf.StorageBaseDir)
	default:
		err = fmt.Errorf("unknown object store %q", conf.ObjectStore)
	}
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	return storage.WithTimeout(store, conf.StorageTimeout), nil
}

func NewRedis(conf cfg.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func NewEstimator(conf cfg.TravelConfig, logger *zap.Logger) travel.Estimator {
	if conf.Provider == "distance_matrix" {
		return travel.NewDistanceMatrixEstimator(travel.DistanceMatrixConfig{
			BaseURL: conf.MapsBaseURL,
			APIKey:  conf.MapsAPIKey,
			Timeout: conf.Timeout,
			Retries: conf.Retries,
			Backoff: conf.Backoff,
		}, &http.Client{Timeout: conf.Timeout}, logger)
	}
	return travel.NewHaversineEstimator(conf.HaversineSpeed)
}
