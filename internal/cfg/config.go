package cfg

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME" default:"civic"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type MongoConfig struct {
	URI        string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	Database   string `envconfig:"MONGODB_DATABASE" default:"civic"`
	Collection string `envconfig:"MONGODB_COLLECTION" default:"tasks"`
}

type MinioConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"civic-reports"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type S3Config struct {
	Bucket string `envconfig:"S3_BUCKET"`
	Prefix string `envconfig:"S3_PREFIX"`
	Region string `envconfig:"S3_REGION" default:"ap-south-1"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type KafkaConfig struct {
	Brokers string `envconfig:"KAFKA_BROKERS"`
	Topic   string `envconfig:"KAFKA_TOPIC" default:"civic.task.events"`
	GroupID string `envconfig:"KAFKA_GROUP_ID" default:"civic-notification"`
}

// BrokerList разбирает KAFKA_BROKERS через запятую
func (c KafkaConfig) BrokerList() []string {
	return splitCSV(c.Brokers)
}

type GeminiConfig struct {
	APIKey  string        `envconfig:"GEMINI_API_KEY"`
	BaseURL string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	Model   string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	Timeout time.Duration `envconfig:"GEMINI_TIMEOUT" default:"20s"`
}

type TravelConfig struct {
	// distance_matrix | haversine
	Provider       string        `envconfig:"TRAVEL_PROVIDER" default:"haversine"`
	Timeout        time.Duration `envconfig:"TRAVEL_TIMEOUT" default:"5s"`
	Retries        int           `envconfig:"TRAVEL_RETRIES" default:"2"`
	Backoff        time.Duration `envconfig:"TRAVEL_BACKOFF" default:"200ms"`
	MapsAPIKey     string        `envconfig:"MAPS_API_KEY"`
	MapsBaseURL    string        `envconfig:"MAPS_BASE_URL" default:"https://maps.googleapis.com"`
	HaversineSpeed float64       `envconfig:"HAVERSINE_SPEED_KMH" default:"30"`
}

type WhatsAppConfig struct {
	Token         string `envconfig:"WHATSAPP_TOKEN"`
	PhoneNumberID string `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	VerifyToken   string `envconfig:"WHATSAPP_VERIFY_TOKEN"`
	AppSecret     string `envconfig:"WHATSAPP_APP_SECRET"`
	BaseURL       string `envconfig:"WHATSAPP_BASE_URL" default:"https://graph.facebook.com/v19.0"`
}

// Enabled сообщает, настроен ли канал WhatsApp
func (c WhatsAppConfig) Enabled() bool {
	return c.Token != "" && c.PhoneNumberID != ""
}

type Config struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"`

	// postgres | mongo | memory
	TaskStore string `envconfig:"TASK_STORE" default:"postgres"`
	// minio | s3 | local
	ObjectStore    string        `envconfig:"OBJECT_STORE" default:"minio"`
	StorageBaseDir string        `envconfig:"STORAGE_BASE_DIR" default:"./data/objects"`
	StorageTimeout time.Duration `envconfig:"STORAGE_TIMEOUT" default:"10s"`
	// redis | memory
	SessionStore string        `envconfig:"SESSION_STORE" default:"redis"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"30m"`

	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	ReserveOnAssign bool          `envconfig:"RESERVE_ON_ASSIGN" default:"true"`
	AutoAssign      bool          `envconfig:"AUTO_ASSIGN" default:"false"`
	MaxImageSize    int64         `envconfig:"MAX_IMAGE_SIZE" default:"5242880"`
	NotifyTimeout   time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`

	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	AllowedOrigins    string        `envconfig:"ALLOWED_ORIGINS" default:"*"`

	DB       DBConfig
	Mongo    MongoConfig
	Minio    MinioConfig
	S3       S3Config
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gemini   GeminiConfig
	Travel   TravelConfig
	WhatsApp WhatsAppConfig
}

func (c Config) Origins() []string {
	return splitCSV(c.AllowedOrigins)
}

func (c Config) IsLocal() bool {
	return strings.EqualFold(c.Env, "local")
}

type NotificationConfig struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Kafka    KafkaConfig
	WhatsApp WhatsAppConfig
	DB       DBConfig
	Mongo    MongoConfig

	TaskStore   string        `envconfig:"TASK_STORE" default:"postgres"`
	SendTimeout time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`
}

func (c NotificationConfig) IsLocal() bool {
	return strings.EqualFold(c.Env, "local")
}

// AdminConfig - окружение civicctl, JWT_SECRET нужен только для issue-token
type AdminConfig struct {
	Env       string `envconfig:"ENV" default:"local"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
	TaskStore string `envconfig:"TASK_STORE" default:"postgres"`
	JWTSecret string `envconfig:"JWT_SECRET"`

	DB    DBConfig
	Mongo MongoConfig
}

func loadDotEnv() {
	// .env необязателен
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using environment variables")
	}
}

func Load() (Config, error) {
	loadDotEnv()

	var conf Config
	if err := envconfig.Process("", &conf); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := conf.validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

func LoadNotification() (NotificationConfig, error) {
	loadDotEnv()

	var conf NotificationConfig
	if err := envconfig.Process("", &conf); err != nil {
		return NotificationConfig{}, fmt.Errorf("load notification config: %w", err)
	}
	if len(conf.Kafka.BrokerList()) == 0 {
		return NotificationConfig{}, fmt.Errorf("KAFKA_BROKERS must be set")
	}
	return conf, nil
}

func LoadAdmin() (AdminConfig, error) {
	loadDotEnv()

	var conf AdminConfig
	if err := envconfig.Process("", &conf); err != nil {
		return AdminConfig{}, fmt.Errorf("load admin config: %w", err)
	}
	return conf, nil
}

func (c Config) validate() error {
	switch c.TaskStore {
	case "postgres", "mongo", "memory":
	default:
		return fmt.Errorf("unknown TASK_STORE %q", c.TaskStore)
	}
	switch c.ObjectStore {
	case "minio", "s3", "local":
	default:
		return fmt.Errorf("unknown OBJECT_STORE %q", c.ObjectStore)
	}
	if c.ObjectStore == "s3" && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET must be set when OBJECT_STORE=s3")
	}
	switch c.SessionStore {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}
	switch c.Travel.Provider {
	case "distance_matrix", "haversine":
	default:
		return fmt.Errorf("unknown TRAVEL_PROVIDER %q", c.Travel.Provider)
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("MAX_IMAGE_SIZE must be positive")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
