package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Europe/London"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		GroupChat  int64  `envconfig:"TG_GROUP_CHAT_ID"`
	} `envconfig:""`

	Store struct {
		Backend      string `envconfig:"STORE_BACKEND" default:"memory"`
		DocumentName string `envconfig:"STORE_DOCUMENT_NAME" default:"glaze"`
		MaxAttempts  int    `envconfig:"STORE_MAX_ATTEMPTS" default:"3"`
	} `envconfig:""`

	GitHub struct {
		Repo  string `envconfig:"GITHUB_REPO"`
		Token string `envconfig:"GITHUB_TOKEN"`
		File  string `envconfig:"GLAZE_GITHUB_FILE" default:"glaze_data.json"`
		API   string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	S3 struct {
		Bucket   string `envconfig:"S3_BUCKET"`
		Key      string `envconfig:"S3_KEY" default:"glaze_data.json"`
		Endpoint string `envconfig:"S3_ENDPOINT"`
	} `envconfig:""`

	AWSRegion string `envconfig:"AWS_REGION" default:"eu-west-2"`

	Redis struct {
		Addr        string `envconfig:"REDIS_ADDR"`
		DocumentKey string `envconfig:"REDIS_DOCUMENT_KEY" default:"glaze:document"`
	} `envconfig:""`

	DynamoTable string `envconfig:"DYNAMO_TABLE" default:"glaze_documents"`

	Notifier struct {
		Kind      string `envconfig:"NOTIFIER" default:"telegram"`
		AMQPURL   string `envconfig:"AMQP_URL"`
		AMQPQueue string `envconfig:"AMQP_QUEUE" default:"glaze_notifications"`
		RedisKey  string `envconfig:"NOTIFIER_REDIS_KEY" default:"glaze:notifications"`
	} `envconfig:""`

	API struct {
		JWTSecret string `envconfig:"API_JWT_SECRET"`
	} `envconfig:""`

	Scheduler struct {
		Tick time.Duration `envconfig:"SCHEDULER_TICK" default:"1m"`
	} `envconfig:""`
}

// Location возвращает опорный часовой пояс.
func (c AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.TZ, err)
	}
	return loc, nil
}

// Process читает конфиг из окружения.
func Process() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Process()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
