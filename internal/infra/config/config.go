package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Stats struct {
		RefreshInterval time.Duration `envconfig:"STATS_REFRESH_INTERVAL" default:"30s"`
		CachePrefix     string        `envconfig:"STATS_CACHE_PREFIX" default:"stats:snapshot"`
	} `envconfig:""`

	Limits struct {
		RecentSessions int `envconfig:"RECENT_SESSIONS_LIMIT" default:"50"`
		ActivityPage   int `envconfig:"ACTIVITY_PAGE_LIMIT" default:"20"`
	} `envconfig:""`

	Queues struct {
		Refresh    string `envconfig:"REFRESH_QUEUE_KEY" default:"stats_refresh_jobs"`
		Milestones string `envconfig:"MILESTONE_QUEUE_KEY" default:"milestone_events"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
