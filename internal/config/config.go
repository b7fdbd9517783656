package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken  string `envconfig:"BOT_TOKEN"` // empty: notification platform unsupported
	DBPath    string `envconfig:"DB_PATH" default:"./data/nudge.db"`
	DefaultTZ string `envconfig:"DEFAULT_TZ" default:"Europe/Moscow"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	APIToken  string `envconfig:"API_TOKEN"` // bearer token for /api/v1; empty disables the API

	RedisAddr     string `envconfig:"REDIS_ADDR"` // empty: kv lives in SQLite
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	RollCooldown      time.Duration `envconfig:"ROLL_COOLDOWN" default:"3h"`
	TimeSavedFallback time.Duration `envconfig:"TIME_SAVED_FALLBACK" default:"120s"`
	DispatchInterval  time.Duration `envconfig:"DISPATCH_INTERVAL" default:"30s"`

	BackupBucket string `envconfig:"BACKUP_BUCKET"`
	BackupKey    string `envconfig:"BACKUP_KEY" default:"db/nudge.db"`
}

// Load reads an optional .env file and then environment variables into Config.
func Load() (Config, error) {
	// A missing .env is fine; real environment wins over file values.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
