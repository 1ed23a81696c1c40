package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"giveaway-engine"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
		// Shared secret of the admin API; empty disables the check.
		APIKey string `env:"API_KEY" envDefault:""`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
		// Cluster seed nodes; when set Host and Port are ignored.
		Addrs []string `env:"REDIS_ADDRS" envSeparator:","`

		// Member actions pushed by the chat gateway
		EventStream   string `env:"REDIS_EVENT_STREAM" envDefault:"bot:events"`
		ConsumerGroup string `env:"REDIS_CONSUMER_GROUP" envDefault:"giveaway_engine_consumers"`
		ConsumerName  string `env:"REDIS_CONSUMER_NAME" envDefault:"giveaway_engine_1"`
	}

	Postgres struct {
		DSN             string        `env:"DATABASE_URL,required"`
		AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"false"`
		MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
		ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	}

	Telegram      TelegramConfig
	Giveaway      GiveawayConfig
	DefaultPreset PresetConfig
}

// TelegramConfig configures the Bot API client and its latency probe.
type TelegramConfig struct {
	BotToken          string        `env:"BOT_TOKEN,required"`
	APIBaseURL        string        `env:"TELEGRAM_API_BASE_URL" envDefault:"https://api.telegram.org"`
	RequestsPerSecond float64       `env:"TELEGRAM_RPS" envDefault:"25"`
	Burst             int           `env:"TELEGRAM_BURST" envDefault:"5"`
	LatencyInterval   time.Duration `env:"TELEGRAM_LATENCY_INTERVAL" envDefault:"30s"`
	UsableLatency     time.Duration `env:"TELEGRAM_USABLE_LATENCY" envDefault:"5s"`
	// How long mini app init data stays valid; 0 disables the expiry check.
	InitDataTTL time.Duration `env:"TELEGRAM_INIT_DATA_TTL" envDefault:"20m"`
}

// GiveawayConfig holds the lifecycle engine knobs.
type GiveawayConfig struct {
	FreeQuota       int           `env:"GIVEAWAY_FREE_QUOTA" envDefault:"5"`
	PremiumQuota    int           `env:"GIVEAWAY_PREMIUM_QUOTA" envDefault:"10"`
	RefreshInterval time.Duration `env:"GIVEAWAY_REFRESH_INTERVAL" envDefault:"30s"`
	IdleTTL         time.Duration `env:"GIVEAWAY_IDLE_TTL" envDefault:"10m"`

	// Whether banned and shadow-banned entrants still count toward the total
	// weight used as the draw denominator.
	CountExcludedWeight bool `env:"GIVEAWAY_COUNT_EXCLUDED_WEIGHT" envDefault:"false"`

	StorageWorkers       int           `env:"GIVEAWAY_STORAGE_WORKERS" envDefault:"8"`
	PlatformWorkers      int           `env:"GIVEAWAY_PLATFORM_WORKERS" envDefault:"4"`
	SchedulerWorkers     int           `env:"GIVEAWAY_SCHEDULER_WORKERS" envDefault:"2"`
	ReconcileConcurrency int           `env:"GIVEAWAY_RECONCILE_CONCURRENCY" envDefault:"4"`
	ShutdownTimeout      time.Duration `env:"GIVEAWAY_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// PresetConfig is the settings bag of the "default" preset every community has.
type PresetConfig struct {
	EnableReactToEnter   bool   `env:"PRESET_ENABLE_REACT_TO_ENTER" envDefault:"true"`
	ReactToEnterEmoji    string `env:"PRESET_REACT_TO_ENTER_EMOJI" envDefault:"🎉"`
	EnableMessageEntries bool   `env:"PRESET_ENABLE_MESSAGE_ENTRIES" envDefault:"true"`
	EntriesPerMessage    int64  `env:"PRESET_ENTRIES_PER_MESSAGE" envDefault:"1"`
	EnableInviteEntries  bool   `env:"PRESET_ENABLE_INVITE_ENTRIES" envDefault:"true"`
	EntriesPerInvite     int64  `env:"PRESET_ENTRIES_PER_INVITE" envDefault:"250"`
	MaxEntries           int64  `env:"PRESET_MAX_ENTRIES" envDefault:"1000"`
	PingWinners          bool   `env:"PRESET_PING_WINNERS" envDefault:"true"`
}

// Load reads the optional .env file and parses the environment into Config.
func Load() (*Config, error) {
	// A missing .env is fine: in production variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Giveaway.FreeQuota <= 0 || c.Giveaway.PremiumQuota < c.Giveaway.FreeQuota {
		return fmt.Errorf("invalid giveaway quota: free=%d premium=%d", c.Giveaway.FreeQuota, c.Giveaway.PremiumQuota)
	}
	if c.Giveaway.RefreshInterval <= 0 {
		return fmt.Errorf("GIVEAWAY_REFRESH_INTERVAL must be positive")
	}
	if c.Giveaway.IdleTTL <= 0 {
		return fmt.Errorf("GIVEAWAY_IDLE_TTL must be positive")
	}
	if c.DefaultPreset.MaxEntries <= 0 {
		return fmt.Errorf("PRESET_MAX_ENTRIES must be positive")
	}
	return nil
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
