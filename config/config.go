package config

import (
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"11000"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	AliasDomain string `env:"ALIAS_DOMAIN" envDefault:"veilmail.io"`
	Logger      *logger.Config
	Tracing     *tracing.JaegerConfig
}

type RelayDatabaseConfig struct {
	Host            string `env:"RELAY_POSTGRES_HOST,required"`
	Port            string `env:"RELAY_POSTGRES_PORT,required"`
	User            string `env:"RELAY_POSTGRES_USER,required"`
	DBName          string `env:"RELAY_POSTGRES_DB_NAME,required"`
	Password        string `env:"RELAY_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"RELAY_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"RELAY_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"RELAY_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"RELAY_POSTGRES_LOG_LEVEL" envDefault:"warn"`
	SSLMode         string `env:"RELAY_POSTGRES_SSL_MODE"`
}

type ArchiveStorageConfig struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	ArchiveBucket   string `env:"BUCKET_NAME_RAW_MESSAGES" envDefault:"raw-messages"`
}

type BreachWatchConfig struct {
	APIKey    string `env:"BREACH_API_KEY"`
	BaseURL   string `env:"BREACH_API_BASE_URL" envDefault:"https://haveibeenpwned.com/api/v3"`
	UserAgent string `env:"BREACH_API_USER_AGENT" envDefault:"veilmail-relay"`
	// Minimum milliseconds between lookups, sized to the upstream quota.
	MinIntervalMs int `env:"BREACH_API_MIN_INTERVAL_MS" envDefault:"1600"`
	// How stale a check may get before the sweep picks the alias up again.
	RecheckIntervalHours int `env:"BREACH_RECHECK_INTERVAL_HOURS" envDefault:"24"`
	SweepBatchSize       int `env:"BREACH_SWEEP_BATCH_SIZE" envDefault:"200"`
}

type ProviderConfig struct {
	Kind string `env:"SEND_PROVIDER" envDefault:"smtp"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	PostmarkServerToken string `env:"POSTMARK_SERVER_TOKEN"`

	// Outbound sends per second across all forwards.
	SendRatePerSecond float64 `env:"SEND_RATE_PER_SECOND" envDefault:"5"`
}
