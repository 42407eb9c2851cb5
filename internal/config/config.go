package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-level configuration. Runtime tunables that operators
// change while the service runs live in the settings store instead.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	TimeZone      string
	DatabaseURL   string
	AdminAPIKey   string
	SnowflakeNode int64

	// SchedulerEnabled starts the cron triggers in serve mode.
	SchedulerEnabled bool

	Billing   BillingConfig
	Messaging MessagingConfig
	Traccar   TraccarConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Tracing   TracingConfig
	Settings  SettingsConfig
}

type BillingConfig struct {
	BaseURL      string
	APIKey       string
	WebhookToken string
	Timeout      time.Duration
	PageSize     int
	PageDelay    time.Duration
}

// Configured reports whether the billing adapter has credentials.
func (c BillingConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.APIKey) != ""
}

type MessagingConfig struct {
	TwilioAccountSID   string
	TwilioAuthToken    string
	WhatsAppFrom       string
	DefaultCountryCode string
	MaxRetries         int
	RetryDelay         time.Duration
	Timeout            time.Duration
}

func (c MessagingConfig) Configured() bool {
	return strings.TrimSpace(c.TwilioAccountSID) != "" &&
		strings.TrimSpace(c.TwilioAuthToken) != "" &&
		strings.TrimSpace(c.WhatsAppFrom) != ""
}

type TraccarConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

func (c TraccarConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.Username) != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL           string
	Exchange      string
	RelayInterval time.Duration
	BatchSize     int
}

type TracingConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

type SettingsConfig struct {
	CacheTTL time.Duration
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

var ErrMissingDatabaseURL = errors.New("missing_database_url")

// Load reads configuration from an optional .env file, an optional YAML
// config file and the process environment, in increasing precedence.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	cfg := Config{
		AppName:          v.GetString("APP_NAME"),
		AppVersion:       v.GetString("APP_VERSION"),
		Environment:      v.GetString("ENVIRONMENT"),
		HTTPAddr:         v.GetString("HTTP_ADDR"),
		TimeZone:         v.GetString("TIME_ZONE"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		AdminAPIKey:      v.GetString("ADMIN_API_KEY"),
		SnowflakeNode:    v.GetInt64("SNOWFLAKE_NODE"),
		SchedulerEnabled: v.GetBool("SCHEDULER_ENABLED"),
		Billing: BillingConfig{
			BaseURL:      v.GetString("BILLING_BASE_URL"),
			APIKey:       v.GetString("BILLING_API_KEY"),
			WebhookToken: v.GetString("BILLING_WEBHOOK_TOKEN"),
			Timeout:      v.GetDuration("BILLING_TIMEOUT"),
			PageSize:     v.GetInt("BILLING_PAGE_SIZE"),
			PageDelay:    v.GetDuration("BILLING_PAGE_DELAY"),
		},
		Messaging: MessagingConfig{
			TwilioAccountSID:   v.GetString("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:    v.GetString("TWILIO_AUTH_TOKEN"),
			WhatsAppFrom:       v.GetString("TWILIO_WHATSAPP_NUMBER"),
			DefaultCountryCode: v.GetString("MESSAGING_DEFAULT_COUNTRY_CODE"),
			MaxRetries:         v.GetInt("MESSAGING_MAX_RETRIES"),
			RetryDelay:         v.GetDuration("MESSAGING_RETRY_DELAY"),
			Timeout:            v.GetDuration("MESSAGING_TIMEOUT"),
		},
		Traccar: TraccarConfig{
			BaseURL:  v.GetString("TRACCAR_BASE_URL"),
			Username: v.GetString("TRACCAR_USERNAME"),
			Password: v.GetString("TRACCAR_PASSWORD"),
			Timeout:  v.GetDuration("TRACCAR_TIMEOUT"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:           v.GetString("RABBITMQ_URL"),
			Exchange:      v.GetString("RABBITMQ_EXCHANGE"),
			RelayInterval: v.GetDuration("RABBITMQ_RELAY_INTERVAL"),
			BatchSize:     v.GetInt("RABBITMQ_RELAY_BATCH_SIZE"),
		},
		Tracing: TracingConfig{
			Enabled:          v.GetBool("OTEL_ENABLED"),
			ExporterEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ExporterProtocol: v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"),
			SamplingRatio:    v.GetFloat64("OTEL_SAMPLING_RATIO"),
		},
		Settings: SettingsConfig{
			CacheTTL: v.GetDuration("SETTINGS_CACHE_TTL"),
		},
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return cfg, ErrMissingDatabaseURL
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "noty")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TIME_ZONE", "America/Sao_Paulo")
	v.SetDefault("SNOWFLAKE_NODE", 1)
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("BILLING_BASE_URL", "https://api.asaas.com/v3")
	v.SetDefault("BILLING_TIMEOUT", 30*time.Second)
	v.SetDefault("BILLING_PAGE_SIZE", 100)
	v.SetDefault("BILLING_PAGE_DELAY", 500*time.Millisecond)
	v.SetDefault("MESSAGING_DEFAULT_COUNTRY_CODE", "55")
	v.SetDefault("MESSAGING_MAX_RETRIES", 2)
	v.SetDefault("MESSAGING_RETRY_DELAY", 2*time.Second)
	v.SetDefault("MESSAGING_TIMEOUT", 20*time.Second)
	v.SetDefault("TRACCAR_TIMEOUT", 30*time.Second)
	v.SetDefault("RABBITMQ_EXCHANGE", "noty.events")
	v.SetDefault("RABBITMQ_RELAY_INTERVAL", 5*time.Second)
	v.SetDefault("RABBITMQ_RELAY_BATCH_SIZE", 100)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)
	v.SetDefault("SETTINGS_CACHE_TTL", 5*time.Second)
}
