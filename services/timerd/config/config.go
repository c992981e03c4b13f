package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for timerd.
type Config struct {
	LogLevel     string
	HTTPPort     string
	GRPCPort     string
	MetricsAddr  string
	OTelEndpoint string

	TickInterval  time.Duration
	MaxTimers     int
	NotifyTimeout time.Duration

	KafkaBrokers  string
	KafkaEncoding string

	RedisAddr       string
	StateTTL        time.Duration
	CreateRateLimit int

	PostgresDSN string

	WebhookURL     string
	WebhookRetries int

	SMTPAddr     string
	SMTPFrom     string
	SMTPTo       string
	SMTPUsername string
	SMTPPassword string

	PresetsFile string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		HTTPPort:        v.GetString("http_port"),
		GRPCPort:        v.GetString("grpc_port"),
		MetricsAddr:     v.GetString("metrics_addr"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
		TickInterval:    v.GetDuration("tick_interval"),
		MaxTimers:       v.GetInt("max_timers"),
		NotifyTimeout:   v.GetDuration("notify_timeout"),
		KafkaBrokers:    v.GetString("kafka_brokers"),
		KafkaEncoding:   v.GetString("kafka_encoding"),
		RedisAddr:       v.GetString("redis_addr"),
		StateTTL:        v.GetDuration("state_ttl"),
		CreateRateLimit: v.GetInt("create_rate_limit"),
		PostgresDSN:     v.GetString("postgres_dsn"),
		WebhookURL:      v.GetString("webhook_url"),
		WebhookRetries:  v.GetInt("webhook_retries"),
		SMTPAddr:        v.GetString("smtp_addr"),
		SMTPFrom:        v.GetString("smtp_from"),
		SMTPTo:          v.GetString("smtp_to"),
		SMTPUsername:    v.GetString("smtp_username"),
		SMTPPassword:    v.GetString("smtp_password"),
		PresetsFile:     v.GetString("presets_file"),
	}
}

// Brokers splits KafkaBrokers on commas, dropping blanks. Nil means Kafka is
// disabled.
func (c Config) Brokers() []string { return splitList(c.KafkaBrokers) }

// Recipients splits SMTPTo on commas.
func (c Config) Recipients() []string { return splitList(c.SMTPTo) }

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
