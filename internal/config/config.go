package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	AIProvider    string        `mapstructure:"AI_PROVIDER"`
	GeminiAPIKey  string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel   string        `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL string        `mapstructure:"GEMINI_BASE_URL"`
	OpenAIBaseURL string        `mapstructure:"OPENAI_BASE_URL"`
	OpenAIAPIKey  string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel   string        `mapstructure:"OPENAI_MODEL"`
	AITimeout     time.Duration `mapstructure:"AI_TIMEOUT"`
	AICacheTTL    time.Duration `mapstructure:"AI_CACHE_TTL"`

	Timezone           string `mapstructure:"TIMEZONE"`
	AfterHoursStart    int    `mapstructure:"AFTER_HOURS_START"`
	AfterHoursEnd      int    `mapstructure:"AFTER_HOURS_END"`
	BusinessHoursStart int    `mapstructure:"BUSINESS_HOURS_START"`
	BusinessHoursEnd   int    `mapstructure:"BUSINESS_HOURS_END"`
	RulesFile          string `mapstructure:"RULES_FILE"`

	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaTasksTopic string `mapstructure:"KAFKA_TASKS_TOPIC"`
	TelegramToken   string `mapstructure:"TELEGRAM_TOKEN"`

	MQTTBrokerURL   string `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID    string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername    string `mapstructure:"MQTT_USERNAME"`
	MQTTPassword    string `mapstructure:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `mapstructure:"MQTT_TOPIC_PREFIX"`

	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	SessionSweepSchedule string        `mapstructure:"SESSION_SWEEP_SCHEDULE"`
	ReclassifySchedule   string        `mapstructure:"RECLASSIFY_SCHEDULE"`
}

// AI provider names accepted in AI_PROVIDER.
const (
	ProviderNone   = "none"
	ProviderMock   = "mock"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	// Unmarshal only sees keys viper knows about; keys without a default
	// (DATABASE_URL, tokens) must be bound explicitly.
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if key := t.Field(i).Tag.Get("mapstructure"); key != "" {
			_ = v.BindEnv(key)
		}
	}

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("AI_PROVIDER", "")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_TIMEOUT", "15s")
	v.SetDefault("AI_CACHE_TTL", "10m")
	v.SetDefault("TIMEZONE", "Asia/Kolkata")
	v.SetDefault("AFTER_HOURS_START", 22)
	v.SetDefault("AFTER_HOURS_END", 6)
	v.SetDefault("BUSINESS_HOURS_START", 8)
	v.SetDefault("BUSINESS_HOURS_END", 18)
	v.SetDefault("KAFKA_TASKS_TOPIC", "applifix.tasks")
	v.SetDefault("MQTT_CLIENT_ID", "applifix-backend")
	v.SetDefault("MQTT_TOPIC_PREFIX", "applifix")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("SESSION_SWEEP_SCHEDULE", "@every 5m")
	v.SetDefault("RECLASSIFY_SCHEDULE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for name, h := range map[string]int{
		"AFTER_HOURS_START":    c.AfterHoursStart,
		"AFTER_HOURS_END":      c.AfterHoursEnd,
		"BUSINESS_HOURS_START": c.BusinessHoursStart,
		"BUSINESS_HOURS_END":   c.BusinessHoursEnd,
	} {
		if h < 0 || h > 23 {
			return fmt.Errorf("%s must be an hour between 0 and 23, got %d", name, h)
		}
	}
	return nil
}

// ResolvedAIProvider picks the provider from AI_PROVIDER, or from whichever
// credential is present when it is unset.
func (c Config) ResolvedAIProvider() string {
	p := strings.ToLower(strings.TrimSpace(c.AIProvider))
	if p != "" {
		return p
	}
	switch {
	case c.GeminiAPIKey != "":
		return ProviderGemini
	case c.OpenAIBaseURL != "":
		return ProviderOpenAI
	default:
		return ProviderNone
	}
}

func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
