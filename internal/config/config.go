package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	TaskStore    string `mapstructure:"TASK_STORE"` // "redis" or "memory"
	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	PostgresURL  string `mapstructure:"POSTGRES_URL"`
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	RulesDir string `mapstructure:"RULES_DIR"`

	Workers       int    `mapstructure:"WORKERS"`
	QueueSize     int    `mapstructure:"QUEUE_SIZE"`
	MaxRetries    int    `mapstructure:"MAX_RETRIES"`
	ScrapeTimeout int    `mapstructure:"SCRAPE_TIMEOUT"` // seconds, per attempt
	TaskTTLHours  int    `mapstructure:"TASK_TTL_HOURS"`
	RequiredField string `mapstructure:"REQUIRED_FIELDS"` // comma-separated
	AcceptPartial bool   `mapstructure:"ACCEPT_PARTIAL"`

	LLMBaseURL string `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey  string `mapstructure:"LLM_API_KEY"`
	LLMModel   string `mapstructure:"LLM_MODEL"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TASK_STORE", "redis")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("AMQP_EXCHANGE", "scrapeflow.results")
	viper.SetDefault("RULES_DIR", "./rules")
	viper.SetDefault("WORKERS", 10)
	viper.SetDefault("QUEUE_SIZE", 100)
	viper.SetDefault("MAX_RETRIES", 2)
	viper.SetDefault("SCRAPE_TIMEOUT", 30) // in seconds
	viper.SetDefault("TASK_TTL_HOURS", 24)
	viper.SetDefault("REQUIRED_FIELDS", "title,content")
	viper.SetDefault("ACCEPT_PARTIAL", false)
	viper.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("LLM_MODEL", "gpt-4o-mini")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequiredFields returns the configured required-field set as a slice.
func (c *Config) RequiredFields() []string {
	var fields []string
	for _, f := range strings.Split(c.RequiredField, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// AttemptTimeout is the per-attempt extraction deadline.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.ScrapeTimeout) * time.Second
}

// TaskTTL is how long finished task records are retained.
func (c *Config) TaskTTL() time.Duration {
	return time.Duration(c.TaskTTLHours) * time.Hour
}
