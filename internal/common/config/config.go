// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig              `mapstructure:"app"`
	Camunda      CamundaConfig          `mapstructure:"camunda"`
	Agents       map[string]AgentConfig `mapstructure:"agents"`
	OpenAI       OpenAIConfig           `mapstructure:"openai"`
	LlamaParse   LlamaParseConfig       `mapstructure:"llama_parse"`
	Files        FilesConfig            `mapstructure:"files"`
	Weather      WeatherConfig          `mapstructure:"weather"`
	SessionStore SessionStoreConfig     `mapstructure:"session_store"`
	Database     DatabaseConfig         `mapstructure:"database"`
	Logging      LoggingConfig          `mapstructure:"logging"`
	Metrics      MetricsConfig          `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress          string `mapstructure:"broker_address"`
	UsePlaintextConnection bool   `mapstructure:"use_plaintext"`
	MessageTTL             int    `mapstructure:"message_ttl"` // milliseconds
	ConnectRetries         int    `mapstructure:"connect_retries"`
}

// AgentConfig holds the settings every agent worker shares.
type AgentConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (a AgentConfig) TimeoutDuration() time.Duration {
	return GetDuration(a.Timeout)
}

type OpenAIConfig struct {
	APIKey                string  `mapstructure:"api_key"`
	BaseURL               string  `mapstructure:"base_url"`
	ChatModel             string  `mapstructure:"chat_model"`
	ChatTemperature       float32 `mapstructure:"chat_temperature"`
	EvaluationModel       string  `mapstructure:"evaluation_model"`
	EvaluationTemperature float32 `mapstructure:"evaluation_temperature"`
	EmbeddingModel        string  `mapstructure:"embedding_model"`
	EmbeddingBatchSize    int     `mapstructure:"embedding_batch_size"`
	RateLimitRPS          float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int     `mapstructure:"rate_limit_burst"`
	Timeout               int     `mapstructure:"timeout"` // milliseconds
}

type LlamaParseConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	ResultType   string `mapstructure:"result_type"`
	PollInterval int    `mapstructure:"poll_interval"` // milliseconds
	MaxWait      int    `mapstructure:"max_wait"`      // milliseconds
}

// Enabled reports whether cloud parsing is configured.
func (l LlamaParseConfig) Enabled() bool {
	return l.APIKey != ""
}

type FilesConfig struct {
	BaseURL string `mapstructure:"base_url"`
	JWT     string `mapstructure:"jwt"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type WeatherConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type SessionStoreConfig struct {
	Backend     string `mapstructure:"backend"` // memory | redis
	MaxSessions int    `mapstructure:"max_sessions"`
	TTL         int    `mapstructure:"ttl"` // milliseconds
	KeyPrefix   string `mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// Enabled reports whether the decision audit database is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}
