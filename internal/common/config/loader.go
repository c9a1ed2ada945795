// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Agent names, also used as job types and message names on the runtime.
const (
	AgentWeather    = "get_weather"
	AgentFileChat   = "llamaindex_file_chat"
	AgentEvaluation = "mevalagent"
	AgentDecision   = "decagent"
)

// KnownAgents lists every agent the worker manager can start.
var KnownAgents = []string{AgentWeather, AgentFileChat, AgentEvaluation, AgentDecision}

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

func envOr(dst *string, names ...string) {
	if *dst != "" {
		return
	}
	for _, n := range names {
		if val := os.Getenv(n); val != "" {
			*dst = val
			return
		}
	}
}

// overrideFromEnv fills secrets that were left empty in the yaml files.
// Nothing secret has a compiled-in default.
func overrideFromEnv(cfg *Config) {
	envOr(&cfg.Camunda.BrokerAddress, "ZEEBE_ADDRESS")
	envOr(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	envOr(&cfg.OpenAI.ChatModel, "OPENAI_MODEL")
	envOr(&cfg.OpenAI.EmbeddingModel, "OPENAI_EMBEDDING_MODEL")
	envOr(&cfg.LlamaParse.APIKey, "LLAMA_CLOUD_API_KEY")
	envOr(&cfg.Files.JWT, "AGENT_JWT")
	envOr(&cfg.Weather.APIKey, "WEATHER_API_KEY", "REQUEST_KEY")
	envOr(&cfg.Database.Postgres.User, "DB_USER")
	envOr(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	envOr(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "mediguard-agents"
	}
	if cfg.Camunda.MessageTTL == 0 {
		cfg.Camunda.MessageTTL = 3600000
	}
	if cfg.Camunda.ConnectRetries == 0 {
		cfg.Camunda.ConnectRetries = 10
	}

	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.ChatTemperature == 0 {
		cfg.OpenAI.ChatTemperature = 0.1
	}
	if cfg.OpenAI.EvaluationModel == "" {
		cfg.OpenAI.EvaluationModel = "gpt-4"
	}
	if cfg.OpenAI.EvaluationTemperature == 0 {
		cfg.OpenAI.EvaluationTemperature = 0.4
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.EmbeddingBatchSize == 0 {
		cfg.OpenAI.EmbeddingBatchSize = 64
	}
	if cfg.OpenAI.RateLimitRPS == 0 {
		cfg.OpenAI.RateLimitRPS = 5
	}
	if cfg.OpenAI.RateLimitBurst == 0 {
		cfg.OpenAI.RateLimitBurst = 10
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 60000
	}

	if cfg.LlamaParse.BaseURL == "" {
		cfg.LlamaParse.BaseURL = "https://api.cloud.llamaindex.ai"
	}
	if cfg.LlamaParse.ResultType == "" {
		cfg.LlamaParse.ResultType = "markdown"
	}
	if cfg.LlamaParse.PollInterval == 0 {
		cfg.LlamaParse.PollInterval = 1000
	}
	if cfg.LlamaParse.MaxWait == 0 {
		cfg.LlamaParse.MaxWait = 90000
	}

	if cfg.Files.Timeout == 0 {
		cfg.Files.Timeout = 30000
	}

	if cfg.Weather.BaseURL == "" {
		cfg.Weather.BaseURL = "http://api.weatherapi.com/v1/forecast.json"
	}
	if cfg.Weather.Timeout == 0 {
		cfg.Weather.Timeout = 10000
	}

	if cfg.SessionStore.Backend == "" {
		cfg.SessionStore.Backend = "memory"
	}
	if cfg.SessionStore.MaxSessions == 0 {
		cfg.SessionStore.MaxSessions = 256
	}
	if cfg.SessionStore.TTL == 0 {
		cfg.SessionStore.TTL = 7200000
	}
	if cfg.SessionStore.KeyPrefix == "" {
		cfg.SessionStore.KeyPrefix = "filechat:session:"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":8080"
	}

	if cfg.Agents == nil {
		cfg.Agents = make(map[string]AgentConfig)
	}
	for _, name := range KnownAgents {
		if _, ok := cfg.Agents[name]; !ok {
			cfg.Agents[name] = AgentConfig{Enabled: true}
		}
	}
	for key, agent := range cfg.Agents {
		if agent.MaxJobsActive == 0 {
			agent.MaxJobsActive = 5
		}
		if agent.Timeout == 0 {
			agent.Timeout = defaultAgentTimeout(key)
		}
		if agent.MaxRetries == 0 {
			agent.MaxRetries = 3
		}
		cfg.Agents[key] = agent
	}
}

// the file-chat job lock covers its 120s workflow plus the forward.
func defaultAgentTimeout(name string) int {
	if name == AgentFileChat {
		return 140000
	}
	return 30000
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}
	switch cfg.SessionStore.Backend {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis session store")
		}
	default:
		return fmt.Errorf("session_store.backend must be memory or redis, got %q", cfg.SessionStore.Backend)
	}

	needsLLM := IsAgentEnabled(cfg, AgentFileChat) || IsAgentEnabled(cfg, AgentEvaluation)
	if needsLLM && cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required when %s or %s is enabled", AgentFileChat, AgentEvaluation)
	}
	if IsAgentEnabled(cfg, AgentFileChat) && cfg.Files.BaseURL == "" {
		return fmt.Errorf("files.base_url is required when %s is enabled", AgentFileChat)
	}
	if IsAgentEnabled(cfg, AgentWeather) && cfg.Weather.APIKey == "" {
		return fmt.Errorf("weather.api_key is required when %s is enabled", AgentWeather)
	}
	if cfg.Database.Postgres.Enabled() && cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required when postgres host is set")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetAgentConfig retrieves agent configuration with fallback to defaults
func GetAgentConfig(cfg *Config, name string) AgentConfig {
	if agent, ok := cfg.Agents[name]; ok {
		return agent
	}
	return AgentConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       defaultAgentTimeout(name),
		MaxRetries:    3,
	}
}

// IsAgentEnabled checks if a specific agent is enabled
func IsAgentEnabled(cfg *Config, name string) bool {
	if agent, ok := cfg.Agents[name]; ok {
		return agent.Enabled
	}
	return true
}
