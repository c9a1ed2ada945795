// internal/workers/mediguard/medical-evaluation/config.go
package medicaleval

import (
	"time"

	"mediguard-agents/internal/common/config"
)

type Config struct {
	Timeout     time.Duration
	Model       string
	Temperature float32
	Recipient   string
}

func NewConfig(cfg *config.Config) *Config {
	agent := config.GetAgentConfig(cfg, TaskType)
	c := DefaultConfig()
	c.Timeout = agent.TimeoutDuration()
	if cfg.OpenAI.EvaluationModel != "" {
		c.Model = cfg.OpenAI.EvaluationModel
	}
	c.Temperature = cfg.OpenAI.EvaluationTemperature
	return c
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		Model:       "gpt-4",
		Temperature: 0.4,
		Recipient:   config.AgentDecision,
	}
}
