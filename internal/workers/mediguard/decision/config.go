// internal/workers/mediguard/decision/config.go
package decision

import (
	"time"

	"mediguard-agents/internal/common/config"
)

type Config struct {
	Timeout         time.Duration
	HighThreshold   float64
	MediumThreshold float64
	AuditTimeout    time.Duration
}

func NewConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.Timeout = config.GetAgentConfig(cfg, TaskType).TimeoutDuration()
	return c
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		HighThreshold:   0.85,
		MediumThreshold: 0.5,
		AuditTimeout:    5 * time.Second,
	}
}
