// internal/workers/mediguard/file-chat/config.go
package filechat

import (
	"time"

	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/session"
)

const (
	defaultWorkflowTimeout = 120 * time.Second
	// forwardMargin is what the handler keeps after the workflow to forward.
	forwardMargin = 10 * time.Second
	// lockMargin keeps the handler inside the job lock.
	lockMargin = 5 * time.Second
)

type Config struct {
	Timeout          time.Duration
	WorkflowTimeout  time.Duration
	ChatModel        string
	ChatTemperature  float32
	TopK             int
	ChunkSize        int
	ChunkOverlap     int
	MemoryTokenLimit int
	Recipient        string
}

// NewConfig derives the agent settings from the application config.
func NewConfig(cfg *config.Config) *Config {
	agent := config.GetAgentConfig(cfg, TaskType)
	c := DefaultConfig()
	c.Timeout, c.WorkflowTimeout = Budgets(agent.TimeoutDuration())
	c.ChatModel = cfg.OpenAI.ChatModel
	c.ChatTemperature = cfg.OpenAI.ChatTemperature
	return c
}

// Budgets splits a job timeout into the handler and workflow timeouts so
// that workflow < handler < job for any positive job timeout. The workflow
// never gets more than 120s.
func Budgets(job time.Duration) (handler, workflow time.Duration) {
	handler = job - lockMargin
	if handler < job/2 {
		handler = job / 2
	}
	workflow = handler - forwardMargin
	if workflow < handler/2 {
		workflow = handler / 2
	}
	if workflow > defaultWorkflowTimeout {
		workflow = defaultWorkflowTimeout
	}
	return handler, workflow
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:          135 * time.Second,
		WorkflowTimeout:  defaultWorkflowTimeout,
		ChatModel:        "gpt-4o-mini",
		ChatTemperature:  0.1,
		TopK:             2,
		ChunkSize:        1024,
		ChunkOverlap:     20,
		MemoryTokenLimit: session.DefaultMemoryTokenLimit,
		Recipient:        config.AgentEvaluation,
	}
}
