// Package agents lists the compiled agents in registry form.
package agents

import (
	"time"

	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/workers/mediguard/decision"
	filechat "mediguard-agents/internal/workers/mediguard/file-chat"
	medicaleval "mediguard-agents/internal/workers/mediguard/medical-evaluation"
	getweather "mediguard-agents/internal/workers/weather/get-weather"
	"mediguard-agents/pkg/registry"
)

const Version = "1.0.0"

// Catalog describes every agent with the timeouts and retries of cfg.
func Catalog(cfg *config.Config, now time.Time) *registry.AgentRegistry {
	agent := func(id, displayName, description, category string, schema map[string]interface{}, codes []errors.ErrorCode, recipients []string, tags ...string) registry.Agent {
		ac := config.GetAgentConfig(cfg, id)
		codeNames := make([]string, 0, len(codes)+1)
		for _, c := range codes {
			codeNames = append(codeNames, string(c))
		}
		codeNames = append(codeNames, string(errors.ErrCodeInternal))
		if recipients == nil {
			recipients = []string{}
		}
		return registry.Agent{
			ID:                   id,
			DisplayName:          displayName,
			Description:          description,
			Category:             category,
			Version:              Version,
			TaskType:             id,
			ImplementationStatus: "completed",
			InputSchema:          schema,
			ErrorCodes:           codeNames,
			Timeout:              ac.TimeoutDuration().String(),
			Retries:              ac.MaxRetries,
			Recipients:           recipients,
			Tags:                 tags,
		}
	}

	fileChatCfg := filechat.NewConfig(cfg)
	evalCfg := medicaleval.NewConfig(cfg)

	return &registry.AgentRegistry{
		Version:     Version,
		LastUpdated: now.UTC().Format(time.RFC3339),
		Agents: []registry.Agent{
			agent(getweather.TaskType, "Get Weather", getweather.Description, "weather",
				getweather.InputSchema.Raw(),
				[]errors.ErrorCode{errors.ErrCodeValidationFailed, errors.ErrCodeUpstreamAPIFailed,
					errors.ErrCodeUpstreamTimeout, errors.ErrCodeUpstreamResponse},
				nil, "weather", "http"),
			agent(filechat.TaskType, "File Chat", filechat.Description, "mediguard",
				filechat.InputSchema.Raw(),
				[]errors.ErrorCode{errors.ErrCodeValidationFailed, errors.ErrCodeSessionStoreFailed,
					errors.ErrCodeMessageForwardFailed},
				[]string{fileChatCfg.Recipient}, "llm", "rag", "documents"),
			agent(medicaleval.TaskType, "Medical Evaluation", medicaleval.Description, "mediguard",
				medicaleval.InputSchema.Raw(),
				[]errors.ErrorCode{errors.ErrCodeValidationFailed, errors.ErrCodeUpstreamAPIFailed,
					errors.ErrCodeUpstreamTimeout, errors.ErrCodeLLMResponseInvalid, errors.ErrCodeMessageForwardFailed},
				[]string{evalCfg.Recipient}, "llm", "evaluation"),
			agent(decision.TaskType, "Decision", decision.Description, "mediguard",
				decision.InputSchema.Raw(),
				[]errors.ErrorCode{errors.ErrCodeValidationFailed},
				nil, "decision"),
		},
	}
}
