// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func LoadRegistry(path string) (*AgentRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg AgentRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// SaveRegistry writes reg as indented JSON, creating the directory if needed.
func SaveRegistry(reg *AgentRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Find returns the agent with the given id.
func (r *AgentRegistry) Find(id string) (*Agent, bool) {
	for i := range r.Agents {
		if r.Agents[i].ID == id {
			return &r.Agents[i], true
		}
	}
	return nil, false
}

// Validate checks ids are unique, required fields are set and every
// recipient is a registered agent.
func (r *AgentRegistry) Validate() error {
	if len(r.Agents) == 0 {
		return fmt.Errorf("registry contains no agents")
	}

	ids := make(map[string]bool, len(r.Agents))
	for _, a := range r.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent missing required field: ID")
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate agent ID: %s", a.ID)
		}
		ids[a.ID] = true

		if a.DisplayName == "" {
			return fmt.Errorf("agent %s missing required field: DisplayName", a.ID)
		}
		if a.TaskType == "" {
			return fmt.Errorf("agent %s missing required field: TaskType", a.ID)
		}
	}

	for _, a := range r.Agents {
		for _, recipient := range a.Recipients {
			if !ids[recipient] {
				return fmt.Errorf("agent %s forwards to unknown agent %s", a.ID, recipient)
			}
		}
	}
	return nil
}
