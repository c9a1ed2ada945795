// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"mediguard-agents/internal/agents"
	"mediguard-agents/internal/common/config"
	"mediguard-agents/pkg/registry"
)

const defaultRegistryPath = "configs/agent-registry.json"

func main() {
	generateCmd := flag.NewFlagSet("generate", flag.ExitOnError)
	printCmd := flag.NewFlagSet("print", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	generatePath := generateCmd.String("path", defaultRegistryPath, "Path to write the registry to")
	generateConfig := generateCmd.String("config", "", "Config file for timeouts and retries (defaults when empty)")
	printConfig := printCmd.String("config", "", "Config file for timeouts and retries (defaults when empty)")

	updatePath := updateCmd.String("path", defaultRegistryPath, "Path to registry file")
	idUpdate := updateCmd.String("id", "", "Agent ID to update")
	field := updateCmd.String("field", "", "Field to update (status, version, etc.)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultRegistryPath, "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		generateCmd.Parse(os.Args[2:])
		reg, err := buildCatalog(*generateConfig)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if err := registry.SaveRegistry(reg, *generatePath); err != nil {
			fmt.Printf("Error writing registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d agents to %s\n", len(reg.Agents), *generatePath)

	case "print":
		printCmd.Parse(os.Args[2:])
		reg, err := buildCatalog(*printConfig)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		data, _ := json.MarshalIndent(reg, "", "  ")
		fmt.Println(string(data))

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateAgent(*updatePath, *idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating agent: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated agent %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(*validatePath); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func buildCatalog(configPath string) (*registry.AgentRegistry, error) {
	cfg := &config.Config{}
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}
	return agents.Catalog(cfg, time.Now()), nil
}

func updateAgent(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	a, ok := reg.Find(id)
	if !ok {
		return fmt.Errorf("agent with ID %s not found", id)
	}
	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "timeout":
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return registry.SaveRegistry(reg, path)
}

// validateRegistry checks the file on its own and against the compiled agents.
func validateRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	for _, compiled := range agents.Catalog(&config.Config{}, time.Now()).Agents {
		if _, ok := reg.Find(compiled.ID); !ok {
			return fmt.Errorf("agent %s is compiled but missing from the registry", compiled.ID)
		}
	}

	fmt.Printf("Found %d agents.\n", len(reg.Agents))
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  generate Write the registry built from the compiled agents
  print    Print the registry built from the compiled agents
  update   Update an existing agent's field
  validate Validate the registry file
  help     Show this help message

Examples:
  registry-updater generate -path configs/agent-registry.json -config configs/config.yaml
  registry-updater update -id decagent -field version -value 1.1.0
  registry-updater validate -path configs/agent-registry.json

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
