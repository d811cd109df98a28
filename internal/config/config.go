// Package config loads the agentcore YAML configuration file: provider
// credentials, MCP server definitions, and loop tuning.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nexcore/agentcore/internal/mcp"
)

// Config is the top-level agentcore configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	MCP      mcp.Config     `yaml:"mcp"`
	Loop     LoopConfig     `yaml:"loop"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
}

// ProviderConfig selects and authenticates the model provider backing the
// agent loop.
type ProviderConfig struct {
	// Name selects the provider: "anthropic" or "openai".
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// LoopConfig tunes the agent turn loop.
type LoopConfig struct {
	SystemPrompt  string `yaml:"system_prompt"`
	MaxTokens     int    `yaml:"max_tokens"`
	MaxIterations int    `yaml:"max_iterations"`
}

// SandboxConfig configures the code-execution sandbox runner.
type SandboxConfig struct {
	// Command is the argv for the sandbox runner subprocess, e.g. ["node",
	// "sandbox-runner.js"]. Load only reads it; nothing in this repository
	// builds a sandbox.Controller or the execute_code tool from it.
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads and parses the configuration file at path, expanding
// environment variable references (${VAR}) first and rejecting unknown
// fields and trailing documents.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single document")
	}

	if cfg.Loop.MaxTokens == 0 {
		cfg.Loop.MaxTokens = 4096
	}
	if cfg.Loop.MaxIterations == 0 {
		cfg.Loop.MaxIterations = 25
	}
	if cfg.Sandbox.Timeout == 0 {
		cfg.Sandbox.Timeout = 30 * time.Second
	}

	return &cfg, nil
}
