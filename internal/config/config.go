// Package config loads the client configuration from an optional YAML
// profile file with environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds endpoint and default settings for the taskwatch client.
type Config struct {
	// BackendURL is the REST API base, e.g. "http://localhost:8080".
	BackendURL string `yaml:"backend_url"`
	// StreamURL is the SSE endpoint prefix; derived from BackendURL + "/api/sse"
	// when empty.
	StreamURL string `yaml:"stream_url"`
	// AgentID is the default agent for commands that take one.
	AgentID string `yaml:"agent_id"`
	// PageSize for historical event loads.
	PageSize int `yaml:"page_size"`
}

// DefaultConfigPath returns the per-user profile location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".taskwatch", "config.yaml")
}

// Load reads the profile at path (missing file is not an error), then applies
// TASKWATCH_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		BackendURL: "http://localhost:8080",
		PageSize:   100,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// No profile; defaults + env apply.
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("TASKWATCH_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("TASKWATCH_STREAM_URL"); v != "" {
		cfg.StreamURL = v
	}
	if v := os.Getenv("TASKWATCH_AGENT_ID"); v != "" {
		cfg.AgentID = v
	}

	if cfg.StreamURL == "" {
		cfg.StreamURL = cfg.BackendURL + "/api/sse"
	}
	return cfg, nil
}
