// Package config loads tether demo configuration from TOML with env overrides.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Provider  ProviderConfig  `toml:"provider"`
	Agent     AgentConfig     `toml:"agent"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Store     StoreConfig     `toml:"store"`
	MCP       MCPConfig       `toml:"mcp"`
}

type ProviderConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type AgentConfig struct {
	Name         string `toml:"name"`
	SystemPrompt string `toml:"system_prompt"`
	MaxCycles    int    `toml:"max_cycles"`
	WindowSize   int    `toml:"window_size"`
}

type TelemetryConfig struct {
	Enabled                 bool   `toml:"enabled"`
	ConsoleTrace            bool   `toml:"console_trace"`
	ExperimentalConventions bool   `toml:"experimental_conventions"`
	ServiceName             string `toml:"service_name"`
}

type StoreConfig struct {
	Driver    string `toml:"driver"` // "sqlite" or "postgres"
	Path      string `toml:"path"`
	DSN       string `toml:"dsn"`
	SessionID string `toml:"session_id"`
}

type MCPConfig struct {
	Endpoint string `toml:"endpoint"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:  ProviderConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
		Agent:     AgentConfig{Name: "tether", MaxCycles: 25, WindowSize: 40},
		Telemetry: TelemetryConfig{ServiceName: "tether-demo"},
		Store:     StoreConfig{Driver: "sqlite", Path: "tether.db", SessionID: "default"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "tether.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("TETHER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("TETHER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("TETHER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("TETHER_MCP_ENDPOINT"); v != "" {
		cfg.MCP.Endpoint = v
	}
	if v := os.Getenv("TETHER_TELEMETRY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Enabled = b
		}
	}
	if v := os.Getenv("TETHER_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
		cfg.Store.Driver = "postgres"
	}

	return cfg
}
