package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all toolclaw configuration
type Config struct {
	// Registry socket the gateway connects to (and the registry binds)
	Registry RegistryConfig `json:"registry"`

	// Web server settings for the gateway
	Web WebConfig `json:"web"`

	// LLM provider settings
	LLM LLMConfig `json:"llm"`

	// Session lifecycle settings
	Session SessionConfig `json:"session"`

	// Orchestrator settings
	Orchestrator OrchestratorConfig `json:"orchestrator"`

	// Tool pack settings for the registry daemon
	Tools ToolsConfig `json:"tools"`

	// UI hints passed through to the frontend
	UI UIConfig `json:"ui"`

	LogLevel string `json:"logLevel"`
}

type RegistryConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// ReadTimeoutSecs bounds each RPC round trip on the client side
	ReadTimeoutSecs int `json:"readTimeoutSecs"`
}

// Addr returns the host:port address of the registry socket.
func (r RegistryConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ReadTimeout returns the RPC read timeout as a duration.
func (r RegistryConfig) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutSecs) * time.Second
}

type WebConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the host:port address the web server binds.
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

type LLMConfig struct {
	BaseURL      string  `json:"baseUrl"`
	APIKey       string  `json:"apiKey"`
	Models       []Model `json:"models"`
	DefaultModel string  `json:"defaultModel"`
	Stream       bool    `json:"stream"`
}

type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type SessionConfig struct {
	TimeoutSecs       int `json:"timeoutSecs"`
	SweepIntervalSecs int `json:"sweepIntervalSecs"`
}

// Timeout returns the session idle timeout as a duration.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

type OrchestratorConfig struct {
	// MaxTurns caps tool-call round trips within one chat turn so a
	// model that keeps requesting tools cannot loop forever.
	MaxTurns int `json:"maxTurns"`
}

type ToolsConfig struct {
	// Dir is the pack directory scanned by the registry daemon
	Dir string `json:"dir"`
	// AuditPath is the sqlite file for the invocation audit log.
	// Empty disables auditing.
	AuditPath string `json:"auditPath,omitempty"`
}

type UIConfig struct {
	Title      string `json:"title"`
	Theme      string `json:"theme"`
	AutoScroll bool   `json:"autoScroll"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Host:            "localhost",
			Port:            8888,
			ReadTimeoutSecs: 30,
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 5000,
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			DefaultModel: "gpt-4o-mini",
			Stream:       true,
		},
		Session: SessionConfig{
			TimeoutSecs:       3600,
			SweepIntervalSecs: 60,
		},
		Orchestrator: OrchestratorConfig{
			MaxTurns: 10,
		},
		Tools: ToolsConfig{
			Dir: "tools",
		},
		UI: UIConfig{
			Title:      "toolclaw",
			Theme:      "light",
			AutoScroll: true,
		},
		LogLevel: "info",
	}
}

// Load reads config from a JSON file, layered over defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes config to a JSON file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0640)
}

// ParseLogLevel converts a string log level to slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
