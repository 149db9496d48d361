package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"workspace-editor-server/internal/filesystem"
	"workspace-editor-server/internal/llm"
)

// Config holds all configurable values for the server.
type Config struct {
	WorkingDirectory    string
	Transport           string
	Port                int
	MaxFileSizeMB       int
	MaxRequestSizeMB    int
	OperationTimeoutSec int
	ConfigFile          string

	LogFormat string
	LogLevel  string

	// ExcludedDirs are directory names left out of workspace snapshots. Nil
	// keeps the workspace defaults.
	ExcludedDirs []string
	// BatchToolEnabled exposes the apply_changes tool to the engine.
	BatchToolEnabled bool

	Provider ProviderConfig
}

// ProviderConfig selects the reasoning engine.
type ProviderConfig struct {
	Type            string   `yaml:"type"`
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	APIKeyEnv       string   `yaml:"api_key_env"`
	Temperature     *float64 `yaml:"temperature"`
	MaxTokens       int64    `yaml:"max_tokens"`
	PhaseTimeoutSec int      `yaml:"phase_timeout_sec"`
}

// fileConfig is the YAML layout of -config files.
type fileConfig struct {
	Dir              string `yaml:"dir"`
	Transport        string `yaml:"transport"`
	Port             int    `yaml:"port"`
	MaxFileSizeMB    int    `yaml:"max_file_size_mb"`
	MaxRequestSizeMB int    `yaml:"max_request_size_mb"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	Log              struct {
		Format string `yaml:"format"`
		Level  string `yaml:"level"`
	} `yaml:"log"`
	Workspace struct {
		ExcludedDirs []string `yaml:"excluded_dirs"`
	} `yaml:"workspace"`
	Tools struct {
		BatchEnabled *bool `yaml:"batch_enabled"`
	} `yaml:"tools"`
	Provider ProviderConfig `yaml:"provider"`
}

const (
	defaultTemperature     = 0.7
	defaultMaxTokens       = 2000
	defaultPhaseTimeoutSec = 120

	defaultCompatibleBaseURL = "https://api.deepseek.com/v1"
	defaultCompatibleModel   = "deepseek-chat"
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultAnthropicModel    = "claude-3-5-sonnet-latest"
)

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	temp := defaultTemperature
	return &Config{
		Transport:           "http",
		Port:                8080,
		MaxFileSizeMB:       10,
		MaxRequestSizeMB:    50,
		OperationTimeoutSec: 30,
		LogFormat:           "json",
		LogLevel:            "info",
		BatchToolEnabled:    true,
		Provider: ProviderConfig{
			Type:            llm.ProviderOpenAICompatible,
			Temperature:     &temp,
			MaxTokens:       defaultMaxTokens,
			PhaseTimeoutSec: defaultPhaseTimeoutSec,
		},
	}
}

// ParseFlags parses the process command line.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse builds a Config from args. Values come from the defaults, then the
// -config file, then flags set explicitly on the command line.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("workspace-editor", flag.ContinueOnError)
	flagged := Default()
	var temperature float64

	fs.StringVar(&flagged.WorkingDirectory, "dir", "", "Path to the working directory (required)")
	fs.StringVar(&flagged.Transport, "transport", flagged.Transport, "Transport protocol (http or stdio)")
	fs.IntVar(&flagged.Port, "port", flagged.Port, "Port for HTTP transport")
	fs.IntVar(&flagged.MaxFileSizeMB, "max-file-size", flagged.MaxFileSizeMB, "Maximum file size in MB")
	fs.IntVar(&flagged.MaxRequestSizeMB, "max-request-size", flagged.MaxRequestSizeMB, "Maximum request size in MB")
	fs.IntVar(&flagged.OperationTimeoutSec, "timeout", flagged.OperationTimeoutSec, "Workspace lock timeout in seconds")
	fs.StringVar(&flagged.ConfigFile, "config", "", "Path to a YAML config file")
	fs.StringVar(&flagged.LogFormat, "log-format", flagged.LogFormat, "Log format (json or text)")
	fs.StringVar(&flagged.LogLevel, "log-level", flagged.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&flagged.Provider.Type, "provider", flagged.Provider.Type, "Reasoning engine provider (openai, openai_compatible, anthropic)")
	fs.StringVar(&flagged.Provider.BaseURL, "base-url", "", "Provider base URL")
	fs.StringVar(&flagged.Provider.Model, "model", "", "Provider model")
	fs.Float64Var(&temperature, "temperature", defaultTemperature, "Sampling temperature")
	fs.IntVar(&flagged.Provider.PhaseTimeoutSec, "phase-timeout", flagged.Provider.PhaseTimeoutSec, "Per-phase engine timeout in seconds")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.ConfigFile = strings.TrimSpace(flagged.ConfigFile)
	if cfg.ConfigFile != "" {
		if err := cfg.loadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.WorkingDirectory = flagged.WorkingDirectory
		case "transport":
			cfg.Transport = flagged.Transport
		case "port":
			cfg.Port = flagged.Port
		case "max-file-size":
			cfg.MaxFileSizeMB = flagged.MaxFileSizeMB
		case "max-request-size":
			cfg.MaxRequestSizeMB = flagged.MaxRequestSizeMB
		case "timeout":
			cfg.OperationTimeoutSec = flagged.OperationTimeoutSec
		case "log-format":
			cfg.LogFormat = flagged.LogFormat
		case "log-level":
			cfg.LogLevel = flagged.LogLevel
		case "provider":
			cfg.Provider.Type = flagged.Provider.Type
		case "base-url":
			cfg.Provider.BaseURL = flagged.Provider.BaseURL
		case "model":
			cfg.Provider.Model = flagged.Provider.Model
		case "temperature":
			t := temperature
			cfg.Provider.Temperature = &t
		case "phase-timeout":
			cfg.Provider.PhaseTimeoutSec = flagged.Provider.PhaseTimeoutSec
		}
	})

	cfg.applyProviderDefaults()
	return cfg, nil
}

// loadFile overlays the YAML file at path. Unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Dir != "" {
		c.WorkingDirectory = fc.Dir
	}
	if fc.Transport != "" {
		c.Transport = fc.Transport
	}
	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.MaxFileSizeMB != 0 {
		c.MaxFileSizeMB = fc.MaxFileSizeMB
	}
	if fc.MaxRequestSizeMB != 0 {
		c.MaxRequestSizeMB = fc.MaxRequestSizeMB
	}
	if fc.TimeoutSec != 0 {
		c.OperationTimeoutSec = fc.TimeoutSec
	}
	if fc.Log.Format != "" {
		c.LogFormat = fc.Log.Format
	}
	if fc.Log.Level != "" {
		c.LogLevel = fc.Log.Level
	}
	if fc.Workspace.ExcludedDirs != nil {
		c.ExcludedDirs = fc.Workspace.ExcludedDirs
	}
	if fc.Tools.BatchEnabled != nil {
		c.BatchToolEnabled = *fc.Tools.BatchEnabled
	}

	p := fc.Provider
	if p.Type != "" {
		c.Provider.Type = p.Type
	}
	if p.BaseURL != "" {
		c.Provider.BaseURL = p.BaseURL
	}
	if p.Model != "" {
		c.Provider.Model = p.Model
	}
	if p.APIKeyEnv != "" {
		c.Provider.APIKeyEnv = p.APIKeyEnv
	}
	if p.Temperature != nil {
		c.Provider.Temperature = p.Temperature
	}
	if p.MaxTokens != 0 {
		c.Provider.MaxTokens = p.MaxTokens
	}
	if p.PhaseTimeoutSec != 0 {
		c.Provider.PhaseTimeoutSec = p.PhaseTimeoutSec
	}
	return nil
}

func (c *Config) applyProviderDefaults() {
	p := &c.Provider
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	switch p.Type {
	case llm.ProviderOpenAICompatible:
		if p.BaseURL == "" {
			p.BaseURL = defaultCompatibleBaseURL
		}
		if p.Model == "" {
			p.Model = defaultCompatibleModel
		}
	case llm.ProviderOpenAI:
		if p.Model == "" {
			p.Model = defaultOpenAIModel
		}
	case llm.ProviderAnthropic:
		if p.Model == "" {
			p.Model = defaultAnthropicModel
		}
	}
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = "OPENAI_API_KEY"
		if p.Type == llm.ProviderAnthropic {
			p.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
	}
}

// APIKey reads the provider key from the configured environment variable.
func (p ProviderConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(p.APIKeyEnv))
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if c.WorkingDirectory == "" {
		return fmt.Errorf("working directory is required")
	}

	info, err := os.Stat(c.WorkingDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("working directory does not exist: %s", c.WorkingDirectory)
		}
		return fmt.Errorf("error accessing working directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory is not a directory: %s", c.WorkingDirectory)
	}
	if err := filesystem.CheckDirectoryIsWritable(c.WorkingDirectory); err != nil {
		return fmt.Errorf("working directory is not writable: %s", c.WorkingDirectory)
	}

	if c.Transport != "http" && c.Transport != "stdio" {
		return fmt.Errorf("transport must be 'http' or 'stdio'")
	}

	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1024 and 65535")
	}

	if c.MaxFileSizeMB < 1 || c.MaxFileSizeMB > 100 {
		return fmt.Errorf("max file size must be between 1 and 100 MB")
	}

	if c.MaxRequestSizeMB < 1 || c.MaxRequestSizeMB > 100 {
		return fmt.Errorf("max request size must be between 1 and 100 MB")
	}

	if c.OperationTimeoutSec < 1 || c.OperationTimeoutSec > 300 {
		return fmt.Errorf("operation timeout must be between 1 and 300 seconds")
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be 'json' or 'text'")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.LogLevel)
	}

	return c.Provider.validate()
}

func (p ProviderConfig) validate() error {
	switch p.Type {
	case llm.ProviderOpenAI, llm.ProviderOpenAICompatible, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("provider type must be one of %s, %s, %s",
			llm.ProviderOpenAI, llm.ProviderOpenAICompatible, llm.ProviderAnthropic)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("provider model is required")
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if p.MaxTokens < 1 || p.MaxTokens > 200000 {
		return fmt.Errorf("max tokens must be between 1 and 200000")
	}
	if p.PhaseTimeoutSec < 1 || p.PhaseTimeoutSec > 600 {
		return fmt.Errorf("phase timeout must be between 1 and 600 seconds")
	}
	return nil
}
