package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			// Config file is optional, don't fail if it doesn't exist
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	// Override with environment variables
	loadFromEnv(cfg)

	return cfg, nil
}

// LoadFrom loads configuration from an explicit file path, then applies
// environment overrides. Unlike Load, a missing file is an error here.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, err
	}
	loadFromEnv(cfg)
	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gofer", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	// On macOS favor Library/Application Support/gofer, falling back to
	// ~/.config if a config already exists there.
	if runtime.GOOS == "darwin" {
		appSupport := filepath.Join(homeDir, "Library", "Application Support", "gofer", "config.yaml")
		if _, err := os.Stat(appSupport); err == nil {
			return appSupport
		}
		dotConfig := filepath.Join(homeDir, ".config", "gofer", "config.yaml")
		if _, err := os.Stat(dotConfig); err == nil {
			return dotConfig
		}
		return appSupport
	}

	// Default for other Unix-like systems
	return filepath.Join(homeDir, ".config", "gofer", "config.yaml")
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	// API key from environment. Priority: GOFER_API_KEY > GEMINI_API_KEY
	if apiKey := os.Getenv("GOFER_API_KEY"); apiKey != "" {
		cfg.API.GeminiKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.API.GeminiKey = apiKey
	}

	if model := os.Getenv("GOFER_MODEL"); model != "" {
		cfg.Model.Name = model
	}

	if provider := os.Getenv("GOFER_PROVIDER"); provider != "" {
		cfg.API.ActiveProvider = provider
	}

	if indexURL := os.Getenv("GOFER_INDEX_URL"); indexURL != "" {
		cfg.Retrieval.IndexBaseURL = indexURL
	}

	if rerankURL := os.Getenv("GOFER_RERANK_URL"); rerankURL != "" {
		cfg.Retrieval.RerankBaseURL = rerankURL
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.GetActiveProvider() != "ollama" && c.API.GetActiveKey() == "" {
		return ErrMissingAuth
	}
	if c.Agent.MaxToolDepth <= 0 {
		return ErrInvalidDepth
	}
	if c.Context.WarningThreshold < 0 || c.Context.WarningThreshold > 1 {
		return ErrInvalidThreshold
	}
	return nil
}

// ConfigError is a typed configuration validation error.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth      ConfigError = "missing authentication: set GEMINI_API_KEY or GOFER_API_KEY environment variable"
	ErrInvalidDepth     ConfigError = "agent.max_tool_depth must be positive"
	ErrInvalidThreshold ConfigError = "context.warning_threshold must be within [0, 1]"
)

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}

// Save saves the configuration to the config file.
func (c *Config) Save() error {
	configPath := getConfigPath()
	if configPath == "" {
		return fmt.Errorf("could not determine config path")
	}

	// 0700: only the owner may access, config may contain API keys
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to temp file then rename (atomic on POSIX systems)
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		// If rename fails, try direct write (Windows filesystem)
		if err := os.WriteFile(configPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}
