package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type geminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// cliConfig is the content of config.yaml. Every field is optional.
type cliConfig struct {
	Database       string       `yaml:"database"`
	User           string       `yaml:"user"`
	Timezone       string       `yaml:"timezone"`
	BoardsFile     string       `yaml:"boards_file"`
	SuggestTimeout string       `yaml:"suggest_timeout"`
	Gemini         geminiConfig `yaml:"gemini"`
}

const defaultUser = "local"

// defaultConfigPath returns $TASKFLOW_CONFIG or ~/.config/taskflow/config.yaml.
func defaultConfigPath() (string, error) {
	if custom := os.Getenv("TASKFLOW_CONFIG"); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "taskflow", "config.yaml"), nil
}

func defaultDatabasePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "taskflow", "taskflow.db"), nil
}

// loadCLIConfig reads path. A missing file yields the defaults.
func loadCLIConfig(path string) (cliConfig, error) {
	var cfg cliConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file (%s): %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if cfg.User == "" {
		cfg.User = defaultUser
	}
	if cfg.Database == "" {
		if cfg.Database, err = defaultDatabasePath(); err != nil {
			return cfg, err
		}
	}
	cfg.Database = expandHomeDir(cfg.Database)
	cfg.BoardsFile = expandHomeDir(cfg.BoardsFile)
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if _, err := cfg.suggestTimeout(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c cliConfig) suggestTimeout() (time.Duration, error) {
	if c.SuggestTimeout == "" {
		return 20 * time.Second, nil
	}
	d, err := time.ParseDuration(c.SuggestTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid suggest_timeout %q", c.SuggestTimeout)
	}
	return d, nil
}

func (c cliConfig) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func expandHomeDir(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
