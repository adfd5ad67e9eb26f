// Package config loads the process-level configuration: server wiring,
// credentials, data directory. Runtime tunables (intervals, limits,
// pause flag) live in the settings table instead, so they can change
// without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Slack   SlackConfig
	Pavlok  PavlokConfig
	Worker  WorkerConfig
	Log     LogConfig
	UserID  string
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type SlackConfig struct {
	BotToken        string
	Channel         string
	OperatorChannel string
}

type PavlokConfig struct {
	APIKey  string
	BaseURL string
}

type WorkerConfig struct {
	IntervalSeconds int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4700,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Worker: WorkerConfig{
			IntervalSeconds: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "oni-data"
		}
	}
	return filepath.Join(dir, "oni")
}

// Load reads configuration from the JSON file backend
// ($XDG_CONFIG_HOME/oni/config.json) with ONI_* environment overrides.
// Secrets come from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// ValidateServer checks the keys the server cannot start without.
// Commands that never talk to Slack or the device skip this.
func (c Config) ValidateServer() error {
	var missing []string
	if c.Server.APIToken == "" {
		missing = append(missing, "ONI_API_TOKEN")
	}
	if c.Slack.BotToken == "" {
		missing = append(missing, "ONI_SLACK_BOT_TOKEN")
	}
	if c.Slack.Channel == "" {
		missing = append(missing, "slack.channel / ONI_SLACK_CHANNEL")
	}
	if c.Pavlok.APIKey == "" {
		missing = append(missing, "ONI_PAVLOK_API_KEY")
	}
	if c.UserID == "" {
		missing = append(missing, "user_id / ONI_USER_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %v", missing)
	}
	return nil
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "oni", "config.json")
}
