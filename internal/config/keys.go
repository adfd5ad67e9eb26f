package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "ONI_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "ONI_API_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ONI_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "slack.bot_token", typ: kString, env: "ONI_SLACK_BOT_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Slack.BotToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Slack.BotToken },
	},
	{
		key: "slack.channel", typ: kString, env: "ONI_SLACK_CHANNEL",
		apply:   func(cfg *Config, v any) { cfg.Slack.Channel = v.(string) },
		extract: func(cfg Config) any { return cfg.Slack.Channel },
	},
	{
		key: "slack.operator_channel", typ: kString, env: "ONI_SLACK_OPERATOR_CHANNEL",
		apply:   func(cfg *Config, v any) { cfg.Slack.OperatorChannel = v.(string) },
		extract: func(cfg Config) any { return cfg.Slack.OperatorChannel },
	},
	{
		key: "pavlok.api_key", typ: kString, env: "ONI_PAVLOK_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Pavlok.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Pavlok.APIKey },
	},
	{
		key: "pavlok.base_url", typ: kString, env: "ONI_PAVLOK_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Pavlok.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Pavlok.BaseURL },
	},
	{
		key: "worker.interval_seconds", typ: kInt, env: "ONI_WORKER_INTERVAL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Worker.IntervalSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Worker.IntervalSeconds },
	},
	{
		key: "log.level", typ: kString, env: "ONI_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "user_id", typ: kString, env: "ONI_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.UserID },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a non-secret config key to the file backend.
func SetKey(key, value string) error {
	b := newFileBackend(configFilePath())

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		switch s.typ {
		case kString:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		}
	}
	return fmt.Errorf("unknown config key: %q", key)
}
