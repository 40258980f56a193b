package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimezone is the wall clock schedules fire in when the config
// doesn't say otherwise.
const DefaultTimezone = "Europe/Prague"

type Config struct {
	// Platform selects the chat transport: "telegram" or "discord".
	Platform string `json:"platform"`

	Telegram TelegramConfig `json:"telegram,omitempty"`
	Discord  DiscordConfig  `json:"discord,omitempty"`

	// OwnerUserIDs may manage schedules. Empty means everyone may.
	OwnerUserIDs []string `json:"owner_user_ids,omitempty"`

	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Tasks     *TasksConfig    `json:"tasks,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors log lines at or above MinLevel into a chat channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone names the wall clock triggers fire in (IANA name).
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "csv", "path": "./taskbot_data" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TasksConfig points at the external workspace-task service.
type TasksConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Timeout string `json:"timeout,omitempty"` // Go duration string
}

// Validate checks everything that must be right before the process can
// start. Startup config errors are the only fatal errors in the system.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	switch strings.ToLower(strings.TrimSpace(c.Platform)) {
	case "telegram":
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return errors.New("telegram.token is required for platform telegram")
		}
		if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
			return err
		}
	case "discord":
		if strings.TrimSpace(c.Discord.Token) == "" {
			return errors.New("discord.token is required for platform discord")
		}
	case "":
		return errors.New("platform is required (telegram or discord)")
	default:
		return fmt.Errorf("unknown platform %q", c.Platform)
	}

	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "csv", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				return errors.New("storage.path is required when storage.driver is set")
			}
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	if t := c.Tasks; t != nil {
		if strings.TrimSpace(t.BaseURL) == "" {
			return errors.New("tasks.base_url is required when the tasks section is present")
		}
		if _, err := ParseDurationField("tasks.timeout", t.Timeout); err != nil {
			return err
		}
	}

	return nil
}

// Timezone returns the configured zone name with the default applied.
func (c *Config) Timezone() string {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return DefaultTimezone
	}
	return tz
}

// ParseDurationField reads a Go duration string from a config field; empty
// means zero, negative values are rejected, and path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for an
// unset field.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
