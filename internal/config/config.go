package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"wgd/internal/logging"
)

// DefaultPath is used when no --config flag is given. A missing file at this
// path is not an error; configuration then comes from the environment only.
const DefaultPath = "wgd.yaml"

// Config keeps runtime settings for the daemon.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      logging.Config `yaml:"log"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" env:"WGD_TELEGRAM_TOKEN"`
	ChatID int64  `yaml:"chat_id" env:"WGD_TELEGRAM_CHAT_ID"`
	// SendInterval is the minimum spacing between two outbound messages.
	SendInterval time.Duration `yaml:"send_interval" env:"WGD_TELEGRAM_SEND_INTERVAL" env-default:"1s"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"WGD_DATABASE" env-default:"wgd.sqlite"`
}

type ScheduleConfig struct {
	AlertLeadTime time.Duration `yaml:"alert_lead_time" env:"WGD_ALERT_LEAD_TIME" env-default:"8h"`
	IdlePoll      time.Duration `yaml:"idle_poll" env:"WGD_IDLE_POLL" env-default:"60s"`
	// MaxSleep bounds a single scheduler sleep so rows written by another
	// process are noticed. Zero disables the bound.
	MaxSleep time.Duration `yaml:"max_sleep" env:"WGD_MAX_SLEEP" env-default:"1h"`
	// Digest schedules the agenda post, either as HH:MM or as a standard
	// cron spec. Empty disables it.
	Digest   string `yaml:"digest" env:"WGD_DIGEST"`
	Timezone string `yaml:"timezone" env:"WGD_TIMEZONE" env-default:"Local"`
}

// DigestSpec returns the digest schedule as a cron spec. A bare HH:MM is
// turned into a daily spec; anything else is returned trimmed.
func (s ScheduleConfig) DigestSpec() string {
	spec := strings.TrimSpace(s.Digest)
	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return spec
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return spec
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return spec
	}
	// cron format: minute hour dom month dow
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// ConfigError reports an unusable configuration. It is always fatal.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads the YAML file at path (if any) and overlays environment variables.
func Load(path string) (Config, error) {
	var cfg Config
	path = strings.TrimSpace(path)

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return cfg, &ConfigError{Err: fmt.Errorf("read %s: %w", path, err)}
			}
			return cfg, cfg.Validate()
		case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
		default:
			return cfg, &ConfigError{Err: fmt.Errorf("open %s: %w", path, err)}
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, &ConfigError{Err: fmt.Errorf("read env: %w", err)}
	}
	return cfg, cfg.Validate()
}

// Validate checks everything every command relies on.
func (c Config) Validate() error {
	if c.Schedule.AlertLeadTime <= 0 {
		return &ConfigError{Field: "schedule.alert_lead_time", Err: errors.New("must be positive")}
	}
	if c.Schedule.IdlePoll <= 0 {
		return &ConfigError{Field: "schedule.idle_poll", Err: errors.New("must be positive")}
	}
	if c.Schedule.MaxSleep < 0 {
		return &ConfigError{Field: "schedule.max_sleep", Err: errors.New("must not be negative")}
	}
	if c.Telegram.SendInterval < 0 {
		return &ConfigError{Field: "telegram.send_interval", Err: errors.New("must not be negative")}
	}
	if spec := c.Schedule.DigestSpec(); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return &ConfigError{Field: "schedule.digest", Err: err}
		}
	}
	if _, err := c.Location(); err != nil {
		return &ConfigError{Field: "schedule.timezone", Err: err}
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return &ConfigError{Field: "database.path", Err: errors.New("is required")}
	}
	return nil
}

// ValidateServe additionally requires the Telegram credentials.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return &ConfigError{Field: "telegram.token", Err: errors.New("is required")}
	}
	if c.Telegram.ChatID == 0 {
		return &ConfigError{Field: "telegram.chat_id", Err: errors.New("is required")}
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Schedule.Timezone)
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	if c.Telegram.Token != "" {
		c.Telegram.Token = "********"
	}
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
