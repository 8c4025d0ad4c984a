// Package config provides YAML-based configuration loading for IRIS.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level IRIS configuration, loaded from config.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	SLA       SLAConfig       `yaml:"sla"`
	Staleness StalenessConfig `yaml:"staleness"`
	Claims    ClaimsConfig    `yaml:"claims"`
	Notify    NotifyConfig    `yaml:"notify"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DatabaseConfig holds connection settings for the MySQL server.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// SLAConfig tunes answer-deadline computation.
type SLAConfig struct {
	DefaultDays     int     `yaml:"default_days"`      // window when the theme has no sla_hours
	NearExpireRatio float64 `yaml:"near_expire_ratio"` // share of the window before near-expiry
}

// StalenessConfig tunes the age thresholds that gate answering and validation.
type StalenessConfig struct {
	ValidationDays            int `yaml:"validation_days"`             // window before a pending record expires
	CoordinatorValidationDays int `yaml:"coordinator_validation_days"` // extended window for coordinator groups
	AmbitStaleDays            int `yaml:"ambit_stale_days"`            // age after which only coordinators answer
	ClaimsThreshold           int `yaml:"claims_threshold"`            // claim count after which only coordinators answer
}

// ClaimsConfig holds the catalog values stamped on internal claims.
type ClaimsConfig struct {
	InternalInputChannel  string `yaml:"internal_input_channel"`
	InternalApplicantType string `yaml:"internal_applicant_type"`
	InternalSupport       string `yaml:"internal_support"`
}

// NotifyConfig configures the chat notifiers. A platform with an empty token
// is disabled.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack Web API credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SweepConfig schedules the deadline sweep daemon.
type SweepConfig struct {
	Cron string `yaml:"cron"` // 5-field cron expression
}

// DashboardConfig configures the ops dashboard HTTP server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Database == "" {
		c.Database.Database = "iris"
	}
	if c.SLA.DefaultDays == 0 {
		c.SLA.DefaultDays = 30
	}
	if c.SLA.NearExpireRatio == 0 {
		c.SLA.NearExpireRatio = 0.8
	}
	if c.Staleness.ValidationDays == 0 {
		c.Staleness.ValidationDays = 30
	}
	if c.Staleness.CoordinatorValidationDays == 0 {
		c.Staleness.CoordinatorValidationDays = 90
	}
	if c.Staleness.AmbitStaleDays == 0 {
		c.Staleness.AmbitStaleDays = 60
	}
	if c.Staleness.ClaimsThreshold == 0 {
		c.Staleness.ClaimsThreshold = 3
	}
	if c.Claims.InternalInputChannel == "" {
		c.Claims.InternalInputChannel = "internal"
	}
	if c.Claims.InternalApplicantType == "" {
		c.Claims.InternalApplicantType = "operator"
	}
	if c.Claims.InternalSupport == "" {
		c.Claims.InternalSupport = "backoffice"
	}
	if c.Sweep.Cron == "" {
		c.Sweep.Cron = "0 * * * *"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8600
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.SLA.NearExpireRatio <= 0 || c.SLA.NearExpireRatio >= 1 {
		errs = append(errs, "sla.near_expire_ratio must be between 0 and 1")
	}
	if c.Staleness.CoordinatorValidationDays < c.Staleness.ValidationDays {
		errs = append(errs, "staleness.coordinator_validation_days must not undercut validation_days")
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.ChannelID == "" {
		errs = append(errs, "notify.slack.channel_id is required when a bot token is set")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when a bot token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
