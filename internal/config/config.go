// Package config loads the deskhand configuration: a YAML file layered under
// DESKHAND_* environment overrides, validated once at startup and passed
// explicitly to every component that needs it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration value.
type Config struct {
	VaultPath    string `mapstructure:"vault_path"`
	DropzonePath string `mapstructure:"dropzone_path"`

	Security   Security          `mapstructure:"security"`
	Reasoning  Reasoning         `mapstructure:"reasoning"`
	Scheduler  Scheduler         `mapstructure:"scheduler"`
	Collectors []CollectorConfig `mapstructure:"collectors"`
}

// Security configures the gate. Rules themselves are a static table; the
// thresholds and contact list come from here.
type Security struct {
	ApprovalThresholdLow  float64  `mapstructure:"approval_threshold_low"`
	ApprovalThresholdHigh float64  `mapstructure:"approval_threshold_high"`
	MonthlyRevenueTarget  float64  `mapstructure:"monthly_revenue_target"`
	KnownContacts         []string `mapstructure:"known_contacts"`
}

// Reasoning configures the external call-out.
type Reasoning struct {
	Cmd            []string `mapstructure:"cmd"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// Scheduler configures the periodic jobs and shutdown behavior.
type Scheduler struct {
	HealthCheckSeconds int    `mapstructure:"health_check_seconds"`
	DailyBriefingAt    string `mapstructure:"daily_briefing_at"`
	WeeklyBriefingDay  string `mapstructure:"weekly_briefing_day"`
	WeeklyBriefingAt   string `mapstructure:"weekly_briefing_at"`
	StopGraceSeconds   int    `mapstructure:"stop_grace_seconds"`
}

// CollectorConfig describes one collector child process. An empty Cmd means
// "re-exec this binary with the collect subcommand".
type CollectorConfig struct {
	Name            string            `mapstructure:"name"`
	Cmd             []string          `mapstructure:"cmd"`
	Env             map[string]string `mapstructure:"env"`
	IntervalSeconds int               `mapstructure:"interval_seconds"`
}

// Load reads configuration from an optional YAML file plus environment
// overrides. A missing file falls back to defaults; a malformed one is an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("vault_path", "./deskhand_vault")
	v.SetDefault("dropzone_path", "./deskhand_dropzone")
	v.SetDefault("security.approval_threshold_low", 50.0)
	v.SetDefault("security.approval_threshold_high", 100.0)
	v.SetDefault("security.monthly_revenue_target", 4000.0)
	v.SetDefault("security.known_contacts", []string{})
	v.SetDefault("reasoning.cmd", []string{"claude", "-p"})
	v.SetDefault("reasoning.timeout_seconds", 120)
	v.SetDefault("scheduler.health_check_seconds", 30)
	v.SetDefault("scheduler.daily_briefing_at", "08:00")
	v.SetDefault("scheduler.weekly_briefing_day", "Sunday")
	v.SetDefault("scheduler.weekly_briefing_at", "09:00")
	v.SetDefault("scheduler.stop_grace_seconds", 5)

	v.SetEnvPrefix("DESKHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("deskhand")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Collectors) == 0 {
		cfg.Collectors = []CollectorConfig{
			{Name: "dropzone", IntervalSeconds: 10},
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return fmt.Errorf("configuration error: vault_path must not be empty")
	}
	if c.DropzonePath == "" {
		return fmt.Errorf("configuration error: dropzone_path must not be empty")
	}
	if c.Security.ApprovalThresholdLow <= 0 {
		return fmt.Errorf("configuration error: security.approval_threshold_low must be positive")
	}
	if c.Security.ApprovalThresholdHigh < c.Security.ApprovalThresholdLow {
		return fmt.Errorf("configuration error: security.approval_threshold_high (%.2f) must not be below the low threshold (%.2f)",
			c.Security.ApprovalThresholdHigh, c.Security.ApprovalThresholdLow)
	}
	if len(c.Reasoning.Cmd) == 0 {
		return fmt.Errorf("configuration error: reasoning.cmd must name a command")
	}
	if c.Scheduler.HealthCheckSeconds <= 0 {
		return fmt.Errorf("configuration error: scheduler.health_check_seconds must be positive")
	}
	if _, err := ParseClock(c.Scheduler.DailyBriefingAt); err != nil {
		return fmt.Errorf("configuration error: scheduler.daily_briefing_at: %w", err)
	}
	if _, err := ParseClock(c.Scheduler.WeeklyBriefingAt); err != nil {
		return fmt.Errorf("configuration error: scheduler.weekly_briefing_at: %w", err)
	}
	if _, err := ParseWeekday(c.Scheduler.WeeklyBriefingDay); err != nil {
		return fmt.Errorf("configuration error: scheduler.weekly_briefing_day: %w", err)
	}
	seen := map[string]bool{}
	for _, col := range c.Collectors {
		if col.Name == "" {
			return fmt.Errorf("configuration error: collector with empty name")
		}
		if seen[col.Name] {
			return fmt.Errorf("configuration error: duplicate collector %q", col.Name)
		}
		seen[col.Name] = true
		if col.IntervalSeconds < 0 {
			return fmt.Errorf("configuration error: collector %q has negative interval", col.Name)
		}
	}
	return nil
}

// ReasoningTimeout returns the call-out timeout as a duration.
func (c *Config) ReasoningTimeout() time.Duration {
	return time.Duration(c.Reasoning.TimeoutSeconds) * time.Second
}

// StopGrace returns the collector shutdown grace period.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Scheduler.StopGraceSeconds) * time.Second
}

// HealthCheckInterval returns the health check cadence.
func (c *Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.Scheduler.HealthCheckSeconds) * time.Second
}

// ParseClock parses an "HH:MM" time of day into hour and minute.
func ParseClock(value string) ([2]int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return [2]int{}, fmt.Errorf("invalid time of day %q, want HH:MM", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return [2]int{}, fmt.Errorf("time of day %q out of range", value)
	}
	return [2]int{hour, minute}, nil
}

// ParseWeekday parses a weekday name.
func ParseWeekday(value string) (time.Weekday, error) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.EqualFold(day.String(), value) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", value)
}
