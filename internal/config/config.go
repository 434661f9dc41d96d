// Package config loads diskwatch settings from defaults, an optional YAML
// file, a .env file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"time"
)

// EmailSettings holds the SMTP transport configuration for alert mail.
type EmailSettings struct {
	Enabled  bool     `yaml:"enabled" envconfig:"EMAIL_ENABLED"`
	SMTPHost string   `yaml:"server" envconfig:"SMTP_HOST"`
	SMTPPort int      `yaml:"port" envconfig:"SMTP_PORT"`
	Username string   `yaml:"username" envconfig:"SMTP_USER"`
	Password string   `yaml:"password" envconfig:"SMTP_PASS"`
	From     string   `yaml:"from" envconfig:"EMAIL_FROM"`
	To       []string `yaml:"to" envconfig:"EMAIL_TO"`
	TLS      bool     `yaml:"tls" envconfig:"SMTP_TLS"`
	StartTLS bool     `yaml:"startTLS" envconfig:"SMTP_STARTTLS"`
}

// DeviceSettings controls which block devices a scan cycle covers.
type DeviceSettings struct {
	// Include lists explicit device paths. Empty means enumerate via lsblk.
	Include []string `yaml:"include"`
	// Exclude holds simple glob patterns (sda, nvme*, *cache*) matched
	// against both the device name and the full path.
	Exclude []string `yaml:"exclude"`
}

// LogScanSettings selects the system-log source and scan window.
type LogScanSettings struct {
	// File is a syslog-style file to scan. Empty means the kernel journal.
	File          string `yaml:"file" envconfig:"LOG_SOURCE_FILE"`
	WindowMinutes int    `yaml:"window_minutes" envconfig:"LOG_WINDOW_MINUTES"`
}

// AlertSettings tunes the alert dedup policy. The cooldown is deliberately
// configurable rather than a constant; escalations bypass it regardless.
type AlertSettings struct {
	CooldownMinutes int `yaml:"cooldown_minutes" envconfig:"ALERT_COOLDOWN_MINUTES"`
}

// MonitorSettings applies to the long-running monitor mode.
type MonitorSettings struct {
	IntervalMinutes int    `yaml:"interval_minutes" envconfig:"MONITOR_INTERVAL_MINUTES"`
	MetricsListen   string `yaml:"metrics_listen" envconfig:"METRICS_LISTEN"`
}

// Settings is the full diskwatch configuration.
type Settings struct {
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
	LogFile   string `yaml:"log_file" envconfig:"LOG_FILE"`

	// CommandTimeoutSeconds bounds every external tool invocation. Nothing
	// in a scan cycle is allowed to hang.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds" envconfig:"COMMAND_TIMEOUT_SECONDS"`

	Devices DeviceSettings  `yaml:"devices"`
	Logs    LogScanSettings `yaml:"logs"`
	Alerts  AlertSettings   `yaml:"alerts"`
	Email   EmailSettings   `yaml:"email"`
	Monitor MonitorSettings `yaml:"monitor"`
}

// DefaultSettings returns the baseline configuration.
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel:              "info",
		LogFormat:             "auto",
		CommandTimeoutSeconds: 30,
		Logs: LogScanSettings{
			WindowMinutes: 60,
		},
		Alerts: AlertSettings{
			CooldownMinutes: 60,
		},
		Email: EmailSettings{
			SMTPPort: 587,
			StartTLS: true,
		},
		Monitor: MonitorSettings{
			IntervalMinutes: 15,
			MetricsListen:   "127.0.0.1:9273",
		},
	}
}

// CommandTimeout returns the per-tool-invocation timeout.
func (s *Settings) CommandTimeout() time.Duration {
	return time.Duration(s.CommandTimeoutSeconds) * time.Second
}

// Cooldown returns the alert dedup window.
func (s *Settings) Cooldown() time.Duration {
	return time.Duration(s.Alerts.CooldownMinutes) * time.Minute
}

// LogWindow returns how far back the log scan reaches.
func (s *Settings) LogWindow() time.Duration {
	return time.Duration(s.Logs.WindowMinutes) * time.Minute
}

// ScanInterval returns the monitor-mode cycle interval.
func (s *Settings) ScanInterval() time.Duration {
	return time.Duration(s.Monitor.IntervalMinutes) * time.Minute
}

// Validate checks the final configuration for values the rest of the system
// cannot work with.
func (s *Settings) Validate() error {
	if s.CommandTimeoutSeconds <= 0 {
		return fmt.Errorf("command_timeout_seconds must be positive, got %d", s.CommandTimeoutSeconds)
	}
	if s.Logs.WindowMinutes <= 0 {
		return fmt.Errorf("logs.window_minutes must be positive, got %d", s.Logs.WindowMinutes)
	}
	if s.Alerts.CooldownMinutes < 0 {
		return fmt.Errorf("alerts.cooldown_minutes must not be negative, got %d", s.Alerts.CooldownMinutes)
	}
	if s.Monitor.IntervalMinutes <= 0 {
		return fmt.Errorf("monitor.interval_minutes must be positive, got %d", s.Monitor.IntervalMinutes)
	}
	if s.Email.Enabled {
		if s.Email.SMTPHost == "" {
			return fmt.Errorf("email.server is required when email is enabled")
		}
		if s.Email.SMTPPort <= 0 || s.Email.SMTPPort > 65535 {
			return fmt.Errorf("email.port %d is out of range", s.Email.SMTPPort)
		}
		if s.Email.From == "" {
			return fmt.Errorf("email.from is required when email is enabled")
		}
	}
	return nil
}
