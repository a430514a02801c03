package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DBConn struct {
	Str string `yaml:"str"`
}

type DBConfig struct {
	Conn DBConn `yaml:"conn"`
}

type AuthConfig struct {
	Debug       bool `yaml:"debug"`
	RequireAuth bool `yaml:"require_auth"`
}

type NotifierConfig struct {
	DefaultTimezone string `yaml:"default_timezone"`
	SkipSend        bool   `yaml:"skipsend"`
	Workers         int    `yaml:"workers"`
	PollInterval    int64  `yaml:"poll_interval"`
}

type ReminderConfig struct {
	Activated       bool   `yaml:"activated"`
	PollingInterval int64  `yaml:"polling_interval"`
	DefaultTimezone string `yaml:"default_timezone"`
}

type ValidatorConfig struct {
	Activated bool   `yaml:"activated"`
	Interval  int64  `yaml:"interval"`
	Subject   string `yaml:"subject"`
	Body      string `yaml:"body"`
}

type MessengerConfig struct {
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Config struct {
	Server          ServerConfig      `yaml:"server"`
	LogLevel        string            `yaml:"log_level"`
	DB              DBConfig          `yaml:"db"`
	Auth            AuthConfig        `yaml:"auth"`
	HealthcheckPath string            `yaml:"healthcheck_path"`
	SchedulerCycle  int64             `yaml:"scheduler_cycle_time"`
	GracePeriod     int64             `yaml:"grace_period"`
	Notifier        NotifierConfig    `yaml:"notifier"`
	Reminder        ReminderConfig    `yaml:"reminder"`
	UserValidator   ValidatorConfig   `yaml:"user_validator"`
	Messengers      []MessengerConfig `yaml:"messengers"`
}

// Load reads the YAML config file and applies defaults for anything unset.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SchedulerCycle == 0 {
		cfg.SchedulerCycle = 3600
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 86400
	}
	if cfg.Notifier.DefaultTimezone == "" {
		cfg.Notifier.DefaultTimezone = "US/Pacific"
	}
	if cfg.Notifier.Workers == 0 {
		cfg.Notifier.Workers = 100
	}
	if cfg.Notifier.PollInterval == 0 {
		cfg.Notifier.PollInterval = 60
	}
	if cfg.Reminder.PollingInterval == 0 {
		cfg.Reminder.PollingInterval = 300
	}
	if cfg.UserValidator.Interval == 0 {
		cfg.UserValidator.Interval = 3600
	}

	if cfg.DB.Conn.Str == "" {
		return nil, fmt.Errorf("config: db.conn.str is required")
	}

	return cfg, nil
}
