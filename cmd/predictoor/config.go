package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-based configuration. Environment variables cover
// deployment concerns (ports, credentials); the file covers game tuning.
type Config struct {
	Game struct {
		RoundDurationSec int     `yaml:"round_duration_sec"`
		LockWindowSec    int     `yaml:"lock_window_sec"`
		TickIntervalSec  int     `yaml:"tick_interval_sec"`
		Sensitivity      float64 `yaml:"sensitivity"`
	} `yaml:"game"`

	Oracle struct {
		Mode        string  `yaml:"mode"` // "binance" or "static"
		Symbol      string  `yaml:"symbol"`
		BaseURL     string  `yaml:"base_url"`
		StaticPrice float64 `yaml:"static_price"`
	} `yaml:"oracle"`

	Storage struct {
		Mode string `yaml:"mode"` // "postgres" or "memory"
	} `yaml:"storage"`

	Events struct {
		Mode string `yaml:"mode"` // "nats" or "bus"
	} `yaml:"events"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

func (c *Config) roundDuration() time.Duration {
	if c.Game.RoundDurationSec <= 0 {
		return 0
	}
	return time.Duration(c.Game.RoundDurationSec) * time.Second
}

func (c *Config) lockWindow() time.Duration {
	if c.Game.LockWindowSec <= 0 {
		return 0
	}
	return time.Duration(c.Game.LockWindowSec) * time.Second
}

func (c *Config) tickInterval() time.Duration {
	if c.Game.TickIntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.Game.TickIntervalSec) * time.Second
}
