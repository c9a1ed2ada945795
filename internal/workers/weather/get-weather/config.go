// internal/workers/weather/get-weather/config.go
package getweather

import (
	"time"

	"mediguard-agents/internal/common/config"
)

type Config struct {
	Timeout     time.Duration
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

func NewConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.Timeout = config.GetAgentConfig(cfg, TaskType).TimeoutDuration()
	if cfg.Weather.BaseURL != "" {
		c.BaseURL = cfg.Weather.BaseURL
	}
	c.APIKey = cfg.Weather.APIKey
	if cfg.Weather.Timeout > 0 {
		c.HTTPTimeout = config.GetDuration(cfg.Weather.Timeout)
	}
	return c
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		BaseURL:     "http://api.weatherapi.com/v1/forecast.json",
		HTTPTimeout: 10 * time.Second,
	}
}
