package scheduler

import (
	"time"

	"github.com/smallbiznis/orderdesk/internal/config"
)

// Config controls the monitor interval, batch size and staleness threshold.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	StaleAfter  time.Duration
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 10 * time.Minute,
		BatchSize:   50,
		StaleAfter:  2 * time.Hour,
		JobTimeout:  time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Monitor.StalePaymentInterval,
		BatchSize:   cfg.Monitor.StalePaymentBatch,
		StaleAfter:  cfg.Monitor.StalePaymentAfter,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
