package scheduler

import "time"

// Config controls sweep cadence and batch sizes.
type Config struct {
	RunInterval  time.Duration
	SweepTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Minute,
		SweepTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	return c
}
