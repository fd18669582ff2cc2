package generation

import (
	"time"

	"github.com/upb/gen-orchestrator/services/routing"
)

// Config holds configuration for the generation service
type Config struct {
	Workers     int                   // Number of background workers
	QueueSize   int                   // Submissions buffered ahead of the workers
	Timeout     time.Duration         // Deadline for one background dispatch
	DefaultMode routing.ExecutionMode // Recorded when a request names no mode
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   100,
		Timeout:     5 * time.Minute,
		DefaultMode: routing.ModeSequential,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.DefaultMode == "" {
		c.DefaultMode = d.DefaultMode
	}
	return c
}
