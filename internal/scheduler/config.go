package scheduler

import "time"

// Config controls the aggregation scheduler.
type Config struct {
	// RunInterval is the pause between run attempts.
	RunInterval time.Duration

	// BatchSize caps dirty keys claimed per drain iteration.
	BatchSize int

	// Workers bounds concurrent day recomputations.
	Workers int

	// MaxRunDuration is a soft deadline; a run that hits it stops claiming
	// and leaves the remaining dirty keys for the next run.
	MaxRunDuration time.Duration

	// LeaseTTL is how long the exclusive run lease is held.
	LeaseTTL time.Duration

	// RetryAttempts and RetryBaseDelay shape the bounded exponential
	// backoff applied to transient recomputation failures.
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MaxRunDuration <= 0 {
		c.MaxRunDuration = 4 * time.Minute
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = c.MaxRunDuration + time.Minute
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 250 * time.Millisecond
	}
	return c
}
