package retry

import (
	"context"
	"errors"
	"time"
)

// Defaults of the fetch backoff schedule.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 5 * time.Second
	DefaultMultiplier   = 2.0
)

// Config defines backoff configuration
type Config struct {
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay is the ceiling of the exponential growth
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// After creates a timer channel (for testing, defaults to time.After)
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns the 1s..5s doubling schedule.
func DefaultConfig() Config {
	return Config{
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
	}
}

// Normalize validates and normalizes the configuration
func (c *Config) Normalize() error {
	if c.InitialDelay < 0 {
		return errors.New("retry: InitialDelay cannot be negative")
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.InitialDelay > c.MaxDelay {
		return errors.New("retry: InitialDelay cannot be greater than MaxDelay")
	}
	if c.Multiplier <= 0 {
		c.Multiplier = DefaultMultiplier
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	if c.After == nil {
		c.After = time.After
	}
	return nil
}

// calculateDelay calculates the delay for the given retry (1-based) using exponential backoff
func (c Config) calculateDelay(retry int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < retry; i++ {
		// Check for overflow before multiplication
		if float64(delay) > float64(c.MaxDelay)/c.Multiplier {
			return c.MaxDelay
		}
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Backoff produces the delays of one dispatch. It is not safe for concurrent
// use; every dispatch owns its own Backoff.
type Backoff struct {
	cfg     Config
	retries int
	total   time.Duration
}

// NewBackoff creates a Backoff from a normalized copy of cfg.
func NewBackoff(cfg Config) (*Backoff, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &Backoff{cfg: cfg}, nil
}

// Next returns the delay before the next retry and advances the schedule.
func (b *Backoff) Next() time.Duration {
	b.retries++
	d := b.cfg.calculateDelay(b.retries)
	b.total += d
	return d
}

// Retries returns how many delays have been handed out.
func (b *Backoff) Retries() int { return b.retries }

// Total returns the accumulated delay.
func (b *Backoff) Total() time.Duration { return b.total }

// Wait blocks for d or until ctx is done.
func (b *Backoff) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.cfg.After(d):
		return nil
	}
}
