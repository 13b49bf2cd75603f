package poll

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var (
	ErrInvalidBaseDelay = errors.New("BaseDelay must be greater than 0")
	ErrMaxSteps         = errors.New("max steps exceeded")
)

// Config defines parameters for exponential backoff polling.
type Config struct {
	// Initial delay before first retry
	BaseDelay time.Duration
	// Multiplier for delay on each retry
	Factor float64
	// Optional maximum delay between retries
	MaxDelay time.Duration
	// Optional maximum number of attempts, 0 means unbounded
	MaxSteps int
	// Optional jitter applied to each delay, must be between 0.0 and 1.0
	JitterFactor float64
}

func (c Config) Validate() error {
	if c.BaseDelay <= 0 {
		return fmt.Errorf("invalid Config: %w", ErrInvalidBaseDelay)
	}
	if c.JitterFactor < 0.0 || c.JitterFactor > 1.0 {
		return fmt.Errorf("poll JitterFactor must be between 0.0 and 1.0: %f", c.JitterFactor)
	}
	return nil
}

// BackoffWithContext repeatedly calls the operation until it returns true, an
// error, the configured MaxSteps is exceeded, or the context is canceled. It
// waits between attempts using exponential backoff, starting from
// Config.BaseDelay and increasing by Config.Factor, capped by Config.MaxDelay
// if set.
func BackoffWithContext(ctx context.Context, cfg Config, opFn func(context.Context) (bool, error)) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	delay := cfg.BaseDelay
	steps := 0
	for {
		done, err := opFn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		steps++
		if cfg.MaxSteps > 0 && steps >= cfg.MaxSteps {
			return ErrMaxSteps
		}

		select {
		case <-time.After(addJitter(delay, cfg.JitterFactor)):
			next := time.Duration(float64(delay) * cfg.Factor)
			if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
				next = cfg.MaxDelay
			}
			delay = next
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CalculateBackoffDelay calculates the backoff delay for a given number of
// tries using exponential backoff with the provided configuration.
func CalculateBackoffDelay(cfg *Config, tries int) time.Duration {
	if tries <= 0 {
		return 0
	}

	delay := float64(cfg.BaseDelay)
	for i := 1; i < tries; i++ {
		delay *= cfg.Factor
	}

	delayDuration := time.Duration(delay)

	// cap max delay
	if cfg.MaxDelay > 0 && delayDuration > cfg.MaxDelay {
		delayDuration = cfg.MaxDelay
	}

	return addJitter(delayDuration, cfg.JitterFactor)
}

func addJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	maxJitter := float64(delay) * jitterFactor
	return delay + time.Duration((rand.Float64()*2-1)*maxJitter)
}
