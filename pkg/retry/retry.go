// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry runs an operation again when it fails with an error that is
// worth retrying, waiting a little longer before every new attempt.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"gitlab.com/tozd/go/errors"
)

// 🎯 Policy decides how often and how patiently an operation is retried
type Policy interface {
	// Attempts is the total number of attempts, including the first one
	Attempts() int
	// Retryable reports whether err is worth another attempt
	Retryable(err error) bool
	// Backoff is the pause after the given (1-based) failed attempt
	Backoff(attempt int) time.Duration
	// Retrying is called right before the pause that follows a failed attempt
	Retrying(err error, attempt int)
}

// 🔧 Config is the standard Policy: exponential backoff capped at MaxDelay
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
	// Delay is the pause after the first failure
	Delay time.Duration
	// BackoffFactor multiplies the pause after each further failure
	BackoffFactor float64
	// MaxDelay caps a single pause (0 means no cap)
	MaxDelay time.Duration
	// Jitter randomises each pause by +/- this fraction (0 disables it)
	Jitter float64
	// RetryCondition reports whether an error is retryable. Nil means IsTransient.
	RetryCondition func(err error) bool
	// OnRetry observes every retry
	OnRetry func(err error, attempt int)
}

var _ Policy = Config{}

// 🏭 DefaultConfig returns the policy used for remote transform calls
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    2,
		Delay:          2 * time.Second,
		BackoffFactor:  2,
		MaxDelay:       30 * time.Second,
		RetryCondition: IsTransient,
	}
}

// Option tweaks a Config
type Option func(*Config)

// WithMaxAttempts sets the total number of attempts
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithDelay sets the base pause
func WithDelay(d time.Duration) Option {
	return func(c *Config) { c.Delay = d }
}

// WithBackoffFactor sets the pause multiplier
func WithBackoffFactor(f float64) Option {
	return func(c *Config) { c.BackoffFactor = f }
}

// WithMaxDelay caps a single pause
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = d }
}

// WithJitter enables randomised pauses
func WithJitter(j float64) Option {
	return func(c *Config) { c.Jitter = j }
}

// WithRetryCondition replaces the retryability check
func WithRetryCondition(fn func(error) bool) Option {
	return func(c *Config) { c.RetryCondition = fn }
}

// WithOnRetry installs a retry observer
func WithOnRetry(fn func(err error, attempt int)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// 🏭 New builds a Config from DefaultConfig and the given options
func New(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Attempts implements Policy
func (c Config) Attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// Retryable implements Policy
func (c Config) Retryable(err error) bool {
	if c.RetryCondition == nil {
		return IsTransient(err)
	}
	return c.RetryCondition(err)
}

// Backoff implements Policy
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = 1
	}

	d := float64(c.Delay) * math.Pow(factor, float64(attempt-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Retrying implements Policy
func (c Config) Retrying(err error, attempt int) {
	if c.OnRetry != nil {
		c.OnRetry(err, attempt)
	}
}

// 🔁 Do runs fn until it succeeds, the policy gives up, or ctx is done.
// When the policy gives up, the last error from fn is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// 🔁 DoValue is Do for operations that produce a value
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts()

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		if attempt >= attempts || !p.Retryable(err) {
			return v, err
		}

		p.Retrying(err, attempt)

		if serr := sleep(ctx, p.Backoff(attempt)); serr != nil {
			var zero T
			return zero, errors.Errorf("waiting to retry after %q: %w", err.Error(), serr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
