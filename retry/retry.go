/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry runs an operation a bounded number of times with linear
// backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config bounds the retry loop.
type Config struct {
	// Attempts is the total number of tries, including the first (default 3).
	Attempts int
	// BaseBackoff scales the linear sleep: attempt n sleeps n * BaseBackoff
	// (default 1s).
	BaseBackoff time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Attempts < 1 {
		return errors.New("attempts must be at least 1")
	}
	if c.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	return nil
}

// DefaultConfig matches the validation retry policy: three attempts with
// sleeps of 1s then 2s between them.
func DefaultConfig() Config {
	return Config{
		Attempts:    3,
		BaseBackoff: time.Second,
	}
}

// Do runs fn up to cfg.Attempts times. Errors the classifier rejects are
// returned immediately; retryable errors sleep attempt*BaseBackoff and try
// again, honoring context cancellation.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		result, lastErr = fn(ctx)
		if lastErr == nil {
			return result, nil
		}

		if !isRetryable(lastErr) {
			return result, lastErr
		}

		if attempt == cfg.Attempts {
			break
		}

		backoff := time.Duration(attempt) * cfg.BaseBackoff
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt).
			With("backoff", backoff).
			With("error", lastErr.Error()).
			Warn("Transient failure, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return result, fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.Attempts, lastErr)
}
