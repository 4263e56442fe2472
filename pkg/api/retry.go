// Copyright 2025 omar16100
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

package api

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// 🔁 RetryConfig controls transport-level retries with exponential backoff.
// Retries here concern only the HTTP exchange; the bulk executor never
// re-submits a failed item within a run.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig mirrors the defaults the CLI ships with.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

func (c RetryConfig) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// retryWithBackoff runs operation until it succeeds, returns a
// non-retryable error, or exhausts the attempt budget.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, operation func() error) error {
	logger := zerolog.Ctx(ctx)
	bo := cfg.newBackOff()
	attempts := 0

	for {
		attempts++
		logger.Debug().Int("attempt", attempts).Msg("executing request")

		err := operation()
		if err == nil {
			if attempts > 1 {
				logger.Debug().Int("attempts", attempts).Msg("request succeeded after retries")
			}
			return nil
		}

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.Retryable() || attempts >= cfg.MaxAttempts {
			if attempts >= cfg.MaxAttempts {
				logger.Warn().Int("attempts", attempts).Msg("max retries exceeded")
			}
			return err
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return &APIError{Kind: KindTimeout, Message: "retry budget exhausted", Err: err}
		}
		// Rate-limit errors carry their own wait hint.
		if apiErr.Kind == KindRateLimitExceeded && apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Dur("wait", wait).
			Msg("request failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return &APIError{Kind: KindTimeout, Message: "request cancelled while backing off", Err: ctx.Err()}
		}
	}
}
