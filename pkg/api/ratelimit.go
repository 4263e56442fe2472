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
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ⏱️ RateLimiter tracks the x-ratelimit-* response headers Atlassian Cloud
// sends and delays requests once the remaining budget is exhausted.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	remaining int
	resetAt   time.Time
	seen      bool
}

// RateLimitInfo is a snapshot of the last observed rate-limit headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Observed  bool
}

// NewRateLimiter creates a limiter with no observed state.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{}
}

// UpdateFromResponse records the rate-limit headers of resp, warning when
// usage crosses 80% of the budget.
func (r *RateLimiter) UpdateFromResponse(ctx context.Context, resp *http.Response) {
	limit, okLimit := headerInt(resp, "x-ratelimit-limit")
	remaining, okRemaining := headerInt(resp, "x-ratelimit-remaining")
	reset, okReset := headerInt(resp, "x-ratelimit-reset")

	if !okLimit && !okRemaining && !okReset {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if okLimit {
		r.limit = limit
		r.seen = true
	}
	if okRemaining {
		r.remaining = remaining
		r.seen = true
	}
	if okReset {
		r.resetAt = time.Unix(int64(reset), 0)
	}

	if r.limit > 0 && okRemaining {
		usage := float64(r.limit-r.remaining) / float64(r.limit) * 100
		if usage > 80 {
			zerolog.Ctx(ctx).Warn().
				Int("remaining", r.remaining).
				Int("limit", r.limit).
				Float64("usage_pct", usage).
				Msg("rate limit usage high")
		}
	}
}

// Wait returns how long the caller should wait before the next request,
// or zero when the budget has headroom.
func (r *RateLimiter) Wait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.seen || r.remaining > 0 {
		return 0
	}
	until := time.Until(r.resetAt)
	if until < 0 {
		return 0
	}
	return until
}

// Info returns a snapshot of the observed state.
func (r *RateLimiter) Info() RateLimitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimitInfo{
		Limit:     r.limit,
		Remaining: r.remaining,
		ResetAt:   r.resetAt,
		Observed:  r.seen,
	}
}

func headerInt(resp *http.Response, name string) (int, bool) {
	raw := resp.Header.Get(name)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return val, true
}
