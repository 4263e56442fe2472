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

// Package api provides the HTTP client shared by every Atlassian product
// surface: authenticated JSON requests, rate-limit tracking, retry with
// exponential backoff, and a classified error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const defaultTimeout = 30 * time.Second

// Version is stamped into the user-agent; overridden at release time.
var Version = "dev"

// authMethod applies credentials to an outgoing request.
type authMethod interface {
	apply(req *http.Request)
}

type basicAuth struct {
	username string
	token    string
}

func (a basicAuth) apply(req *http.Request) {
	req.SetBasicAuth(a.username, a.token)
}

type bearerAuth struct {
	token string
}

func (a bearerAuth) apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.token)
}

// 🌐 Client is an authenticated JSON client for one Atlassian base URL.
// It is safe for concurrent use by multiple bulk workers.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	auth       authMethod
	retry      RetryConfig
	limiter    *RateLimiter
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth authenticates with an email and API token.
func WithBasicAuth(email, token string) Option {
	return func(c *Client) { c.auth = basicAuth{username: email, token: token} }
}

// WithBearerToken authenticates with a bearer token.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.auth = bearerAuth{token: token} }
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithHTTPClient substitutes the underlying http.Client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Errorf("parsing base url %q: %w", baseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    parsed,
		retry:      DefaultRetryConfig(),
		limiter:    NewRateLimiter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RateLimiter exposes the limiter for status reporting.
func (c *Client) RateLimiter() *RateLimiter {
	return c.limiter
}

// Get issues a GET and decodes the JSON response into out (out may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do performs one authenticated JSON exchange, waiting out a known rate
// limit first and retrying retryable failures with backoff.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	logger := zerolog.Ctx(ctx)

	if wait := c.limiter.Wait(); wait > 0 {
		logger.Warn().Dur("wait", wait).Msg("rate limit reached, waiting")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.Errorf("waiting for rate limit: %w", ctx.Err())
		}
	}

	target, err := c.baseURL.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return errors.Errorf("resolving request url %q: %w", path, err)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Errorf("encoding request body: %w", err)
		}
	}

	logger.Debug().Str("method", method).Str("url", target.String()).Msg("sending request")

	return retryWithBackoff(ctx, c.retry, func() error {
		return c.exchange(ctx, method, target, payload, out)
	})
}

// exchange performs a single attempt and classifies the response.
func (c *Client) exchange(ctx context.Context, method string, target *url.URL, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return &APIError{Kind: KindRequestFailed, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "atlassian-cli/"+Version)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth.apply(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindRequestFailed, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	c.limiter.UpdateFromResponse(ctx, resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &APIError{
			Kind:       KindAuthenticationFailed,
			StatusCode: resp.StatusCode,
			Message:    "invalid or expired credentials",
		}
	case resp.StatusCode == http.StatusNotFound:
		return &APIError{
			Kind:       KindNotFound,
			StatusCode: resp.StatusCode,
			Resource:   target.Path,
		}
	case resp.StatusCode == http.StatusBadRequest:
		return &APIError{
			Kind:       KindBadRequest,
			StatusCode: resp.StatusCode,
			Message:    readBody(resp.Body, "bad request"),
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 60
		if v, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retryAfter = v
		}
		return &APIError{
			Kind:       KindRateLimitExceeded,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
		}
	case resp.StatusCode >= 500:
		return &APIError{
			Kind:       KindServerError,
			StatusCode: resp.StatusCode,
			Message:    readBody(resp.Body, "server error"),
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &APIError{Kind: KindInvalidResponse, Message: err.Error(), Err: err}
		}
		return nil
	default:
		return &APIError{
			Kind:       KindServerError,
			StatusCode: resp.StatusCode,
			Message:    readBody(resp.Body, "unexpected status "+resp.Status),
		}
	}
}

func readBody(r io.Reader, fallback string) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return fallback
	}
	return string(bytes.TrimSpace(data))
}
