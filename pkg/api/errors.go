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

import "fmt"

// Kind is a stable machine-readable classification of an API failure.
// Kinds double as bulk error kinds: APIError implements the executor's
// ErrorKinder interface, so per-item failures land in the transaction log
// with their classification intact.
type Kind string

const (
	KindRequestFailed        Kind = "RequestFailed"
	KindAuthenticationFailed Kind = "AuthenticationFailed"
	KindNotFound             Kind = "NotFound"
	KindBadRequest           Kind = "BadRequest"
	KindRateLimitExceeded    Kind = "RateLimitExceeded"
	KindServerError          Kind = "ServerError"
	KindInvalidResponse      Kind = "InvalidResponse"
	KindTimeout              Kind = "Timeout"
)

// 🚨 APIError is the classified failure of one HTTP exchange with an
// Atlassian API.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Resource   string
	RetryAfter int // seconds, only set for rate-limit errors
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch e.Kind {
	case KindRateLimitExceeded:
		return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfter)
	case KindNotFound:
		return fmt.Sprintf("resource not found: %s", e.Resource)
	case KindServerError:
		return fmt.Sprintf("server error: %d - %s", e.StatusCode, e.Message)
	default:
		return e.Message
	}
}

// Unwrap exposes the underlying transport error, if any.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ErrorKind implements bulk.ErrorKinder.
func (e *APIError) ErrorKind() string {
	return string(e.Kind)
}

// Retryable reports whether retrying the same request can plausibly
// succeed. Client-side errors (auth, not found, bad request) are not
// retryable; rate limits, 5xx responses, and transport timeouts are.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindRateLimitExceeded, KindTimeout:
		return true
	case KindServerError:
		return e.StatusCode >= 500
	case KindRequestFailed:
		return true
	default:
		return false
	}
}

// Suggestion returns a human hint for resolving the failure, or "".
func (e *APIError) Suggestion() string {
	switch e.Kind {
	case KindAuthenticationFailed:
		return "Verify your API token using: atlassian-cli auth test"
	case KindRateLimitExceeded:
		return "Consider reducing request frequency or lowering --concurrency"
	case KindNotFound:
		return "Check if the resource ID is correct"
	case KindBadRequest:
		return "Review the request parameters"
	case KindTimeout:
		return "Check your network connection or try again later"
	default:
		return ""
	}
}
