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

package bulk

import "gitlab.com/tozd/go/errors"

// 🏷️ Status classifies the result of processing one item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusDryRun  Status = "dry_run"
)

// Skip reasons recorded when the executor never invokes the operation.
const (
	ReasonAborted   = "aborted"
	ReasonCancelled = "cancelled"
)

// ErrorKindUnclassified is recorded for operation errors that do not
// implement ErrorKinder.
const ErrorKindUnclassified = "OperationFailed"

// 🎯 Outcome is the classified result of processing one item. Exactly one
// outcome is produced per submitted item. Which fields are set depends on
// Status: Detail for success, ErrorKind/Message for failure, Reason for
// skips, and WouldDo for dry-run previews.
type Outcome struct {
	Status    Status `json:"status"`
	Detail    string `json:"detail,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Reason    string `json:"reason,omitempty"`
	WouldDo   string `json:"would_do,omitempty"`
}

// Success builds a success outcome with an optional detail string.
func Success(detail string) Outcome {
	return Outcome{Status: StatusSuccess, Detail: detail}
}

// Failed builds a failure outcome from an operation error, classifying it
// via ErrorKinder when the error supports it.
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, ErrorKind: KindOf(err), Message: err.Error()}
}

// Skipped builds a skip outcome with the given reason.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// DryRun builds a dry-run outcome describing what would have been done.
func DryRun(wouldDo string) Outcome {
	return Outcome{Status: StatusDryRun, WouldDo: wouldDo}
}

// 🔍 ErrorKinder lets operation errors carry a stable machine-readable
// classification (e.g. "RemoteRejected", "NotFound"). Errors that do not
// implement it are recorded as ErrorKindUnclassified.
type ErrorKinder interface {
	ErrorKind() string
}

// KindOf extracts the error kind from err, walking the unwrap tree,
// including joined errors.
func KindOf(err error) string {
	var ek ErrorKinder
	if errors.As(err, &ek) {
		return ek.ErrorKind()
	}
	return ErrorKindUnclassified
}
