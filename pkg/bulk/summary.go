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

import "time"

// 🧾 Summary is the aggregate result of one run, computed once every
// submitted item is drained or the run is cancelled. It is a pure
// aggregation over outcomes, so it is independent of completion order.
// Succeeded + Failed + Skipped + DryRun always equals Total.
type Summary struct {
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	DryRun     int           `json:"dry_run"`
	Duration   time.Duration `json:"duration"`
	FirstError *ItemError    `json:"first_error,omitempty"`
}

// Ok reports whether every item either succeeded or was a dry-run preview.
// A false return is the caller's signal to exit non-zero.
func (s Summary) Ok() bool {
	return s.Failed == 0 && s.Skipped == 0
}
