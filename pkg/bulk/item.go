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

// Package bulk provides the bulk operation executor: a bounded worker pool
// that applies a single mutating operation to a set of remote items with
// dry-run simulation, per-item failure isolation, progress reporting, and a
// durable per-item transaction log.
package bulk

// 📦 Item wraps one unit of remote work. The ID is the transaction-log key
// and must be non-empty and unique within a run. Payload is caller-defined
// and is never mutated by the executor.
type Item struct {
	ID      string
	Payload any
}

// NewItem creates an item with the given id and payload.
func NewItem(id string, payload any) Item {
	return Item{ID: id, Payload: payload}
}

// Items builds a slice of payload-less items from plain ids. Most bulk
// commands operate on bare keys (issue keys, page ids, branch names).
func Items(ids []string) []Item {
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, Item{ID: id})
	}
	return items
}
