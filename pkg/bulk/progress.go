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

import "sync"

// 📊 Counters is a point-in-time snapshot of executor progress.
type Counters struct {
	Dispatched int `json:"dispatched"`
	Completed  int `json:"completed"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	DryRun     int `json:"dry_run"`
}

// 📣 Event is published once per item completion, carrying the counters as
// they stood immediately after that completion was counted. Events are only
// published after the corresponding transaction record has been durably
// appended, so progress never outruns the log.
type Event struct {
	ItemID   string   `json:"item_id"`
	Outcome  Outcome  `json:"outcome"`
	Counters Counters `json:"counters"`
}

// EventFunc consumes progress events. It is invoked serially; a slow
// consumer slows workers rather than losing events.
type EventFunc func(Event)

// 📈 reporter tracks executor counters and publishes one event per item
// completion. The counter update and its event are performed under one
// lock so two workers completing simultaneously cannot lose an increment
// and a snapshot never observes a half-applied completion.
type reporter struct {
	mu      sync.Mutex
	c       Counters
	onEvent EventFunc
}

func newReporter(onEvent EventFunc) *reporter {
	return &reporter{onEvent: onEvent}
}

// dispatched counts an item handed to a worker.
func (r *reporter) dispatched() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.c.Dispatched++
}

// record counts one completed outcome and publishes its event.
func (r *reporter) record(itemID string, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.c.Completed++
	switch outcome.Status {
	case StatusSuccess:
		r.c.Succeeded++
	case StatusFailed:
		r.c.Failed++
	case StatusSkipped:
		r.c.Skipped++
	case StatusDryRun:
		r.c.DryRun++
	}

	if r.onEvent != nil {
		r.onEvent(Event{ItemID: itemID, Outcome: outcome, Counters: r.c})
	}
}

// snapshot returns a consistent copy of the counters.
func (r *reporter) snapshot() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.c
}
