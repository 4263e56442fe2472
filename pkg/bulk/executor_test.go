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

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

// remoteError carries a machine-readable kind, like pkg/api errors do.
type remoteError struct {
	kind string
	msg  string
}

func (e *remoteError) Error() string     { return e.msg }
func (e *remoteError) ErrorKind() string { return e.kind }

func numberedItems(n int) []Item {
	items := make([]Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, Item{ID: fmt.Sprintf("item-%02d", i)})
	}
	return items
}

func TestNewValidatesConcurrency(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		wantErr     bool
	}{
		{name: "zero_concurrency", concurrency: 0, wantErr: true},
		{name: "negative_concurrency", concurrency: -3, wantErr: true},
		{name: "single_worker", concurrency: 1},
		{name: "many_workers", concurrency: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Concurrency: tt.concurrency})
			if tt.wantErr {
				require.Error(t, err, "invalid concurrency should be rejected")
				assert.ErrorIs(t, err, ErrInvalidConcurrency)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRunRejectsDuplicateIDs(t *testing.T) {
	exec, err := New(Config{Concurrency: 2})
	require.NoError(t, err)

	var invoked atomic.Int32
	op := OperationFunc(func(ctx context.Context, item Item) (string, error) {
		invoked.Add(1)
		return "", nil
	})

	items := []Item{{ID: "dup"}, {ID: "other"}, {ID: "dup"}}
	_, err = exec.Run(context.Background(), NewSliceSource(items), op)
	require.Error(t, err, "duplicate ids must fail fast")
	assert.ErrorIs(t, err, ErrDuplicateItemID)
	assert.Zero(t, invoked.Load(), "no item should be dispatched when validation fails")
}

func TestRunRejectsEmptyID(t *testing.T) {
	exec, err := New(Config{Concurrency: 1})
	require.NoError(t, err)

	_, err = exec.Run(context.Background(), NewSliceSource([]Item{{ID: ""}}), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		return "", nil
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyItemID)
}

func TestRunIsSingleUse(t *testing.T) {
	exec, err := New(Config{Concurrency: 1})
	require.NoError(t, err)

	op := OperationFunc(func(ctx context.Context, item Item) (string, error) { return "", nil })

	_, err = exec.Run(context.Background(), NewSliceSource(numberedItems(1)), op)
	require.NoError(t, err)

	_, err = exec.Run(context.Background(), NewSliceSource(numberedItems(1)), op)
	require.Error(t, err, "a second run on the same instance must be rejected")
	assert.ErrorIs(t, err, ErrAlreadyRan)
}

func TestRunEmptySource(t *testing.T) {
	exec, err := New(Config{Concurrency: 4})
	require.NoError(t, err)

	summary, err := exec.Run(context.Background(), NewSliceSource(nil), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		return "", nil
	}))
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.True(t, summary.Ok())
}

func TestRunAllSucceed(t *testing.T) {
	// Scenario: 10 items, concurrency 3, operation always succeeds.
	log := NewMemoryLog()
	exec, err := New(Config{Concurrency: 3, Log: log})
	require.NoError(t, err)

	summary, err := exec.Run(context.Background(), NewSliceSource(numberedItems(10)), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		return "done " + item.ID, nil
	}))
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 10, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Skipped)
	assert.Nil(t, summary.FirstError)
	assert.True(t, summary.Ok())

	records, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 10, "one transaction record per item")

	seen := make(map[string]struct{})
	for _, rec := range records {
		assert.Equal(t, exec.RunID(), rec.RunID)
		assert.Equal(t, StatusSuccess, rec.Outcome.Status)
		assert.Equal(t, 1, rec.Attempt)
		_, dup := seen[rec.ItemID]
		assert.False(t, dup, "item %s recorded twice", rec.ItemID)
		seen[rec.ItemID] = struct{}{}
	}
}

func TestRunPartialFailure(t *testing.T) {
	// Scenario: 10 items, concurrency 4, items 3 and 7 fail.
	log := NewMemoryLog()
	exec, err := New(Config{Concurrency: 4, Log: log})
	require.NoError(t, err)

	summary, err := exec.Run(context.Background(), NewSliceSource(numberedItems(10)), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		if item.ID == "item-03" || item.ID == "item-07" {
			return "", &remoteError{kind: "RemoteRejected", msg: "transition not allowed"}
		}
		return "", nil
	}))
	require.NoError(t, err, "per-item failures are outcomes, not run errors")

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 8, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.False(t, summary.Ok())

	require.NotNil(t, summary.FirstError)
	assert.Contains(t, []string{"item-03", "item-07"}, summary.FirstError.ItemID)
	assert.Equal(t, "RemoteRejected", summary.FirstError.Kind)

	records, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	failed := 0
	for _, rec := range records {
		if rec.Outcome.Status == StatusFailed {
			failed++
			assert.Equal(t, "RemoteRejected", rec.Outcome.ErrorKind)
		}
	}
	assert.Equal(t, 2, failed)
}

func TestDryRunNeverMutates(t *testing.T) {
	// Scenario: 5 items under dry-run. The mutating path must never run.
	log := NewMemoryLog()
	exec, err := New(Config{Concurrency: 2, DryRun: true, Log: log})
	require.NoError(t, err)

	var mutations atomic.Int32
	op := WithPreview(
		OperationFunc(func(ctx context.Context, item Item) (string, error) {
			mutations.Add(1)
			return "", nil
		}),
		func(ctx context.Context, item Item) (string, error) {
			return "would delete " + item.ID, nil
		},
	)

	summary, err := exec.Run(context.Background(), NewSliceSource(numberedItems(5)), op)
	require.NoError(t, err)

	assert.Zero(t, mutations.Load(), "dry-run must never invoke the mutating path")
	assert.Equal(t, 5, summary.DryRun)
	assert.Zero(t, summary.Succeeded)
	assert.Equal(t, 5, summary.Total)

	records, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 5)
	for _, rec := range records {
		assert.Equal(t, StatusDryRun, rec.Outcome.Status)
		assert.Equal(t, "would delete "+rec.ItemID, rec.Outcome.WouldDo)
	}
}

func TestDryRunWithoutPreviewer(t *testing.T) {
	exec, err := New(Config{Concurrency: 1, DryRun: true})
	require.NoError(t, err)

	var mutations atomic.Int32
	summary, err := exec.Run(context.Background(), NewSliceSource(numberedItems(3)), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		mutations.Add(1)
		return "", nil
	}))
	require.NoError(t, err)
	assert.Zero(t, mutations.Load(), "mutating path invoked under dry-run")
	assert.Equal(t, 3, summary.DryRun)
}

func TestConcurrencyCeiling(t *testing.T) {
	const limit = 3

	exec, err := New(Config{Concurrency: limit})
	require.NoError(t, err)

	var active, maxActive atomic.Int32
	summary, err := exec.Run(context.Background(), NewSliceSource(numberedItems(20)), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		cur := active.Add(1)
		for {
			prev := maxActive.Load()
			if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return "", nil
	}))
	require.NoError(t, err)

	assert.Equal(t, 20, summary.Succeeded)
	assert.LessOrEqual(t, maxActive.Load(), int32(limit), "in-flight invocations must never exceed the concurrency limit")
}

func TestStopOnFirstError(t *testing.T) {
	// Scenario: 20 items, concurrency 5, item 4 fails; dispatch must stop
	// once the failure is observed while every item still gets an outcome.
	log := NewMemoryLog()
	exec, err := New(Config{Concurrency: 5, StopOnFirstError: true, Log: log})
	require.NoError(t, err)

	release := make(chan struct{})
	go func() {
		// Hold the in-flight successes until the failure has been counted,
		// so the abort is guaranteed to trip before the pool drains.
		for exec.Snapshot().Failed == 0 {
			time.Sleep(time.Millisecond)
		}
		close(release)
	}()

	summary, err := exec.Run(context.Background(), NewSliceSource(numberedItems(20)), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		if item.ID == "item-04" {
			return "", &remoteError{kind: "RemoteRejected", msg: "boom"}
		}
		<-release
		return "", nil
	}))
	require.NoError(t, err)

	assert.Equal(t, 20, summary.Total, "every submitted item must be accounted for")
	assert.Equal(t, 1, summary.Failed)
	assert.GreaterOrEqual(t, summary.Skipped, 15, "undispatched items must be skipped")
	assert.Equal(t, 20, summary.Succeeded+summary.Failed+summary.Skipped+summary.DryRun)

	require.NotNil(t, summary.FirstError)
	assert.Equal(t, "item-04", summary.FirstError.ItemID)

	records, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 20)
	for _, rec := range records {
		if rec.Outcome.Status == StatusSkipped {
			assert.Equal(t, ReasonAborted, rec.Outcome.Reason)
		}
	}
}

func TestCancellationSkipsUndispatched(t *testing.T) {
	log := NewMemoryLog()
	exec, err := New(Config{Concurrency: 2, Log: log})
	require.NoError(t, err)

	src := NewChannelSource(0)
	go func() {
		for _, item := range numberedItems(6) {
			if err := src.Send(context.Background(), item); err != nil {
				return
			}
		}
		src.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 6)
	hold := make(chan struct{})
	go func() {
		// Cancel once both workers are mid-operation, then let them finish.
		<-started
		<-started
		cancel()
		// Give the feed a moment to observe the cancellation.
		time.Sleep(10 * time.Millisecond)
		close(hold)
	}()

	summary, err := exec.Run(ctx, src, OperationFunc(func(ctx context.Context, item Item) (string, error) {
		started <- struct{}{}
		<-hold
		return "", nil
	}))
	require.Error(t, err, "a cancelled run reports the cancellation")
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 6, summary.Total, "cancelled runs still account for every item")
	assert.Equal(t, 2, summary.Succeeded, "in-flight operations run to completion")
	assert.Equal(t, 4, summary.Skipped)

	records, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 6)
	for _, rec := range records {
		if rec.Outcome.Status == StatusSkipped {
			assert.Equal(t, ReasonCancelled, rec.Outcome.Reason)
		}
	}
}

// cancelMidFetchSource cancels the run while handing out an item, so the
// cancellation lands inside the fetch-to-dispatch window.
type cancelMidFetchSource struct {
	items    []Item
	pos      int
	cancelAt int
	cancel   context.CancelFunc
}

func (s *cancelMidFetchSource) Next(ctx context.Context) (Item, bool, error) {
	if s.pos >= len(s.items) {
		return Item{}, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	if s.pos == s.cancelAt {
		s.cancel()
	}
	return item, true, nil
}

func TestCancellationDuringFetchSettlesEveryItem(t *testing.T) {
	// Repeat the run so the scheduler is observed with the cancellation
	// already signalled when it picks between dispatch and shutdown.
	for i := 0; i < 50; i++ {
		log := NewMemoryLog()
		exec, err := New(Config{Concurrency: 2, Log: log})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		src := &cancelMidFetchSource{items: numberedItems(6), cancelAt: 3, cancel: cancel}

		summary, err := exec.Run(ctx, src, OperationFunc(func(ctx context.Context, item Item) (string, error) {
			return "", nil
		}))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 6, summary.Total, "iteration %d lost outcomes", i)
		require.Equal(t, 6, summary.Succeeded+summary.Skipped, "iteration %d", i)

		records, readErr := log.ReadAll(context.Background())
		require.NoError(t, readErr)
		require.Len(t, records, 6, "iteration %d: one record per submitted item", i)
		seen := make(map[string]struct{}, len(records))
		for _, rec := range records {
			_, dup := seen[rec.ItemID]
			require.False(t, dup, "item %q settled twice", rec.ItemID)
			seen[rec.ItemID] = struct{}{}
		}
		cancel()
	}
}

func TestLogWriteFailureAbortsRun(t *testing.T) {
	exec, err := New(Config{Concurrency: 2, Log: &failingLog{}})
	require.NoError(t, err)

	_, err = exec.Run(context.Background(), NewSliceSource(numberedItems(4)), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		return "", nil
	}))
	require.Error(t, err, "an unwritable audit trail is unsafe to continue on")
	assert.Contains(t, err.Error(), "disk full")
}

// failingLog simulates an unwritable sink.
type failingLog struct{}

func (l *failingLog) Append(ctx context.Context, rec Record) error {
	return errors.New("disk full")
}

func (l *failingLog) ReadAll(ctx context.Context) ([]Record, error) {
	return nil, nil
}

func TestEventsFollowCompletions(t *testing.T) {
	var mu sync.Mutex
	var events []Event

	exec, err := New(Config{
		Concurrency: 4,
		OnEvent: func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		},
	})
	require.NoError(t, err)

	summary, err := exec.Run(context.Background(), NewSliceSource(numberedItems(12)), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		return "", nil
	}))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, summary.Total, "exactly one event per completed item")
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Counters.Completed, "counters must advance one completion at a time")
		assert.Equal(t, StatusSuccess, ev.Outcome.Status)
	}
}

func TestLazySourceBackpressure(t *testing.T) {
	// A slow producer must not break accounting: workers block waiting for
	// the next item and the run completes once the source is exhausted.
	exec, err := New(Config{Concurrency: 3})
	require.NoError(t, err)

	src := NewChannelSource(0)
	go func() {
		for _, item := range numberedItems(5) {
			time.Sleep(2 * time.Millisecond)
			if err := src.Send(context.Background(), item); err != nil {
				return
			}
		}
		src.Close()
	}()

	summary, err := exec.Run(context.Background(), src, OperationFunc(func(ctx context.Context, item Item) (string, error) {
		return "", nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Succeeded)
}

func TestSourceFailurePropagates(t *testing.T) {
	exec, err := New(Config{Concurrency: 2})
	require.NoError(t, err)

	src := NewChannelSource(0)
	go func() {
		_ = src.Send(context.Background(), Item{ID: "only"})
		src.Fail(errors.New("remote search timed out"))
	}()

	summary, err := exec.Run(context.Background(), src, OperationFunc(func(ctx context.Context, item Item) (string, error) {
		return "", nil
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote search timed out")
	assert.Equal(t, 1, summary.Total, "items fed before the failure still complete")
}

func TestUnclassifiedErrorKind(t *testing.T) {
	exec, err := New(Config{Concurrency: 1})
	require.NoError(t, err)

	summary, err := exec.Run(context.Background(), NewSliceSource(numberedItems(1)), OperationFunc(func(ctx context.Context, item Item) (string, error) {
		return "", errors.New("plain failure")
	}))
	require.NoError(t, err)
	require.NotNil(t, summary.FirstError)
	assert.Equal(t, ErrorKindUnclassified, summary.FirstError.Kind)
}

func TestKindOfUnwrapsChain(t *testing.T) {
	base := &remoteError{kind: "NotFound", msg: "gone"}
	wrapped := errors.Errorf("deleting page: %w", base)
	assert.Equal(t, "NotFound", KindOf(wrapped))
	assert.Equal(t, ErrorKindUnclassified, KindOf(errors.New("nope")))

	joined := errors.Join(errors.New("flushing cache"), base)
	assert.Equal(t, "NotFound", KindOf(joined), "joined errors are part of the unwrap tree")
}
