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
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Configuration errors. All are fatal: they are reported before any item
// is dispatched and no run occurs.
var (
	ErrInvalidConcurrency = errors.Base("concurrency must be at least 1")
	ErrEmptyItemID        = errors.Base("item id must not be empty")
	ErrDuplicateItemID    = errors.Base("duplicate item id")
	ErrAlreadyRan         = errors.Base("executor instance has already run")
)

// 🛠️ Operation performs one unit of remote work against a single item and
// returns a human-readable success detail or an error. Implementations must
// be safe to invoke concurrently from multiple workers, and must not mutate
// remote state from Preview.
type Operation interface {
	Execute(ctx context.Context, item Item) (detail string, err error)
}

// 🔍 Previewer is optionally implemented by operations that can describe
// what Execute would do without doing it. Under dry-run the executor asks
// for the preview instead of executing; operations without a Previewer are
// recorded as bare dry-run outcomes.
type Previewer interface {
	Preview(ctx context.Context, item Item) (string, error)
}

// OperationFunc adapts a function to the Operation interface.
type OperationFunc func(ctx context.Context, item Item) (string, error)

// Execute implements Operation.
func (f OperationFunc) Execute(ctx context.Context, item Item) (string, error) {
	return f(ctx, item)
}

// previewOp pairs an operation with a preview function.
type previewOp struct {
	Operation
	preview func(ctx context.Context, item Item) (string, error)
}

// Preview implements Previewer.
func (p previewOp) Preview(ctx context.Context, item Item) (string, error) {
	return p.preview(ctx, item)
}

// WithPreview attaches a dry-run preview function to an operation.
func WithPreview(op Operation, preview func(ctx context.Context, item Item) (string, error)) Operation {
	return previewOp{Operation: op, preview: preview}
}

// 🔧 Config is the configuration surface of one bulk run. It is supplied
// by the caller; the executor reads nothing from the environment.
type Config struct {
	// Concurrency is the upper bound on simultaneously in-flight
	// operation invocations. Must be at least 1.
	Concurrency int

	// DryRun prevents the operation's mutating path from ever being
	// invoked; items are recorded as dry-run outcomes instead.
	DryRun bool

	// StopOnFirstError stops dispatching new items once any worker
	// reports a failure. In-flight items complete; undispatched items
	// are recorded as skipped.
	StopOnFirstError bool

	// Log receives one transaction record per item. When nil, records
	// are kept in memory only.
	Log Log

	// OnEvent, when set, receives one progress event per item completion.
	OnEvent EventFunc
}

// 🚀 Executor composes the transaction log, progress reporter, and
// scheduler behind one entry point and drives a single run to completion.
// One executor instance performs exactly one run; construct a fresh one
// per run so transaction-log keys stay unambiguous.
type Executor struct {
	cfg   Config
	sched *scheduler
	runID string
	ran   atomic.Bool
}

// New validates cfg and creates an executor for one run.
func New(cfg Config) (*Executor, error) {
	if cfg.Concurrency < 1 {
		return nil, errors.Errorf("%w: got %d", ErrInvalidConcurrency, cfg.Concurrency)
	}
	if cfg.Log == nil {
		cfg.Log = NewMemoryLog()
	}

	runID := uuid.NewString()
	return &Executor{
		cfg:   cfg,
		runID: runID,
		sched: &scheduler{
			cfg:   cfg,
			log:   cfg.Log,
			rep:   newReporter(cfg.OnEvent),
			runID: runID,
		},
	}, nil
}

// RunID returns the identifier stamped on every transaction record of
// this run.
func (e *Executor) RunID() string {
	return e.runID
}

// Snapshot returns a consistent point-in-time copy of the progress
// counters. Safe to call from any goroutine while the run is in flight.
func (e *Executor) Snapshot() Counters {
	return e.sched.rep.snapshot()
}

// Run dispatches every item from src to op and blocks until each submitted
// item has a recorded outcome or the run is cancelled or aborted. The
// returned summary always carries the counts, even when err is non-nil.
//
// Cancelling ctx stops dispatch; in-flight operations run to completion and
// items never dispatched are recorded as skipped.
func (e *Executor) Run(ctx context.Context, src Source, op Operation) (Summary, error) {
	if !e.ran.CompareAndSwap(false, true) {
		return Summary{}, errors.WithStack(ErrAlreadyRan)
	}

	logger := zerolog.Ctx(ctx).With().Str("run_id", e.runID).Logger()
	ctx = logger.WithContext(ctx)

	// Bounded sources are validated before anything is dispatched, so a
	// duplicate id means no run occurs at all.
	if s, ok := src.(*SliceSource); ok {
		if err := validateItems(s.items); err != nil {
			return Summary{}, err
		}
		if s.Len() == 0 {
			logger.Debug().Msg("no items to process")
			return Summary{}, nil
		}
		logger.Info().
			Int("total", s.Len()).
			Int("concurrency", e.cfg.Concurrency).
			Bool("dry_run", e.cfg.DryRun).
			Msg("starting bulk run")
	} else {
		logger.Info().
			Int("concurrency", e.cfg.Concurrency).
			Bool("dry_run", e.cfg.DryRun).
			Msg("starting streamed bulk run")
	}

	started := time.Now()
	runErr := e.sched.run(ctx, src, op)
	summary := e.summarize(time.Since(started))

	if runErr != nil {
		logger.Error().Err(runErr).Msg("bulk run aborted")
		return summary, runErr
	}
	if ctx.Err() != nil {
		logger.Warn().
			Int("skipped", summary.Skipped).
			Msg("bulk run cancelled")
		return summary, errors.Errorf("bulk run cancelled: %w", ctx.Err())
	}

	logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("dry_run", summary.DryRun).
		Dur("duration", summary.Duration).
		Msg("bulk run completed")
	return summary, nil
}

func (e *Executor) summarize(duration time.Duration) Summary {
	c := e.sched.rep.snapshot()
	return Summary{
		Total:      c.Completed,
		Succeeded:  c.Succeeded,
		Failed:     c.Failed,
		Skipped:    c.Skipped,
		DryRun:     c.DryRun,
		Duration:   duration,
		FirstError: e.sched.firstError(),
	}
}

// validateItems enforces non-empty, unique ids across a bounded item list.
func validateItems(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ID == "" {
			return errors.WithStack(ErrEmptyItemID)
		}
		if _, dup := seen[item.ID]; dup {
			return errors.Errorf("%w: %q", ErrDuplicateItemID, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// 💥 ItemError identifies the first failed item of a run.
type ItemError struct {
	ItemID  string `json:"item_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s failed (%s): %s", e.ItemID, e.Kind, e.Message)
}
