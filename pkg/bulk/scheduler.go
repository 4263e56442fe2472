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
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// ⚙️ scheduler fans items out to a fixed pool of workers. The pool size is
// exactly the ceiling on simultaneously in-flight operation invocations:
// the dispatch channel is unbuffered, so a worker pulls an item only when
// it is idle and a lazy source simply blocks the pool when it runs dry.
type scheduler struct {
	cfg   Config
	log   Log
	rep   *reporter
	runID string

	aborted atomic.Bool

	mu       sync.Mutex
	firstErr *ItemError
}

// run drives one complete dispatch cycle: feed items to workers, wait for
// every fed item to be accounted for, and record skips for anything the
// feed never dispatched. It returns only run-fatal errors (duplicate ids
// from a lazy source, source failures, log-sink write failures); per-item
// operation failures are outcomes, not errors.
func (s *scheduler) run(ctx context.Context, src Source, op Operation) error {
	logger := zerolog.Ctx(ctx)

	g, gctx := errgroup.WithContext(ctx)
	itemCh := make(chan Item)

	for i := 0; i < s.cfg.Concurrency; i++ {
		g.Go(func() error {
			return s.worker(ctx, itemCh, op)
		})
	}

	g.Go(func() error {
		defer close(itemCh)
		return s.feed(ctx, gctx, src, itemCh)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Debug().
		Str("run_id", s.runID).
		Interface("counters", s.rep.snapshot()).
		Msg("dispatch complete")
	return nil
}

// feed pulls items from the source and hands them to idle workers. Once
// the run is aborted or cancelled it stops dispatching and drains the
// source so every remaining item still gets a recorded outcome.
func (s *scheduler) feed(ctx, gctx context.Context, src Source, itemCh chan<- Item) error {
	seen := make(map[string]struct{})

	for {
		if s.aborted.Load() {
			return s.drain(ctx, src, seen, ReasonAborted)
		}
		if ctx.Err() != nil {
			return s.drain(ctx, src, seen, ReasonCancelled)
		}
		if gctx.Err() != nil {
			if ctx.Err() != nil {
				return s.drain(ctx, src, seen, ReasonCancelled)
			}
			// A worker failed fatally; the run aborts entirely.
			return nil
		}

		item, ok, err := src.Next(gctx)
		if err != nil {
			if ctx.Err() != nil {
				return s.drain(ctx, src, seen, ReasonCancelled)
			}
			return errors.Errorf("reading next item from source: %w", err)
		}
		if !ok {
			return nil
		}
		if err := s.checkID(seen, item); err != nil {
			return err
		}

		select {
		case itemCh <- item:
			s.rep.dispatched()
		case <-ctx.Done():
			// Fetched but never dispatched.
			if err := s.settle(ctx, item, Skipped(ReasonCancelled)); err != nil {
				return err
			}
			return s.drain(ctx, src, seen, ReasonCancelled)
		case <-gctx.Done():
			// gctx closes for external cancellation too, and the select
			// picks arbitrarily when both are ready. The fetched item must
			// still be settled, so check the outer context before treating
			// this as a worker-fatal shutdown.
			if ctx.Err() != nil {
				if err := s.settle(ctx, item, Skipped(ReasonCancelled)); err != nil {
					return err
				}
				return s.drain(ctx, src, seen, ReasonCancelled)
			}
			return nil
		}
	}
}

// drain consumes the rest of the source, recording a skip outcome for each
// remaining item so the run summary still accounts for every submitted
// item. Draining ignores the external cancellation signal: outcomes must be
// recorded even while shutting down.
func (s *scheduler) drain(ctx context.Context, src Source, seen map[string]struct{}, reason string) error {
	drainCtx := context.WithoutCancel(ctx)
	for {
		item, ok, err := src.Next(drainCtx)
		if err != nil {
			return errors.Errorf("reading next item from source: %w", err)
		}
		if !ok {
			return nil
		}
		if err := s.checkID(seen, item); err != nil {
			return err
		}
		if err := s.settle(ctx, item, Skipped(reason)); err != nil {
			return err
		}
	}
}

// checkID enforces the transaction-log key constraint: ids are non-empty
// and unique within a run.
func (s *scheduler) checkID(seen map[string]struct{}, item Item) error {
	if item.ID == "" {
		return errors.WithStack(ErrEmptyItemID)
	}
	if _, dup := seen[item.ID]; dup {
		return errors.Errorf("%w: %q", ErrDuplicateItemID, item.ID)
	}
	seen[item.ID] = struct{}{}
	return nil
}

// worker processes dispatched items one at a time until the channel closes.
func (s *scheduler) worker(ctx context.Context, itemCh <-chan Item, op Operation) error {
	logger := zerolog.Ctx(ctx)

	// Operation invocations are never interrupted mid-flight: a half
	// completed remote mutation is a worse failure mode than a late
	// finishing one.
	opCtx := context.WithoutCancel(ctx)

	for item := range itemCh {
		outcome := s.process(opCtx, logger, item, op)
		if err := s.settle(ctx, item, outcome); err != nil {
			return err
		}
	}
	return nil
}

// process produces the outcome for one dispatched item.
func (s *scheduler) process(ctx context.Context, logger *zerolog.Logger, item Item, op Operation) Outcome {
	if s.aborted.Load() {
		return Skipped(ReasonAborted)
	}

	if s.cfg.DryRun {
		wouldDo := ""
		if p, ok := op.(Previewer); ok {
			desc, err := p.Preview(ctx, item)
			if err != nil {
				logger.Debug().Err(err).Str("item_id", item.ID).Msg("preview failed, recording bare dry-run")
			} else {
				wouldDo = desc
			}
		}
		return DryRun(wouldDo)
	}

	detail, err := op.Execute(ctx, item)
	if err != nil {
		logger.Warn().Err(err).Str("item_id", item.ID).Msg("operation failed")
		outcome := Failed(err)
		s.noteFailure(item.ID, outcome)
		if s.cfg.StopOnFirstError {
			s.aborted.Store(true)
		}
		return outcome
	}
	return Success(detail)
}

// settle durably appends the item's transaction record, then publishes the
// progress event. Append happens-before the event so progress can never
// claim an outcome the log does not hold. A log write failure is fatal to
// the whole run.
func (s *scheduler) settle(ctx context.Context, item Item, outcome Outcome) error {
	rec := Record{
		Timestamp: time.Now().UTC(),
		RunID:     s.runID,
		ItemID:    item.ID,
		Outcome:   outcome,
		Attempt:   1,
	}
	if err := s.log.Append(context.WithoutCancel(ctx), rec); err != nil {
		return errors.Errorf("appending transaction record for %s: %w", item.ID, err)
	}
	s.rep.record(item.ID, outcome)
	return nil
}

// noteFailure captures the first failed item for the run summary.
func (s *scheduler) noteFailure(itemID string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstErr == nil {
		s.firstErr = &ItemError{
			ItemID:  itemID,
			Kind:    outcome.ErrorKind,
			Message: outcome.Message,
		}
	}
}

func (s *scheduler) firstError() *ItemError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}
