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

// Package commands implements the atlassian-cli subcommands.
package commands

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/omar16100/atlassian-cli/cmd/atlassian-cli/opts"
	"github.com/omar16100/atlassian-cli/pkg/bulk"
)

// 🚩 bulkFlags are the flags shared by every bulk command.
type bulkFlags struct {
	concurrency      int
	dryRun           bool
	stopOnFirstError bool
	txLog            string
}

// register binds the shared flags on a bulk command.
func (f *bulkFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 5, "number of concurrent operations")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "preview without making changes")
	cmd.Flags().BoolVar(&f.stopOnFirstError, "stop-on-first-error", false, "abort the run after the first failed item")
	cmd.Flags().StringVar(&f.txLog, "txlog", "", "transaction log path (default .atlassian-cli/runs/<timestamp>.jsonl)")
}

// logPath returns the transaction log destination for this run.
func (f *bulkFlags) logPath() string {
	if f.txLog != "" {
		return f.txLog
	}
	name := time.Now().UTC().Format("20060102-150405") + ".jsonl"
	return filepath.Join(".atlassian-cli", "runs", name)
}

// runBulk executes one bulk operation over items: it opens the
// transaction log, drives the executor with live progress feedback and
// reports the summary. A run with failed items returns an error so the
// process exits non-zero.
func runBulk(ctx context.Context, o *opts.RootOpts, cmd *cobra.Command, f bulkFlags, title string, items []bulk.Item, op bulk.Operation) error {
	if len(items) == 0 {
		zerolog.Ctx(ctx).Info().Msg("no items matched, nothing to do")
		return nil
	}
	return driveBulk(ctx, o, cmd, f, title, bulk.NewSliceSource(items), len(items), op)
}

// runBulkStream is the lazy-source form of runBulk: items arrive from a
// producer while workers are already processing, so the total is unknown
// up front and no progress bar is shown.
func runBulkStream(ctx context.Context, o *opts.RootOpts, cmd *cobra.Command, f bulkFlags, title string, src bulk.Source, op bulk.Operation) error {
	return driveBulk(ctx, o, cmd, f, title, src, 0, op)
}

func driveBulk(ctx context.Context, o *opts.RootOpts, cmd *cobra.Command, f bulkFlags, title string, src bulk.Source, total int, op bulk.Operation) error {
	logger := zerolog.Ctx(ctx)
	out := cmd.OutOrStdout()

	txLog, err := bulk.OpenFileLog(ctx, f.logPath())
	if err != nil {
		return errors.Errorf("opening transaction log: %w", err)
	}
	defer txLog.Close()

	progress := o.Progress(out)
	exec, err := bulk.New(bulk.Config{
		Concurrency:      f.concurrency,
		DryRun:           f.dryRun,
		StopOnFirstError: f.stopOnFirstError,
		Log:              txLog,
		OnEvent:          progress.Handle,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("run_id", exec.RunID()).
		Str("txlog", txLog.Path()).
		Msg(title)

	progress.Start(title, total)
	summary, err := exec.Run(ctx, src, op)
	progress.Finish(summary)
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return errors.Errorf("%d of %d operations failed, transaction log: %s",
			summary.Failed, summary.Total, txLog.Path())
	}
	return nil
}
