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
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"
)

// 📜 Record is one durable transaction-log entry: the outcome of one item
// in one run. Records are append-only and never rewritten; RunID+ItemID is
// a unique key, which is what lets an external resume tool tell completed
// items from pending ones after an interrupted run.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	ItemID    string    `json:"item_id"`
	Outcome   Outcome   `json:"outcome"`
	Attempt   int       `json:"attempt"`
}

// 💾 Log records transaction records durably. Append must be safe to call
// concurrently from multiple workers; each record is written as one
// self-contained unit. The log is a pure recorder: it never deduplicates
// or validates outcomes.
type Log interface {
	Append(ctx context.Context, rec Record) error
	ReadAll(ctx context.Context) ([]Record, error)
}

// 🗄️ FileLog is a JSONL-backed Log: one JSON object per line, flushed per
// append. Losing the audit trail is treated as unsafe to continue, so any
// write error from Append aborts the whole run.
type FileLog struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// OpenFileLog creates (or truncates) a JSONL transaction log at path,
// creating parent directories as needed.
func OpenFileLog(ctx context.Context, path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Errorf("creating transaction log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Errorf("opening transaction log %s: %w", path, err)
	}
	return &FileLog{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the location of the log file.
func (l *FileLog) Path() string {
	return l.path
}

// Append writes one record as a single line and flushes it to the OS
// before returning, so a crash never leaves a partially written record
// followed by new appends.
func (l *FileLog) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Errorf("encoding transaction record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return errors.New("transaction log is closed")
	}
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return errors.Errorf("appending transaction record: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return errors.Errorf("flushing transaction log: %w", err)
	}
	return nil
}

// ReadAll replays every record written so far, in append order.
func (l *FileLog) ReadAll(ctx context.Context) ([]Record, error) {
	l.mu.Lock()
	if l.w != nil {
		if err := l.w.Flush(); err != nil {
			l.mu.Unlock()
			return nil, errors.Errorf("flushing transaction log: %w", err)
		}
	}
	l.mu.Unlock()

	return ReadRecords(ctx, l.path)
}

// Close flushes and closes the underlying file. Further appends fail.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return errors.Errorf("flushing transaction log: %w", err)
	}
	l.w = nil
	if err := l.file.Close(); err != nil {
		return errors.Errorf("closing transaction log: %w", err)
	}
	return nil
}

// ReadRecords parses a JSONL transaction log from disk. It is usable
// standalone against a log left behind by a previous run.
func ReadRecords(ctx context.Context, path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening transaction log %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errors.Errorf("parsing transaction record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Errorf("reading transaction log: %w", err)
	}
	return records, nil
}

// 🧪 MemoryLog is an in-memory Log for tests and library embedding.
type MemoryLog struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryLog creates an empty in-memory transaction log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append records rec in memory.
func (l *MemoryLog) Append(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// ReadAll returns a copy of all records appended so far.
func (l *MemoryLog) ReadAll(ctx context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out, nil
}
