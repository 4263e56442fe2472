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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(itemID string, outcome Outcome) Record {
	return Record{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RunID:     "run-1",
		ItemID:    itemID,
		Outcome:   outcome,
		Attempt:   1,
	}
}

func TestFileLogAppendAndReadAll(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs", "run-1.jsonl")

	log, err := OpenFileLog(ctx, path)
	require.NoError(t, err, "parent directories should be created")
	defer log.Close()

	require.NoError(t, log.Append(ctx, testRecord("PROJ-1", Success("transitioned"))))
	require.NoError(t, log.Append(ctx, testRecord("PROJ-2", Failed(&remoteError{kind: "NotFound", msg: "gone"}))))
	require.NoError(t, log.Append(ctx, testRecord("PROJ-3", Skipped(ReasonAborted))))

	records, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "PROJ-1", records[0].ItemID)
	assert.Equal(t, StatusSuccess, records[0].Outcome.Status)
	assert.Equal(t, "transitioned", records[0].Outcome.Detail)

	assert.Equal(t, StatusFailed, records[1].Outcome.Status)
	assert.Equal(t, "NotFound", records[1].Outcome.ErrorKind)
	assert.Equal(t, "gone", records[1].Outcome.Message)

	assert.Equal(t, StatusSkipped, records[2].Outcome.Status)
	assert.Equal(t, ReasonAborted, records[2].Outcome.Reason)
}

func TestFileLogReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.jsonl")

	log, err := OpenFileLog(ctx, path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, testRecord(fmt.Sprintf("item-%d", i), Success(""))))
	}
	require.NoError(t, log.Close())

	first, err := ReadRecords(ctx, path)
	require.NoError(t, err)
	second, err := ReadRecords(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first, second, "replaying an immutable log must yield identical records")
}

func TestFileLogOneRecordPerLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.jsonl")

	log, err := OpenFileLog(ctx, path)
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, testRecord("a", Success("ok"))))
	require.NoError(t, log.Append(ctx, testRecord("b", DryRun("would archive"))))
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	// Every line must be a complete, self-describing JSON object.
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
		var raw map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &raw), "line %d is not self-contained JSON", lines)
		assert.Contains(t, raw, "timestamp")
		assert.Contains(t, raw, "item_id")
		assert.Contains(t, raw, "outcome")
		assert.Contains(t, raw, "attempt")
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 2, lines)
}

func TestFileLogConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.jsonl")

	log, err := OpenFileLog(ctx, path)
	require.NoError(t, err)
	defer log.Close()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec := testRecord(fmt.Sprintf("w%d-i%d", w, i), Success(""))
				assert.NoError(t, log.Append(ctx, rec))
			}
		}(w)
	}
	wg.Wait()

	records, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, writers*perWriter, "no record may be lost or torn")

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		_, dup := seen[rec.ItemID]
		require.False(t, dup, "record %s interleaved or duplicated", rec.ItemID)
		seen[rec.ItemID] = struct{}{}
	}
}

func TestFileLogAppendAfterClose(t *testing.T) {
	ctx := context.Background()
	log, err := OpenFileLog(ctx, filepath.Join(t.TempDir(), "log.jsonl"))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	err = log.Append(ctx, testRecord("late", Success("")))
	require.Error(t, err)
}

func TestOpenFileLogUnwritableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	_, err := OpenFileLog(context.Background(), filepath.Join(dir, "sub", "log.jsonl"))
	require.Error(t, err, "an unwritable sink is a configuration error")
}

func TestMemoryLogCopies(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	require.NoError(t, log.Append(ctx, testRecord("a", Success(""))))

	records, err := log.ReadAll(ctx)
	require.NoError(t, err)
	records[0].ItemID = "mutated"

	again, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].ItemID, "ReadAll must return a copy")
}
