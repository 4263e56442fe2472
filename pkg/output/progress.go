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

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/omar16100/atlassian-cli/pkg/bulk"
)

// 📊 ProgressRenderer turns bulk run events into terminal feedback. It
// is safe to pass its Handle method as the executor's OnEvent callback;
// events arrive from worker goroutines.
type ProgressRenderer struct {
	format Format
	out    io.Writer

	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
}

// NewProgressRenderer creates a ProgressRenderer for the given format.
// Table format shows a progress bar plus per-item lines for failures;
// json emits one event object per line; quiet stays silent.
func NewProgressRenderer(format Format, out io.Writer) *ProgressRenderer {
	return &ProgressRenderer{format: format, out: out}
}

// Start begins progress display for a run of total items. Call with
// total <= 0 when the item count is not known up front (lazy sources);
// the bar is skipped and only per-item lines are shown.
func (p *ProgressRenderer) Start(title string, total int) {
	if p.format != FormatTable || total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithWriter(p.out).
		Start()
	if err != nil {
		// Degrade to per-item lines on terminals pterm cannot drive.
		return
	}
	p.bar = bar
}

// Handle consumes one completion event.
func (p *ProgressRenderer) Handle(ev bulk.Event) {
	switch p.format {
	case FormatQuiet:
		return
	case FormatJSON:
		p.mu.Lock()
		defer p.mu.Unlock()
		data, err := json.Marshal(map[string]any{
			"item_id":  ev.ItemID,
			"outcome":  ev.Outcome,
			"counters": ev.Counters,
		})
		if err != nil {
			return
		}
		fmt.Fprintln(p.out, string(data))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Outcome.Status {
	case bulk.StatusSuccess:
		p.itemLine(pterm.Success, "✅", ev.ItemID, ev.Outcome.Detail)
	case bulk.StatusFailed:
		p.itemLine(pterm.Error, "❌", ev.ItemID,
			fmt.Sprintf("%s: %s", ev.Outcome.ErrorKind, ev.Outcome.Message))
	case bulk.StatusSkipped:
		p.itemLine(pterm.Warning, "⏭️", ev.ItemID, ev.Outcome.Reason)
	case bulk.StatusDryRun:
		p.itemLine(pterm.Info, "🔍", ev.ItemID, ev.Outcome.WouldDo)
	}

	if p.bar != nil {
		p.bar.Increment()
	}
}

// itemLine prints one per-item line. Successes are folded into the bar
// when one is running; everything else always gets its own line.
func (p *ProgressRenderer) itemLine(printer pterm.PrefixPrinter, prefix, itemID, detail string) {
	if p.bar != nil && printer.Prefix.Text == pterm.Success.Prefix.Text {
		return
	}
	msg := itemID
	if detail != "" {
		msg += " (" + detail + ")"
	}
	printer.WithPrefix(pterm.Prefix{Text: prefix}).WithWriter(p.out).Println(msg)
}

// Finish stops the progress bar and renders the run summary.
func (p *ProgressRenderer) Finish(summary bulk.Summary) {
	p.mu.Lock()
	if p.bar != nil {
		p.bar.Stop()
		p.bar = nil
	}
	p.mu.Unlock()

	switch p.format {
	case FormatQuiet:
		return
	case FormatJSON:
		data, err := json.Marshal(summary)
		if err != nil {
			return
		}
		fmt.Fprintln(p.out, string(data))
		return
	}

	RenderSummary(p.out, summary)
}

// RenderSummary writes the final run summary as a small table.
func RenderSummary(out io.Writer, summary bulk.Summary) {
	okColor := color.New(color.FgGreen)
	failColor := color.New(color.FgRed)
	skipColor := color.New(color.FgYellow)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total:     %d\n", summary.Total)
	okColor.Fprintf(out, "Succeeded: %d\n", summary.Succeeded)
	failColor.Fprintf(out, "Failed:    %d\n", summary.Failed)
	skipColor.Fprintf(out, "Skipped:   %d\n", summary.Skipped)
	if summary.DryRun > 0 {
		fmt.Fprintf(out, "Dry run:   %d\n", summary.DryRun)
	}
	fmt.Fprintf(out, "Duration:  %s\n", summary.Duration.Round(time.Millisecond))

	if summary.FirstError != nil {
		failColor.Fprintf(out, "First error: %s (%s): %s\n",
			summary.FirstError.ItemID, summary.FirstError.Kind, summary.FirstError.Message)
	}
}
