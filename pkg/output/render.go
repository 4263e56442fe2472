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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pterm/pterm"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// idColumns are promoted to the front of tables and used by quiet mode.
var idColumns = []string{"id", "key", "name"}

// 🖨️ Renderer writes command results in the selected Format.
type Renderer struct {
	format Format
	out    io.Writer
}

// NewRenderer creates a Renderer writing to out.
func NewRenderer(format Format, out io.Writer) *Renderer {
	return &Renderer{format: format, out: out}
}

// Render writes v in the renderer's format. Tabular formats (table, csv,
// quiet) accept a slice of structs or maps; the rows are coerced through
// JSON so any json-tagged type renders without bespoke adapters.
func (r *Renderer) Render(v any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(v)
	case FormatYAML:
		return r.renderYAML(v)
	case FormatCSV:
		return r.renderCSV(v)
	case FormatQuiet:
		return r.renderQuiet(v)
	default:
		return r.renderTable(v)
	}
}

func (r *Renderer) renderJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func (r *Renderer) renderYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Errorf("encoding YAML output: %w", err)
	}
	if _, err := r.out.Write(data); err != nil {
		return errors.Errorf("writing YAML output: %w", err)
	}
	return nil
}

func (r *Renderer) renderTable(v any) error {
	columns, rows, err := coerceRows(v)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(r.out, "no results")
		return nil
	}

	data := pterm.TableData{columns}
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = cellString(row[col])
		}
		data = append(data, line)
	}

	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Errorf("rendering table: %w", err)
	}
	fmt.Fprintln(r.out, rendered)
	return nil
}

func (r *Renderer) renderCSV(v any) error {
	columns, rows, err := coerceRows(v)
	if err != nil {
		return err
	}

	w := csv.NewWriter(r.out)
	if err := w.Write(columns); err != nil {
		return errors.Errorf("writing CSV header: %w", err)
	}
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = cellString(row[col])
		}
		if err := w.Write(line); err != nil {
			return errors.Errorf("writing CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Errorf("flushing CSV output: %w", err)
	}
	return nil
}

// renderQuiet prints one identifier per row, for piping into other tools.
func (r *Renderer) renderQuiet(v any) error {
	_, rows, err := coerceRows(v)
	if err != nil {
		return err
	}
	for _, row := range rows {
		for _, col := range idColumns {
			if val, ok := row[col]; ok {
				fmt.Fprintln(r.out, cellString(val))
				break
			}
		}
	}
	return nil
}

// coerceRows flattens v into column names plus rows of values. A single
// object becomes a one-row table.
func coerceRows(v any) ([]string, []map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, errors.Errorf("coercing value for output: %w", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		var single map[string]any
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, nil, errors.Errorf("value is not tabular: %w", err)
		}
		rows = []map[string]any{single}
	}

	seen := map[string]bool{}
	var columns []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	sort.Strings(columns)

	// Identifier columns lead, in their fixed order.
	ordered := make([]string, 0, len(columns))
	for _, id := range idColumns {
		if seen[id] {
			ordered = append(ordered, id)
		}
	}
	for _, col := range columns {
		if !isIDColumn(col) {
			ordered = append(ordered, col)
		}
	}
	return ordered, rows, nil
}

func isIDColumn(col string) bool {
	for _, id := range idColumns {
		if col == id {
			return true
		}
	}
	return false
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers arrive as float64; render integers without a
		// trailing .0.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
