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

// Package query builds JQL and CQL query strings for the bulk commands.
package query

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ErrEmptyQuery is returned when a built query would have no clauses.
var ErrEmptyQuery = errors.Base("query has no clauses")

// Quote wraps a value in double quotes, escaping embedded quotes and
// backslashes the way JQL and CQL expect.
func Quote(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 2)
	b.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// 🔎 Builder accumulates clauses joined with AND. The zero value is
// ready to use.
type Builder struct {
	clauses []string
	orderBy string
}

// Eq appends `field = "value"`.
func (b *Builder) Eq(field, value string) *Builder {
	b.clauses = append(b.clauses, field+" = "+Quote(value))
	return b
}

// In appends `field IN ("a", "b")`.
func (b *Builder) In(field string, values ...string) *Builder {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	b.clauses = append(b.clauses, field+" IN ("+strings.Join(quoted, ", ")+")")
	return b
}

// Raw appends a clause verbatim, for operators the builder does not
// model. The caller is responsible for quoting.
func (b *Builder) Raw(clause string) *Builder {
	clause = strings.TrimSpace(clause)
	if clause != "" {
		b.clauses = append(b.clauses, clause)
	}
	return b
}

// OrderBy sets the trailing ORDER BY clause.
func (b *Builder) OrderBy(field, direction string) *Builder {
	b.orderBy = field + " " + direction
	return b
}

// Build joins the clauses with AND.
func (b *Builder) Build() (string, error) {
	if len(b.clauses) == 0 {
		return "", errors.WithStack(ErrEmptyQuery)
	}
	q := strings.Join(b.clauses, " AND ")
	if b.orderBy != "" {
		q += " ORDER BY " + b.orderBy
	}
	return q, nil
}
