/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package table renders query rows as fixed-width text tables
package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/rulego/fpcql/types"
)

// MinWidth is the narrowest column rendered
const MinWidth = 4

// Cell formats one value; nil is shown as NULL
func Cell(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

// Widths computes the width of every column. Rows longer than columns are truncated.
func Widths(columns []string, rows []types.Row) []int {
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
		for _, row := range rows {
			if i < len(row) {
				if n := len(Cell(row[i])); n > widths[i] {
					widths[i] = n
				}
			}
		}
		// 最小宽度为4
		if widths[i] < MinWidth {
			widths[i] = MinWidth
		}
	}
	return widths
}

// Write renders rows under columns, followed by the row count
func Write(w io.Writer, columns []string, rows []types.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}
	widths := Widths(columns, rows)

	Border(w, widths)
	line(w, widths, func(i int) string { return columns[i] })
	Border(w, widths)
	for _, row := range rows {
		line(w, widths, func(i int) string {
			if i < len(row) {
				return Cell(row[i])
			}
			return ""
		})
	}
	Border(w, widths)
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

// Border writes a +----+ separator line
func Border(w io.Writer, widths []int) {
	var b strings.Builder
	b.WriteByte('+')
	for _, width := range widths {
		b.WriteString(strings.Repeat("-", width+2))
		b.WriteByte('+')
	}
	fmt.Fprintln(w, b.String())
}

func line(w io.Writer, widths []int, cell func(i int) string) {
	var b strings.Builder
	b.WriteByte('|')
	for i, width := range widths {
		fmt.Fprintf(&b, " %-*s |", width, cell(i))
	}
	fmt.Fprintln(w, b.String())
}
