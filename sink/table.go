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

package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/rulego/fpcql/stream"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/utils/table"
)

// TableHandler prints the rows of each selection pass as one text table. Rows are held
// until the next pass of the same query starts or the query ends.
type TableHandler struct {
	w io.Writer

	mu      sync.Mutex
	pending map[string]*passRows
}

type passRows struct {
	pass    int64
	columns []string
	rows    []types.Row
}

var _ stream.Handler = (*TableHandler)(nil)

// NewTableHandler creates a handler writing to w
func NewTableHandler(w io.Writer) *TableHandler {
	return &TableHandler{w: w, pending: make(map[string]*passRows)}
}

func (h *TableHandler) OnRow(q *stream.Query, row types.Row) {
	pass := q.Stats()[stream.PassCount] + 1
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pending[q.Name()]
	if p != nil && p.pass != pass {
		h.flush(q.Name(), p)
		p = nil
	}
	if p == nil {
		p = &passRows{pass: pass, columns: q.Columns()}
		h.pending[q.Name()] = p
	}
	p.rows = append(p.rows, row)
}

func (h *TableHandler) OnError(q *stream.Query, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushQuery(q.Name())
	fmt.Fprintf(h.w, "%s: error: %v\n", q.Name(), err)
}

func (h *TableHandler) OnComplete(q *stream.Query) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushQuery(q.Name())
}

// Flush prints whatever is pending for every query
func (h *TableHandler) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name := range h.pending {
		h.flushQuery(name)
	}
}

func (h *TableHandler) flushQuery(name string) {
	if p := h.pending[name]; p != nil {
		h.flush(name, p)
	}
}

func (h *TableHandler) flush(name string, p *passRows) {
	delete(h.pending, name)
	fmt.Fprintf(h.w, "%s pass %d\n", name, p.pass)
	table.Write(h.w, p.columns, p.rows)
}
