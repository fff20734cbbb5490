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
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/stream"
	"github.com/rulego/fpcql/types"
)

// Result is one row as delivered on a ChannelHandler
type Result struct {
	Query   string
	Columns []string
	Row     types.Row
	At      time.Time
}

// Map returns the row keyed by column name
func (r Result) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Row))
	for i, v := range r.Row {
		if i < len(r.Columns) {
			out[r.Columns[i]] = v
		}
	}
	return out
}

// ChannelHandler delivers rows on a channel. A full channel drops the row rather than
// stalling the selection worker.
type ChannelHandler struct {
	rows    chan Result
	errs    chan error
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
	log     logger.Logger
}

var _ stream.Handler = (*ChannelHandler)(nil)

// NewChannelHandler creates a handler buffering size rows
func NewChannelHandler(size int) *ChannelHandler {
	if size <= 0 {
		size = 1
	}
	return &ChannelHandler{
		rows: make(chan Result, size),
		errs: make(chan error, 1),
		done: make(chan struct{}),
		log:  logger.GetDefault(),
	}
}

// Rows returns the result channel
func (h *ChannelHandler) Rows() <-chan Result { return h.rows }

// Errors returns the failure of the query, if any
func (h *ChannelHandler) Errors() <-chan error { return h.errs }

// Done is closed when the query stopped, normally or not
func (h *ChannelHandler) Done() <-chan struct{} { return h.done }

// Dropped counts rows lost to a full channel
func (h *ChannelHandler) Dropped() int64 { return h.dropped.Load() }

func (h *ChannelHandler) OnRow(q *stream.Query, row types.Row) {
	res := Result{Query: q.Name(), Columns: q.Columns(), Row: row, At: time.Now()}
	select {
	case h.rows <- res:
	default:
		h.dropped.Inc()
		h.log.Warn("Result channel is full, dropping row of query %s", q.Name())
	}
}

func (h *ChannelHandler) OnError(_ *stream.Query, err error) {
	select {
	case h.errs <- err:
	default:
	}
	h.close()
}

func (h *ChannelHandler) OnComplete(*stream.Query) {
	h.close()
}

func (h *ChannelHandler) close() {
	h.once.Do(func() { close(h.done) })
}

// FuncHandler adapts functions to stream.Handler; nil functions are skipped
type FuncHandler struct {
	Row      func(q *stream.Query, row types.Row)
	Error    func(q *stream.Query, err error)
	Complete func(q *stream.Query)
}

var _ stream.Handler = FuncHandler{}

func (f FuncHandler) OnRow(q *stream.Query, row types.Row) {
	if f.Row != nil {
		f.Row(q, row)
	}
}

func (f FuncHandler) OnError(q *stream.Query, err error) {
	if f.Error != nil {
		f.Error(q, err)
	}
}

func (f FuncHandler) OnComplete(q *stream.Query) {
	if f.Complete != nil {
		f.Complete(q)
	}
}

// Multi fans every notification out to several handlers in order
type Multi []stream.Handler

func (m Multi) OnRow(q *stream.Query, row types.Row) {
	for _, h := range m {
		h.OnRow(q, row)
	}
}

func (m Multi) OnError(q *stream.Query, err error) {
	for _, h := range m {
		h.OnError(q, err)
	}
}

func (m Multi) OnComplete(q *stream.Query) {
	for _, h := range m {
		h.OnComplete(q)
	}
}
