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

package stream

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/operator"
	"github.com/rulego/fpcql/sampling"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/utils/timex"
	"github.com/rulego/fpcql/window"
)

// QueryState is the lifecycle of a query.
//
//	Ready -> Initializing -> Running <-> Paused -> Stopped
//
// Stopped is terminal.
type QueryState int32

const (
	Ready QueryState = iota
	Initializing
	Running
	Paused
	Stopped
)

func (s QueryState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// maxTriggered is one pass running plus one queued
const maxTriggered = 2

// Handler receives the output of a query. OnRow is called from selection workers, one
// pass at a time. Exactly one of OnError and OnComplete is called once the query stops,
// and nothing after it. From OnRow use Query.StopAsync; Query.Stop would wait for the
// row being delivered.
type Handler interface {
	OnRow(q *Query, row types.Row)
	OnError(q *Query, err error)
	OnComplete(q *Query)
}

// Options are the collaborators of a query
type Options struct {
	Device device.Device
	// Pool runs selection passes; a private single worker pool is used when nil
	Pool            *WorkerPool
	Scheduler       timex.Scheduler
	Logger          logger.Logger
	Metrics         *Metrics
	InitialCapacity int
	EventBuffer     int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.GetDefault()
	}
	if o.Scheduler == nil {
		o.Scheduler = timex.Default
	}
	if o.InitialCapacity <= 0 {
		o.InitialCapacity = window.DefaultInitialCapacity
	}
	return o
}

// Query is a running continuous query: it samples the device, buffers admitted samples
// and evaluates its select on every EVERY trigger.
type Query struct {
	def     Definition
	handler Handler
	opts    Options
	log     logger.Logger
	sched   timex.Scheduler
	pool    *WorkerPool
	ownPool bool

	buffer  *window.Buffer
	sampler sampling.Sampler
	gate    *sampling.Gate

	// mu guards transitions and the timers
	mu        sync.Mutex
	state     atomic.Int32
	every     timex.Timer
	terminate timex.Timer
	budget    time.Duration
	armedAt   time.Time
	err       error
	done      chan struct{}

	remaining atomic.Int64
	triggered atomic.Int32
	// epoch invalidates selection tasks submitted before a pause or stop
	epoch     atomic.Uint64
	trigMu    sync.Mutex
	passMu    sync.Mutex
	deliverMu sync.Mutex

	stats   *StatsCollector
	metrics queryMetrics
}

// NewQuery binds a definition to a device. The query is Ready until Start.
func NewQuery(def Definition, handler Handler, opts Options) (*Query, error) {
	if def.Name == "" {
		def.Name = "query"
	}
	if def.Every.IsZero() {
		def.Every = types.Count(1)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: query %q has no handler", types.ErrInvalidConfig, def.Name)
	}
	if opts.Device == nil {
		return nil, fmt.Errorf("%w: %q", errNoDevice, def.Name)
	}
	opts = opts.withDefaults()
	q := &Query{
		def:     def,
		handler: handler,
		opts:    opts,
		log:     opts.Logger,
		sched:   opts.Scheduler,
		pool:    opts.Pool,
		buffer:  window.NewBuffer(opts.InitialCapacity),
		done:    make(chan struct{}),
		stats:   NewStatsCollector(),
		metrics: opts.Metrics.forQuery(def.Name),
	}
	if q.pool == nil {
		q.pool = NewWorkerPool(1, maxTriggered, opts.Logger)
		q.ownPool = true
	}
	sopts := sampling.Options{Logger: opts.Logger, Scheduler: opts.Scheduler, EventBuffer: opts.EventBuffer}
	attrs := def.Attributes()
	h := sampling.Funcs{Sample: q.ingest, Error: q.samplerFailed}
	if def.Rate != nil {
		q.sampler = sampling.NewAdaptiveSampler(opts.Device, *def.Rate, attrs, h, sopts)
	} else {
		q.sampler = sampling.NewEventSampler(opts.Device, *def.Events, attrs, h, sopts)
	}
	if def.Gate != nil && !def.Gate.IsStatic() {
		q.gate = sampling.NewGate(opts.Device, *def.Gate, gateHandler{q}, sopts)
	}
	if def.Every.IsCount() {
		q.remaining.Store(int64(def.Every.Samples()))
	}
	return q, nil
}

// Name returns the query name
func (q *Query) Name() string { return q.def.Name }

// Columns returns the output column names, same order as the row values. Unnamed
// fields are named by their expression.
func (q *Query) Columns() []string {
	sel := q.def.Select
	if len(sel.Names) == len(sel.Fields) {
		return sel.Names
	}
	names := make([]string, len(sel.Fields))
	for i, f := range sel.Fields {
		names[i] = f.String()
	}
	return names
}

// State returns the current state
func (q *Query) State() QueryState { return QueryState(q.state.Load()) }

// Done is closed once the query stopped
func (q *Query) Done() <-chan struct{} { return q.done }

// Err returns the failure that stopped the query, nil while running or after a normal stop
func (q *Query) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *Query) setState(next QueryState) {
	prev := QueryState(q.state.Swap(int32(next)))
	if prev != next {
		q.log.Debug("query %s: %s -> %s", q.def.Name, prev, next)
	}
}

// Start starts the query. A query without EXECUTE IF, or with one that does not depend
// on any attribute, is decided immediately; otherwise it waits for the first gating
// sample in Initializing. A stopped query cannot be started again.
func (q *Query) Start() error {
	q.mu.Lock()
	switch q.State() {
	case Ready:
	case Stopped:
		q.mu.Unlock()
		return types.ErrQueryStopped
	default:
		q.mu.Unlock()
		return nil
	}
	if t := q.def.TerminateAfter; t.IsDuration() {
		q.budget = t.Period()
		q.armTerminate()
	}
	var err error
	switch {
	case q.gate != nil:
		q.setState(Initializing)
		err = q.gate.Start()
	case q.def.Gate == nil || q.def.Gate.Decide() == condition.True:
		err = q.resumeLocked()
	default:
		q.log.Info("query %s: execution condition %s is not TRUE, parked", q.def.Name, q.def.Gate.Cond)
		q.pauseLocked()
	}
	if err != nil {
		q.teardownLocked()
		q.setState(Stopped)
		q.err = err
		close(q.done)
		q.mu.Unlock()
		return fmt.Errorf("start query %s: %w", q.def.Name, err)
	}
	q.mu.Unlock()
	return nil
}

// Stop stops the query and waits for a row being delivered. It is idempotent;
// OnComplete is called on the first stop of a started query. Stop must not be called
// from Handler.OnRow, use StopAsync there.
func (q *Query) Stop() {
	q.terminateWith(nil)
}

// StopAsync stops the query without waiting for a row being delivered. No further row is
// delivered; OnComplete follows once the current OnRow returned.
func (q *Query) StopAsync() {
	if q.shutdown(nil) {
		go q.notify(nil)
	}
}

// resumeLocked starts the sampler and the timers; callers hold mu
func (q *Query) resumeLocked() error {
	// triggers raised around the pause belong to no pass
	q.cancelPending()
	if err := q.sampler.Start(); err != nil {
		return err
	}
	if q.def.Every.IsDuration() && q.every == nil {
		q.every = q.sched.Every(q.def.Every.Period(), q.trigger)
	}
	q.armTerminate()
	q.setState(Running)
	return nil
}

// pauseLocked stops sampling and drops the pending selection; a running pass finishes
func (q *Query) pauseLocked() {
	q.sampler.Stop()
	q.stopEvery()
	q.cancelPending()
	q.disarmTerminate()
	q.setState(Paused)
}

func (q *Query) teardownLocked() {
	if q.gate != nil {
		q.gate.Stop()
	}
	q.sampler.Stop()
	q.stopEvery()
	q.cancelPending()
	if q.terminate != nil {
		q.terminate.Stop()
		q.terminate = nil
	}
	if q.ownPool {
		// may run on one of the pool workers
		go q.pool.Close()
	}
}

func (q *Query) stopEvery() {
	if q.every != nil {
		q.every.Stop()
		q.every = nil
	}
}

// armTerminate schedules the remaining TERMINATE AFTER budget
func (q *Query) armTerminate() {
	if !q.def.TerminateAfter.IsDuration() || q.terminate != nil {
		return
	}
	q.armedAt = q.sched.Now()
	q.terminate = q.sched.After(q.budget, func() {
		q.log.Info("query %s: terminated after %s", q.def.Name, q.def.TerminateAfter)
		q.terminateWith(nil)
	})
}

// disarmTerminate stops the TERMINATE AFTER timer keeping what is left of the budget
func (q *Query) disarmTerminate() {
	if q.terminate == nil {
		return
	}
	q.terminate.Stop()
	q.terminate = nil
	q.budget -= q.sched.Now().Sub(q.armedAt)
	if q.budget < 0 {
		q.budget = 0
	}
}

// cancelPending invalidates submitted selection tasks that did not start yet
func (q *Query) cancelPending() {
	q.trigMu.Lock()
	q.epoch.Inc()
	q.triggered.Store(0)
	q.trigMu.Unlock()
}

// shutdown moves to Stopped. It reports whether the caller should notify the handler:
// only the first transition of a started query does.
func (q *Query) shutdown(err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := q.State()
	if prev == Stopped {
		return false
	}
	q.teardownLocked()
	q.setState(Stopped)
	q.err = err
	close(q.done)
	if err != nil {
		q.stats.IncrementError()
		inc(q.metrics.errors)
	}
	return prev != Ready
}

func (q *Query) terminateWith(err error) {
	if q.shutdown(err) {
		q.notify(err)
		return
	}
	q.deliverMu.Lock()
	q.deliverMu.Unlock()
}

// notify sends the final notification after a row being delivered completed
func (q *Query) notify(err error) {
	q.deliverMu.Lock()
	q.deliverMu.Unlock()
	if err != nil {
		q.log.Error("query %s stopped: %v", q.def.Name, err)
		q.handler.OnError(q, err)
		return
	}
	q.log.Debug("query %s completed after %d passes", q.def.Name, q.stats.GetPassCount())
	q.handler.OnComplete(q)
}

func (q *Query) samplerFailed(err error) {
	q.terminateWith(fmt.Errorf("sampling: %w", err))
}

type gateHandler struct{ q *Query }

func (g gateHandler) OnDecision(t condition.Truth, first bool) {
	g.q.decide(t, first)
}

func (g gateHandler) OnError(err error) {
	g.q.terminateWith(fmt.Errorf("execution condition: %w", err))
}

// decide applies a gating decision: only TRUE runs the query
func (q *Query) decide(t condition.Truth, first bool) {
	q.mu.Lock()
	st := q.State()
	if st == Ready || st == Stopped {
		q.mu.Unlock()
		return
	}
	if first {
		q.log.Debug("query %s: first gating decision %s", q.def.Name, t)
	}
	var err error
	if t == condition.True {
		if st != Running {
			err = q.resumeLocked()
		}
	} else if st != Paused {
		q.pauseLocked()
	}
	q.mu.Unlock()
	if err != nil {
		q.terminateWith(fmt.Errorf("resume: %w", err))
	}
}

// ingest is the sampler's sample path. It does not take mu.
func (q *Query) ingest(s *types.Sample) {
	q.stats.IncrementInput()
	if q.State() != Running {
		q.stats.IncrementDropped()
		inc(q.metrics.dropped)
		return
	}
	if q.def.Where != nil && q.def.Where.Test(s, nil) != condition.True {
		q.stats.IncrementFiltered()
		inc(q.metrics.filtered)
		return
	}
	q.buffer.Append(s)
	q.stats.IncrementAdmitted()
	inc(q.metrics.admitted)
	q.metrics.setBufferLength(q.buffer.Len())
	if q.def.Every.IsCount() {
		q.countDown()
	}
}

// countDown triggers a pass every n admitted samples
func (q *Query) countDown() {
	n := int64(q.def.Every.Samples())
	for {
		r := q.remaining.Load()
		next, fire := r-1, false
		if next <= 0 {
			next, fire = n, true
		}
		if q.remaining.CompareAndSwap(r, next) {
			if fire {
				q.trigger()
			}
			return
		}
	}
}

// trigger requests a selection pass. Only the 0 -> 1 transition submits a task; further
// triggers while a pass runs collapse into one queued pass.
func (q *Query) trigger() {
	if q.State() != Running {
		return
	}
	q.trigMu.Lock()
	epoch := q.epoch.Load()
	n := q.triggered.Load()
	if n < maxTriggered {
		q.triggered.Store(n + 1)
	}
	q.trigMu.Unlock()
	if n == 0 {
		q.pool.Submit(func() { q.runPasses(epoch) })
	}
}

func (q *Query) runPasses(epoch uint64) {
	for {
		if q.epoch.Load() != epoch {
			return
		}
		if q.State() != Running {
			q.drop(epoch)
			return
		}
		q.pass()
		if !q.settle(epoch) {
			return
		}
	}
}

// drop forgets the triggers of epoch; the next trigger submits a new task
func (q *Query) drop(epoch uint64) {
	q.trigMu.Lock()
	defer q.trigMu.Unlock()
	if q.epoch.Load() == epoch {
		q.triggered.Store(0)
	}
}

// settle consumes one trigger and reports whether another pass is queued
func (q *Query) settle(epoch uint64) bool {
	q.trigMu.Lock()
	defer q.trigMu.Unlock()
	if q.epoch.Load() != epoch {
		return false
	}
	for {
		n := q.triggered.Load()
		if n <= 0 {
			return false
		}
		if q.triggered.CompareAndSwap(n, n-1) {
			return n > 1
		}
	}
}

// pass is one selection: snapshot, evaluate, release, retain, deliver
func (q *Query) pass() {
	q.passMu.Lock()
	defer q.passMu.Unlock()
	if q.State() == Stopped {
		return
	}
	start := time.Now()
	root, err := q.buffer.Snapshot()
	if err != nil {
		q.terminateWith(fmt.Errorf("snapshot: %w", err))
		return
	}
	rows, err := q.def.Select.Evaluate(root)
	length, keep := root.Length(), q.retained(root)
	if rerr := root.Release(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		q.terminateWith(fmt.Errorf("selection pass: %w", err))
		return
	}
	if drop := length - keep; drop > 0 {
		if err := q.buffer.Discard(drop); err != nil {
			q.terminateWith(fmt.Errorf("discard %d samples: %w", drop, err))
			return
		}
	}
	q.metrics.setBufferLength(q.buffer.Len())

	q.deliver(rows)
	n := q.stats.IncrementPass()
	inc(q.metrics.passes)
	q.metrics.observePass(time.Since(start).Seconds())

	if t := q.def.TerminateAfter; t.IsCount() && n >= int64(t.Samples()) {
		q.log.Info("query %s: terminated after %d selections", q.def.Name, n)
		q.terminateWith(nil)
	}
}

func (q *Query) deliver(rows []types.Row) {
	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()
	for _, row := range rows {
		if q.State() == Stopped {
			return
		}
		q.handler.OnRow(q, row)
		q.stats.AddOutput(1)
		q.metrics.addRows(1)
	}
}

// retained is how many of the newest samples a later pass may still select
func (q *Query) retained(root *window.View) int {
	sel := q.def.Select
	var keep types.WindowSize
	switch {
	case sel.GroupBy.Period > 0:
		keep = types.Duration(sel.GroupBy.Horizon())
	case len(sel.GroupBy.Keys) > 0:
		keep = q.def.History
	case sel.Upto.IsZero():
		keep = operator.DefaultUpto
	default:
		keep = sel.Upto
	}
	switch {
	case keep.IsCount():
		return min(keep.Samples(), root.Length())
	case keep.IsDuration():
		return root.RecordsIn(keep.Period())
	default:
		return root.Length()
	}
}
