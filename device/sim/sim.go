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

// Package sim is an in-memory FPC. Attribute values come from generators, events are
// fired by hand or on a timer, and faults can be injected into live tasks.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/utils/timex"
)

// Generator produces the value of an attribute for the seq-th read of the device
type Generator func(seq int64) interface{}

// Constant always returns v
func Constant(v interface{}) Generator {
	return func(int64) interface{} { return v }
}

// Sequence cycles through values
func Sequence(values ...interface{}) Generator {
	var i atomic.Int64
	return func(int64) interface{} {
		if len(values) == 0 {
			return nil
		}
		n := i.Inc() - 1
		return values[n%int64(len(values))]
	}
}

// Request records a call made to the device
type Request struct {
	Kind   string
	Attrs  []string
	Period time.Duration
	Events []string
	Tag    device.Tag
}

// Option configures a simulated device
type Option func(*Device)

// WithLatency delays one-shot acquisitions
func WithLatency(d time.Duration) Option {
	return func(dev *Device) { dev.latency = d }
}

// WithScheduler sets the timer service used by FireEvery
func WithScheduler(s timex.Scheduler) Option {
	return func(dev *Device) { dev.scheduler = s }
}

// WithLogger sets the device logger
func WithLogger(l logger.Logger) Option {
	return func(dev *Device) { dev.log = l }
}

// Device is a simulated FPC
type Device struct {
	mu         sync.Mutex
	gens       map[string]Generator
	tasks      map[uint64]*task
	requests   []Request
	acquireErr error
	latency    time.Duration
	scheduler  timex.Scheduler
	log        logger.Logger
	reads      atomic.Int64
}

var _ device.Device = (*Device)(nil)

type task struct {
	*device.BaseTask
	ctx      context.Context
	out      chan<- device.Event
	events   map[string]struct{}
	fired    chan string
	fault    chan error
	finish   chan struct{}
	longLive bool
}

// New creates a simulated device without attributes
func New(opts ...Option) *Device {
	d := &Device{
		gens:      make(map[string]Generator),
		tasks:     make(map[uint64]*task),
		scheduler: timex.Default,
		log:       logger.GetDefault(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Set makes attr a constant
func (d *Device) Set(attr string, value interface{}) {
	d.SetGenerator(attr, Constant(value))
}

// SetGenerator sets the generator of attr
func (d *Device) SetGenerator(attr string, gen Generator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gens[attr] = gen
}

// FailAcquisitions makes every following request fail with err; nil clears the fault
func (d *Device) FailAcquisitions(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireErr = err
}

// InjectError makes every live task report err
func (d *Device) InjectError(err error) {
	for _, t := range d.live() {
		select {
		case t.fault <- err:
		default:
		}
	}
}

// CompleteTasks ends every live periodic acquisition and subscription as if the device
// had closed them.
func (d *Device) CompleteTasks() {
	for _, t := range d.live() {
		if !t.longLive {
			continue
		}
		select {
		case t.finish <- struct{}{}:
		default:
		}
	}
}

// Fire notifies the subscriptions listening to name
func (d *Device) Fire(name string) {
	for _, t := range d.live() {
		if _, ok := t.events[name]; !ok {
			continue
		}
		select {
		case t.fired <- name:
		default:
			d.log.Warn("sim: event %s dropped for task %d", name, t.ID())
		}
	}
}

// FireEvery fires name periodically until the returned timer is stopped
func (d *Device) FireEvery(name string, period time.Duration) timex.Timer {
	return d.scheduler.Every(period, func() { d.Fire(name) })
}

// Requests returns the calls made so far
func (d *Device) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Request, len(d.requests))
	copy(out, d.requests)
	return out
}

// LastPeriod returns the period of the most recent periodic acquisition
func (d *Device) LastPeriod() (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.requests) - 1; i >= 0; i-- {
		if d.requests[i].Kind == "periodic" {
			return d.requests[i].Period, true
		}
	}
	return 0, false
}

// Live returns the number of live tasks
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Reads returns the number of samples produced
func (d *Device) Reads() int64 { return d.reads.Load() }

func (d *Device) live() []*task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*task, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, t)
	}
	return out
}

func (d *Device) register(ctx context.Context, req Request, out chan<- device.Event, longLive bool) (*task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if d.acquireErr != nil {
		return nil, fmt.Errorf("%w: %s %v: %w", types.ErrDeviceAcquisition, req.Kind, req.Attrs, d.acquireErr)
	}
	t := &task{
		BaseTask: device.NewBaseTask(req.Tag),
		ctx:      ctx,
		out:      out,
		events:   make(map[string]struct{}, len(req.Events)),
		fired:    make(chan string, 64),
		fault:    make(chan error, 1),
		finish:   make(chan struct{}, 1),
		longLive: longLive,
	}
	for _, e := range req.Events {
		t.events[e] = struct{}{}
	}
	d.tasks[t.ID()] = t
	d.log.Debug("sim: %s task %d tag %d", req.Kind, t.ID(), req.Tag)
	return t, nil
}

func (d *Device) forget(t *task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tasks, t.ID())
}

func (d *Device) read(attrs []string) *types.Sample {
	seq := d.reads.Inc()
	d.mu.Lock()
	values := make(map[string]interface{}, len(attrs))
	for _, a := range attrs {
		if gen, ok := d.gens[a]; ok {
			values[a] = gen(seq)
		} else {
			values[a] = nil
		}
	}
	d.mu.Unlock()
	return types.NewSample(time.Now(), values)
}

// AcquireOnce implements device.Device
func (d *Device) AcquireOnce(ctx context.Context, attrs []string, tag device.Tag, out chan<- device.Event) (device.Task, error) {
	t, err := d.register(ctx, Request{Kind: "once", Attrs: attrs, Tag: tag}, out, false)
	if err != nil {
		return nil, err
	}
	go func() {
		defer d.forget(t)
		if d.latency > 0 {
			delay := time.NewTimer(d.latency)
			defer delay.Stop()
			select {
			case <-delay.C:
			case <-t.Done():
				device.Deliver(t.ctx, t.out, t.Complete())
				return
			case err := <-t.fault:
				device.Deliver(t.ctx, t.out, t.Failure(err))
				return
			case <-t.ctx.Done():
				return
			}
		}
		select {
		case err := <-t.fault:
			device.Deliver(t.ctx, t.out, t.Failure(err))
			return
		default:
		}
		if !device.Deliver(t.ctx, t.out, t.Data(d.read(attrs))) {
			return
		}
		device.Deliver(t.ctx, t.out, t.Complete())
	}()
	return t, nil
}

// AcquirePeriodic implements device.Device. The first sample is read immediately.
func (d *Device) AcquirePeriodic(ctx context.Context, attrs []string, period time.Duration, tag device.Tag, out chan<- device.Event) (device.Task, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive", types.ErrDeviceAcquisition)
	}
	t, err := d.register(ctx, Request{Kind: "periodic", Attrs: attrs, Period: period, Tag: tag}, out, true)
	if err != nil {
		return nil, err
	}
	go func() {
		defer d.forget(t)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		if !device.Deliver(t.ctx, t.out, t.Data(d.read(attrs))) {
			return
		}
		for {
			select {
			case <-t.Done():
				device.Deliver(t.ctx, t.out, t.Complete())
				return
			case <-t.finish:
				device.Deliver(t.ctx, t.out, t.Complete())
				return
			case err := <-t.fault:
				device.Deliver(t.ctx, t.out, t.Failure(err))
				return
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				if t.Cancelled() {
					continue
				}
				if !device.Deliver(t.ctx, t.out, t.Data(d.read(attrs))) {
					return
				}
			}
		}
	}()
	return t, nil
}

// Subscribe implements device.Device
func (d *Device) Subscribe(ctx context.Context, events []string, tag device.Tag, out chan<- device.Event) (device.Task, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no events to subscribe to", types.ErrDeviceAcquisition)
	}
	t, err := d.register(ctx, Request{Kind: "subscribe", Events: events, Tag: tag}, out, true)
	if err != nil {
		return nil, err
	}
	go func() {
		defer d.forget(t)
		for {
			select {
			case <-t.Done():
				device.Deliver(t.ctx, t.out, t.Complete())
				return
			case <-t.finish:
				device.Deliver(t.ctx, t.out, t.Complete())
				return
			case err := <-t.fault:
				device.Deliver(t.ctx, t.out, t.Failure(err))
				return
			case <-t.ctx.Done():
				return
			case name := <-t.fired:
				if !device.Deliver(t.ctx, t.out, t.Named(name)) {
					return
				}
			}
		}
	}()
	return t, nil
}
