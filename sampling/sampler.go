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

package sampling

import (
	"context"

	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/utils/timex"
)

// State of a sampler or gate
type State uint8

const (
	Stopped State = iota
	Initializing
	Sampling
	NewRate
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Initializing:
		return "initializing"
	case Sampling:
		return "sampling"
	case NewRate:
		return "new-rate"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Sampler turns a sampling descriptor into live device acquisitions
type Sampler interface {
	// Start is a no-op unless the sampler is stopped. A sampler may be started again
	// after Stop.
	Start() error
	Stop()
	IsRunning() bool
	State() State
}

// Handler receives what a sampler produces. OnError is called at most once per start,
// after the sampler already stopped itself.
type Handler interface {
	OnSample(s *types.Sample)
	OnError(err error)
}

// Funcs adapts two functions to Handler
type Funcs struct {
	Sample func(s *types.Sample)
	Error  func(err error)
}

func (f Funcs) OnSample(s *types.Sample) {
	if f.Sample != nil {
		f.Sample(s)
	}
}

func (f Funcs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Options are the collaborators shared by samplers and gates
type Options struct {
	Logger    logger.Logger
	Scheduler timex.Scheduler
	// EventBuffer is the capacity of the device event channel
	EventBuffer int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.GetDefault()
	}
	if o.Scheduler == nil {
		o.Scheduler = timex.Default
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 256
	}
	return o
}

// run is one start..stop cycle: its own context and event channel, so nothing from a
// previous cycle can leak into the next.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan device.Event
}

func newRun(size int) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{ctx: ctx, cancel: cancel, events: make(chan device.Event, size)}
}

// loop feeds events to handle until the run is cancelled
func (r *run) loop(handle func(*run, device.Event)) {
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev := <-r.events:
			handle(r, ev)
		}
	}
}

// cancelTask cancels t if set
func cancelTask(t device.Task) {
	if t != nil {
		t.Cancel()
	}
}
