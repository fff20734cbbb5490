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
	"fmt"
	"sync"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/types"
)

// GateHandler receives the decisions of a Gate. first is set on the decision made from
// the first gating sample.
type GateHandler interface {
	OnDecision(t condition.Truth, first bool)
	OnError(err error)
}

// Gate acquires the attributes of an EXECUTE IF condition and reports its truth value
// on every gating sample. After the first sample it keeps the condition live with the
// configured refresh.
type Gate struct {
	dev     device.Device
	conds   ExecutionConditions
	handler GateHandler
	opts    Options

	mu         sync.Mutex
	state      State
	run        *run
	tags       device.Tags
	refresher  *Refresher
	refreshTag device.Tag
	onceTag    device.Tag
	once       device.Task
	onceData   bool
}

// NewGate creates a stopped gate
func NewGate(dev device.Device, conds ExecutionConditions, handler GateHandler, opts Options) *Gate {
	opts = opts.withDefaults()
	return &Gate{
		dev:       dev,
		conds:     conds,
		handler:   handler,
		opts:      opts,
		refresher: NewRefresher(conds.Refresh, dev, opts.Scheduler),
	}
}

// Start issues the first one-shot acquisition of the gating attributes
func (g *Gate) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Stopped {
		return nil
	}
	g.run = newRun(g.opts.EventBuffer)
	g.state = Initializing
	if err := g.acquire(); err != nil {
		g.teardown()
		return err
	}
	go g.run.loop(g.handle)
	return nil
}

// Stop cancels the acquisition and the refresh
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Stopped {
		return
	}
	g.teardown()
}

// State returns Stopped, Initializing or Running
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) teardown() {
	cancelTask(g.once)
	g.once, g.onceTag = nil, 0
	g.refresher.Stop()
	if g.run != nil {
		g.run.cancel()
		g.run = nil
	}
	g.state = Stopped
}

func (g *Gate) acquire() error {
	tag := g.tags.Next()
	attrs := g.conds.Attributes()
	task, err := g.dev.AcquireOnce(g.run.ctx, attrs, tag, g.run.events)
	if err != nil {
		return fmt.Errorf("acquire gating attributes %v: %w", attrs, wrapAcquisition(err))
	}
	g.onceTag, g.once, g.onceData = tag, task, false
	return nil
}

func (g *Gate) handle(r *run, ev device.Event) {
	var failure error
	decided := false
	first := false
	var truth condition.Truth

	g.mu.Lock()
	if g.run != r {
		g.mu.Unlock()
		return
	}
	switch ev.Tag {
	case g.onceTag:
		switch ev.Kind {
		case device.EventData:
			g.onceData = true
			if g.state == Initializing {
				first = true
				g.state = Running
				g.refreshTag = g.tags.Next()
				if err := g.refresher.Start(r.ctx, g.refreshTag, r.events); err != nil {
					failure = fmt.Errorf("start gating refresh: %w", wrapAcquisition(err))
					break
				}
			}
			truth = g.conds.Cond.Test(ev.Sample, nil)
			decided = true
		case device.EventComplete:
			g.once, g.onceTag = nil, 0
			if !g.onceData {
				failure = fmt.Errorf("%w: gating acquisition ended without data", types.ErrPrematureCompletion)
			}
		case device.EventError:
			failure = ev.Err
		}
	case g.refreshTag:
		switch ev.Kind {
		case device.EventData:
			if g.once == nil {
				failure = g.acquire()
			}
		case device.EventComplete:
			failure = fmt.Errorf("%w: gating refresh ended", types.ErrPrematureCompletion)
		case device.EventError:
			failure = ev.Err
		}
	default:
		g.opts.Logger.Debug("gate: stale %s event tag %d", ev.Kind, ev.Tag)
	}
	if failure != nil {
		g.teardown()
	}
	g.mu.Unlock()

	if failure != nil {
		g.opts.Logger.Error("gate stopped: %v", failure)
		g.handler.OnError(failure)
		return
	}
	if decided {
		g.handler.OnDecision(truth, first)
	}
}
