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
	"sync"

	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/utils/timex"
)

// Refresher turns a Refresh descriptor into ticks on its owner's event channel.
// Ticks are data events tagged with the tag given to Start; periodic ticks are dropped
// when the channel is full, the next one follows anyway.
type Refresher struct {
	desc  Refresh
	dev   device.Device
	sched timex.Scheduler

	mu    sync.Mutex
	timer timex.Timer
	task  device.Task
}

// NewRefresher creates an idle refresher
func NewRefresher(desc Refresh, dev device.Device, sched timex.Scheduler) *Refresher {
	if sched == nil {
		sched = timex.Default
	}
	return &Refresher{desc: desc, dev: dev, sched: sched}
}

// Start begins ticking; a NEVER refresh does nothing
func (r *Refresher) Start(ctx context.Context, tag device.Tag, out chan<- device.Event) error {
	if r.desc.IsNever() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil || r.task != nil {
		return nil
	}
	switch r.desc.Kind {
	case RefreshPeriodic:
		tick := device.Event{Kind: device.EventData, Tag: tag, Name: "refresh"}
		r.timer = r.sched.Every(r.desc.Period, func() {
			select {
			case out <- tick:
			case <-ctx.Done():
			default:
			}
		})
	case RefreshOnEvents:
		task, err := r.dev.Subscribe(ctx, r.desc.Events, tag, out)
		if err != nil {
			return err
		}
		r.task = task
	}
	return nil
}

// Stop cancels the timer or subscription
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.task != nil {
		r.task.Cancel()
		r.task = nil
	}
}

// Active reports whether the refresher is ticking
func (r *Refresher) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil || r.task != nil
}
