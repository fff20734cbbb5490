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

	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/types"
)

// EventSampler acquires the select attributes once per device event notification.
// Acquisitions run concurrently; samples are delivered in arrival order, not event order.
type EventSampler struct {
	dev     device.Device
	desc    EventDriven
	attrs   []string
	handler Handler
	opts    Options

	mu          sync.Mutex
	state       State
	run         *run
	tags        device.Tags
	subTag      device.Tag
	sub         device.Task
	outstanding map[device.Tag]device.Task
}

var _ Sampler = (*EventSampler)(nil)

// NewEventSampler creates a stopped event sampler
func NewEventSampler(dev device.Device, desc EventDriven, attrs []string, handler Handler, opts Options) *EventSampler {
	return &EventSampler{
		dev:         dev,
		desc:        desc,
		attrs:       attrs,
		handler:     handler,
		opts:        opts.withDefaults(),
		outstanding: make(map[device.Tag]device.Task),
	}
}

// Start subscribes to the device events. On failure the sampler stays stopped.
func (s *EventSampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Stopped {
		return nil
	}
	r := newRun(s.opts.EventBuffer)
	tag := s.tags.Next()
	sub, err := s.dev.Subscribe(r.ctx, s.desc.Events, tag, r.events)
	if err != nil {
		r.cancel()
		return fmt.Errorf("subscribe %v: %w", s.desc.Events, wrapAcquisition(err))
	}
	s.run, s.subTag, s.sub = r, tag, sub
	s.state = Running
	s.opts.Logger.Debug("event sampler: running on %v", s.desc.Events)
	go r.loop(s.handle)
	return nil
}

// Stop unsubscribes and cancels outstanding acquisitions
func (s *EventSampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	s.teardown()
}

func (s *EventSampler) IsRunning() bool {
	return s.State() != Stopped
}

func (s *EventSampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outstanding returns the number of acquisitions in flight
func (s *EventSampler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

func (s *EventSampler) teardown() {
	cancelTask(s.sub)
	s.sub, s.subTag = nil, 0
	for tag, t := range s.outstanding {
		t.Cancel()
		delete(s.outstanding, tag)
	}
	if s.run != nil {
		s.run.cancel()
		s.run = nil
	}
	s.state = Stopped
}

func (s *EventSampler) handle(r *run, ev device.Event) {
	var deliver *types.Sample
	var failure error

	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	if ev.Tag == s.subTag {
		switch ev.Kind {
		case device.EventData:
			tag := s.tags.Next()
			task, err := s.dev.AcquireOnce(r.ctx, s.attrs, tag, r.events)
			if err != nil {
				failure = fmt.Errorf("acquire on event %s: %w", ev.Name, wrapAcquisition(err))
			} else {
				s.outstanding[tag] = task
			}
		case device.EventComplete:
			failure = fmt.Errorf("%w: event subscription ended", types.ErrPrematureCompletion)
		case device.EventError:
			failure = ev.Err
		}
	} else if _, ok := s.outstanding[ev.Tag]; ok {
		switch ev.Kind {
		case device.EventData:
			deliver = ev.Sample
		case device.EventComplete:
			delete(s.outstanding, ev.Tag)
		case device.EventError:
			failure = ev.Err
		}
	} else {
		s.opts.Logger.Debug("event sampler: stale %s event tag %d", ev.Kind, ev.Tag)
	}
	if failure != nil {
		s.teardown()
	}
	s.mu.Unlock()

	if failure != nil {
		s.opts.Logger.Error("event sampler stopped: %v", failure)
		s.handler.OnError(failure)
		return
	}
	if deliver != nil {
		s.handler.OnSample(deliver)
	}
}
