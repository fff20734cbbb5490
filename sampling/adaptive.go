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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/types"
)

// AdaptiveSampler samples the select attributes at the rate picked by an IF-EVERY chain.
//
//	Stopped -> Initializing -> Sampling <-> NewRate
//
// A rate change cancels the periodic acquisition; its completion restarts sampling at
// the new rate.
type AdaptiveSampler struct {
	dev     device.Device
	chain   RateChain
	attrs   []string
	handler Handler
	opts    Options

	mu        sync.Mutex
	state     State
	run       *run
	tags      device.Tags
	refresher *Refresher

	rateTag    device.Tag
	rateTask   device.Task
	rateData   bool
	refreshTag device.Tag

	sampleTag   device.Tag
	sampleTask  device.Task
	drainTag    device.Tag
	rate        time.Duration
	pendingRate time.Duration
}

var _ Sampler = (*AdaptiveSampler)(nil)

// NewAdaptiveSampler creates a stopped sampler acquiring attrs
func NewAdaptiveSampler(dev device.Device, chain RateChain, attrs []string, handler Handler, opts Options) *AdaptiveSampler {
	opts = opts.withDefaults()
	return &AdaptiveSampler{
		dev:       dev,
		chain:     chain,
		attrs:     attrs,
		handler:   handler,
		opts:      opts,
		refresher: NewRefresher(chain.Refresh, dev, opts.Scheduler),
	}
}

// Start implements Sampler
func (s *AdaptiveSampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Stopped {
		return nil
	}
	r := newRun(s.opts.EventBuffer)
	s.run = r
	s.rate, s.pendingRate = 0, 0
	s.sampleTag, s.drainTag, s.rateTag = 0, 0, 0

	rateAttrs := s.chain.Attributes()
	if len(rateAttrs) == 0 {
		// nothing to acquire: the chain decides once
		s.setState(Sampling)
		if rate, ok := s.chain.Select(nil); ok {
			if err := s.startSampling(rate); err != nil {
				s.teardown()
				return err
			}
		}
	} else {
		s.setState(Initializing)
		if err := s.acquireRate(rateAttrs); err != nil {
			s.teardown()
			return err
		}
	}
	go r.loop(s.handle)
	return nil
}

// Stop implements Sampler
func (s *AdaptiveSampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	s.teardown()
}

func (s *AdaptiveSampler) IsRunning() bool {
	return s.State() != Stopped
}

func (s *AdaptiveSampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Rate returns the rate currently sampled at, 0 while suspended
func (s *AdaptiveSampler) Rate() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampleTask == nil {
		return 0
	}
	return s.rate
}

func (s *AdaptiveSampler) setState(next State) {
	if s.state != next {
		s.opts.Logger.Debug("adaptive sampler: %s -> %s", s.state, next)
	}
	s.state = next
}

// teardown cancels everything; callers hold mu
func (s *AdaptiveSampler) teardown() {
	cancelTask(s.rateTask)
	cancelTask(s.sampleTask)
	s.rateTask, s.sampleTask = nil, nil
	s.refresher.Stop()
	if s.run != nil {
		s.run.cancel()
		s.run = nil
	}
	s.setState(Stopped)
}

func (s *AdaptiveSampler) acquireRate(attrs []string) error {
	tag := s.tags.Next()
	task, err := s.dev.AcquireOnce(s.run.ctx, attrs, tag, s.run.events)
	if err != nil {
		return fmt.Errorf("acquire rate attributes %v: %w", attrs, wrapAcquisition(err))
	}
	s.rateTag, s.rateTask, s.rateData = tag, task, false
	return nil
}

func (s *AdaptiveSampler) startSampling(rate time.Duration) error {
	tag := s.tags.Next()
	task, err := s.dev.AcquirePeriodic(s.run.ctx, s.attrs, rate, tag, s.run.events)
	if err != nil {
		return fmt.Errorf("sample %v every %s: %w", s.attrs, rate, wrapAcquisition(err))
	}
	s.sampleTag, s.sampleTask, s.rate = tag, task, rate
	s.opts.Logger.Debug("adaptive sampler: sampling every %s", rate)
	return nil
}

// cancelSampling cancels the periodic acquisition; its completion is expected
func (s *AdaptiveSampler) cancelSampling() {
	if s.sampleTask == nil {
		return
	}
	s.drainTag = s.sampleTag
	s.sampleTask.Cancel()
	s.sampleTask, s.sampleTag = nil, 0
}

func (s *AdaptiveSampler) handle(r *run, ev device.Event) {
	var deliver *types.Sample
	var failure error

	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	switch ev.Tag {
	case s.sampleTag:
		switch ev.Kind {
		case device.EventData:
			deliver = ev.Sample
		case device.EventComplete:
			failure = fmt.Errorf("%w: periodic acquisition ended", types.ErrPrematureCompletion)
		case device.EventError:
			failure = ev.Err
		}
	case s.drainTag:
		switch ev.Kind {
		case device.EventComplete:
			s.drainTag = 0
			if s.state == NewRate {
				s.setState(Sampling)
				if s.pendingRate > 0 {
					failure = s.startSampling(s.pendingRate)
				}
			}
		case device.EventError:
			failure = ev.Err
		}
	case s.rateTag:
		failure = s.handleRate(ev)
	case s.refreshTag:
		switch ev.Kind {
		case device.EventData:
			if s.rateTask == nil {
				failure = s.acquireRate(s.chain.Attributes())
			}
		case device.EventComplete:
			failure = fmt.Errorf("%w: rate refresh ended", types.ErrPrematureCompletion)
		case device.EventError:
			failure = ev.Err
		}
	default:
		s.opts.Logger.Debug("adaptive sampler: stale %s event tag %d", ev.Kind, ev.Tag)
	}
	if failure != nil {
		s.teardown()
	}
	s.mu.Unlock()

	if failure != nil {
		s.opts.Logger.Error("adaptive sampler stopped: %v", failure)
		s.handler.OnError(failure)
		return
	}
	if deliver != nil {
		s.handler.OnSample(deliver)
	}
}

// handleRate processes events of the one-shot rate acquisition; callers hold mu
func (s *AdaptiveSampler) handleRate(ev device.Event) error {
	switch ev.Kind {
	case device.EventError:
		return ev.Err
	case device.EventComplete:
		s.rateTask, s.rateTag = nil, 0
		if !s.rateData {
			return fmt.Errorf("%w: rate acquisition ended without data", types.ErrPrematureCompletion)
		}
		return nil
	}
	s.rateData = true
	rate, ok := s.chain.Select(ev.Sample)

	switch s.state {
	case Initializing:
		s.setState(Sampling)
		s.refreshTag = s.tags.Next()
		if err := s.refresher.Start(s.run.ctx, s.refreshTag, s.run.events); err != nil {
			return fmt.Errorf("start rate refresh: %w", wrapAcquisition(err))
		}
		if ok {
			return s.startSampling(rate)
		}
	case Sampling:
		switch {
		case !ok:
			if !s.chain.holds() {
				s.cancelSampling()
			}
		case s.sampleTask == nil:
			if s.drainTag != 0 {
				// suspended and still draining: restart once the old task completed
				s.pendingRate = rate
				s.setState(NewRate)
				return nil
			}
			return s.startSampling(rate)
		case rate != s.rate:
			s.pendingRate = rate
			s.cancelSampling()
			s.setState(NewRate)
		}
	case NewRate:
		if ok {
			s.pendingRate = rate
		} else if !s.chain.holds() {
			s.pendingRate = 0
		}
	}
	return nil
}

// wrapAcquisition marks err as an acquisition failure unless it already is one
func wrapAcquisition(err error) error {
	if err == nil || errors.Is(err, types.ErrDeviceAcquisition) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrDeviceAcquisition, err)
}
