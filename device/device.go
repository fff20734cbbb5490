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

// Package device defines the contract between the query engine and an FPC, the device
// abstraction samples are acquired from.
//
// Devices push typed events onto a channel supplied by the caller. Every request carries
// a Tag chosen by the caller; consumers drop events whose tag no longer matches an
// outstanding request, which is how late notifications after cancellation are ignored.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/rulego/fpcql/types"
)

// EventKind is the type of a device notification
type EventKind uint8

const (
	// EventData carries a sample (acquisitions) or an event name (subscriptions)
	EventData EventKind = iota
	// EventComplete is sent once when a task ends, including after Cancel
	EventComplete
	// EventError reports a failure of the task; no further events follow
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Tag identifies the request an event belongs to
type Tag uint64

// Event is a notification from a device task
type Event struct {
	Kind   EventKind
	Tag    Tag
	TaskID uint64
	// Sample is set on data events of acquisitions
	Sample *types.Sample
	// Name is the event name on data events of subscriptions
	Name string
	// Err is set on error events
	Err error
}

// Task is an outstanding device request
type Task interface {
	ID() uint64
	// Cancel is best effort: one in-flight event may still be delivered, followed by
	// EventComplete.
	Cancel()
}

// Device is an FPC. Events are never delivered synchronously from within a call; all
// delivery stops once ctx is done.
type Device interface {
	// AcquireOnce reads attrs once: one data event, then complete
	AcquireOnce(ctx context.Context, attrs []string, tag Tag, out chan<- Event) (Task, error)
	// AcquirePeriodic reads attrs every period until cancelled
	AcquirePeriodic(ctx context.Context, attrs []string, period time.Duration, tag Tag, out chan<- Event) (Task, error)
	// Subscribe delivers a data event each time one of the named events fires
	Subscribe(ctx context.Context, events []string, tag Tag, out chan<- Event) (Task, error)
}

// Tags hands out request tags, unique per generator
type Tags struct {
	n atomic.Uint64
}

// Next returns a fresh tag, never zero
func (t *Tags) Next() Tag {
	return Tag(t.n.Inc())
}

var taskIDs atomic.Uint64

// BaseTask implements Task for device implementations
type BaseTask struct {
	id   uint64
	tag  Tag
	once sync.Once
	done chan struct{}
}

var _ Task = (*BaseTask)(nil)

// NewBaseTask creates a live task for the request tagged tag
func NewBaseTask(tag Tag) *BaseTask {
	return &BaseTask{
		id:   taskIDs.Inc(),
		tag:  tag,
		done: make(chan struct{}),
	}
}

func (t *BaseTask) ID() uint64 { return t.id }

// Tag returns the request tag
func (t *BaseTask) Tag() Tag { return t.tag }

// Cancel closes Done; safe to call more than once
func (t *BaseTask) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the task is cancelled
func (t *BaseTask) Done() <-chan struct{} { return t.done }

// Cancelled reports whether Cancel was called
func (t *BaseTask) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Data builds a data event carrying s
func (t *BaseTask) Data(s *types.Sample) Event {
	return Event{Kind: EventData, Tag: t.tag, TaskID: t.id, Sample: s}
}

// Named builds a data event for a fired subscription event
func (t *BaseTask) Named(name string) Event {
	return Event{Kind: EventData, Tag: t.tag, TaskID: t.id, Name: name}
}

// Complete builds the completion event
func (t *BaseTask) Complete() Event {
	return Event{Kind: EventComplete, Tag: t.tag, TaskID: t.id}
}

// Failure builds an error event wrapping err as a device error
func (t *BaseTask) Failure(err error) Event {
	return Event{Kind: EventError, Tag: t.tag, TaskID: t.id, Err: fmt.Errorf("%w: %w", types.ErrDeviceError, err)}
}

// Deliver sends ev unless ctx is done first. It reports whether the event was sent.
func Deliver(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
