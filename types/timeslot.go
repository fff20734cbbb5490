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

package types

import (
	"fmt"
	"time"
)

// TimeSlot is the closed time range [Start, End] covered by a time bucket.
// Buckets share their End (the newest sample) and grow towards the past.
type TimeSlot struct {
	Start time.Time
	End   time.Time
}

// NewTimeSlot creates the slot of length d ending at end
func NewTimeSlot(end time.Time, d time.Duration) TimeSlot {
	return TimeSlot{Start: end.Add(-d), End: end}
}

// Contains checks if t lies within the slot, both bounds included
func (ts TimeSlot) Contains(t time.Time) bool {
	return !t.Before(ts.Start) && !t.After(ts.End)
}

// Span returns End - Start
func (ts TimeSlot) Span() time.Duration {
	return ts.End.Sub(ts.Start)
}

// IsZero reports whether the slot was never set
func (ts TimeSlot) IsZero() bool {
	return ts.Start.IsZero() && ts.End.IsZero()
}

func (ts TimeSlot) String() string {
	return fmt.Sprintf("[%s, %s]", ts.Start.Format(time.RFC3339Nano), ts.End.Format(time.RFC3339Nano))
}
