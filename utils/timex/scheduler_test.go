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

package timex

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAfter(t *testing.T) {
	fired := make(chan struct{})
	Default.After(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	var count int32
	timer := Default.After(50*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	assert.True(t, timer.Stop())
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestDefaultEvery(t *testing.T) {
	var count int32
	timer := Default.Every(10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	require.Eventually(t, func() bool { return atomic.LoadInt32(&count) >= 3 }, time.Second, 5*time.Millisecond)

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	stopped := atomic.LoadInt32(&count)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&count))
}

func TestManualScheduler(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start)
	var order []string

	m.After(30*time.Millisecond, func() { order = append(order, "after30") })
	tick := m.Every(20*time.Millisecond, func() { order = append(order, "tick") })
	cancelled := m.After(10*time.Millisecond, func() { order = append(order, "cancelled") })
	assert.True(t, cancelled.Stop())
	assert.Equal(t, 2, m.Pending())

	m.Advance(45 * time.Millisecond)
	assert.Equal(t, []string{"tick", "after30", "tick"}, order)
	assert.Equal(t, start.Add(45*time.Millisecond), m.Now())
	assert.Equal(t, 1, m.Pending())

	assert.True(t, tick.Stop())
	m.Advance(time.Second)
	assert.Len(t, order, 3)
}

func TestManualReentrantSchedule(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var fired []time.Duration
	var arm func()
	arm = func() {
		m.After(10*time.Millisecond, func() {
			fired = append(fired, m.Now().Sub(time.Unix(0, 0)))
			if len(fired) < 3 {
				arm()
			}
		})
	}
	arm()
	m.Advance(100 * time.Millisecond)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, fired)
}
