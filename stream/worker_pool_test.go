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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/fpcql/logger"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	p := NewWorkerPool(2, 8, logger.NewDiscardLogger())
	defer p.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			done++
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 20, done)
	assert.Equal(t, 8, p.Cap())
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	p := NewWorkerPool(1, 4, logger.NewDiscardLogger())
	defer p.Close()

	p.Submit(func() { panic("boom") })
	ran := make(chan struct{})
	p.Submit(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(waitFor):
		t.Fatal("worker did not survive the panic")
	}
	assert.Equal(t, int64(1), p.Panics())
}

func TestWorkerPoolOverflow(t *testing.T) {
	p := NewWorkerPool(1, 1, logger.NewDiscardLogger())
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func() {
		close(started)
		<-block
	})
	<-started
	p.Submit(func() {}) // fills the queue

	ran := make(chan struct{})
	p.Submit(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(waitFor):
		t.Fatal("overflowing task did not run")
	}
	assert.Equal(t, int64(1), p.Overflows())
	close(block)
}

func TestWorkerPoolClose(t *testing.T) {
	p := NewWorkerPool(0, 0, nil)
	assert.Equal(t, DefaultPoolSize, p.Cap())
	p.Close()
	p.Close()

	ran := false
	p.Submit(func() { ran = true })
	time.Sleep(10 * time.Millisecond)
	require.False(t, ran, "tasks submitted after close are dropped")
	assert.Zero(t, p.Len())
}
