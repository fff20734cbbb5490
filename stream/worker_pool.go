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

	"go.uber.org/atomic"

	"github.com/rulego/fpcql/logger"
)

const (
	// DefaultWorkerCount 默认选择任务工作协程数
	DefaultWorkerCount = 4
	// DefaultPoolSize 默认选择任务队列大小
	DefaultPoolSize = 128
)

// WorkerPool runs selection passes for all queries of an engine.
// A full queue degrades to running the task on its own goroutine.
type WorkerPool struct {
	tasks    chan func()
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	log      logger.Logger
	overflow atomic.Int64
	panics   atomic.Int64
}

// NewWorkerPool starts workerCount workers reading a queue of poolSize tasks
func NewWorkerPool(workerCount, poolSize int, log logger.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if log == nil {
		log = logger.GetDefault()
	}
	p := &WorkerPool{
		tasks: make(chan func(), poolSize),
		done:  make(chan struct{}),
		log:   log,
	}
	p.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go p.work(i)
	}
	return p
}

func (p *WorkerPool) work(workerID int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.execute(workerID, task)
		case <-p.done:
			return
		}
	}
}

// execute runs one task; a panic is logged and does not take the worker down
func (p *WorkerPool) execute(workerID int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Inc()
			p.log.Error("Select worker %d panic recovered: %v", workerID, r)
		}
	}()
	task()
}

// Submit queues a task without blocking
func (p *WorkerPool) Submit(task func()) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.tasks <- task:
	default:
		// queue is full, run it directly
		p.overflow.Inc()
		go p.execute(-1, task)
	}
}

// Close stops the workers; queued tasks that did not start are dropped
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// Len is the number of queued tasks
func (p *WorkerPool) Len() int { return len(p.tasks) }

// Cap is the queue capacity
func (p *WorkerPool) Cap() int { return cap(p.tasks) }

// Overflows counts tasks run outside the pool because the queue was full
func (p *WorkerPool) Overflows() int64 { return p.overflow.Load() }

// Panics counts recovered task panics
func (p *WorkerPool) Panics() int64 { return p.panics.Load() }
