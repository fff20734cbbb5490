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

package window

import (
	"fmt"
	"sync"

	"github.com/rulego/fpcql/types"
)

// DefaultInitialCapacity is used when a buffer is created with a non positive capacity
const DefaultInitialCapacity = 64

// Buffer is the append-only, growable sample store of one query.
//
// Appends only hold the lock long enough to bump the length. When the backing array
// is full it is replaced by one of double capacity: the writer that triggers growth
// swaps in the new array, then copies the old prefix outside the lock while other
// writers keep appending past that prefix. Snapshots and further growth wait for the
// copy to finish.
type Buffer struct {
	// mu guards data, length and the flags below
	mu   sync.Mutex
	cond *sync.Cond
	data []*types.Sample
	// length is the number of defined entries in data
	length int
	// growing is set while a grow copies the old prefix
	growing bool
	// sorting is set while a snapshot sorts its frozen prefix in place
	sorting bool
	// rootOut is set while a root view is outstanding
	rootOut bool
	views   *arena
}

// NewBuffer creates an empty buffer
func NewBuffer(initialCapacity int) *Buffer {
	if initialCapacity <= 0 {
		initialCapacity = DefaultInitialCapacity
	}
	b := &Buffer{
		data: make([]*types.Sample, initialCapacity),
	}
	b.cond = sync.NewCond(&b.mu)
	b.views = newArena(b)
	return b
}

// Append adds a sample. Samples may arrive out of timestamp order; snapshots sort them.
func (b *Buffer) Append(s *types.Sample) {
	b.mu.Lock()
	for b.length == len(b.data) {
		if b.growing || b.sorting {
			b.cond.Wait()
			continue
		}
		old := b.data
		copyLen := b.length
		next := make([]*types.Sample, 2*len(old))
		b.data = next
		b.growing = true
		next[b.length] = s
		b.length++
		b.mu.Unlock()

		// entries [copyLen, ...) are written directly into next by concurrent appends
		copy(next[:copyLen], old[:copyLen])

		b.mu.Lock()
		b.growing = false
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	b.data[b.length] = s
	b.length++
	b.mu.Unlock()
}

// Len returns the number of buffered samples
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Cap returns the capacity of the current backing array
func (b *Buffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Snapshot freezes the buffered samples into a root view sorted by timestamp.
// It fails with ErrViewConflict while the previous root view is outstanding.
func (b *Buffer) Snapshot() (*View, error) {
	b.mu.Lock()
	if b.rootOut {
		b.mu.Unlock()
		return nil, types.ErrViewConflict
	}
	for b.growing {
		b.cond.Wait()
	}
	data := b.data
	n := b.length
	b.rootOut = true
	b.sorting = true
	b.mu.Unlock()

	// appends beyond n do not touch the frozen prefix
	insertionSort(data[:n])

	b.mu.Lock()
	b.sorting = false
	b.cond.Broadcast()
	b.mu.Unlock()

	return b.views.newRoot(data[:n]), nil
}

// Discard drops the n oldest samples of the last snapshot. It must not be called
// while a root view is outstanding.
func (b *Buffer) Discard(n int) error {
	if n <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rootOut {
		return fmt.Errorf("discard with outstanding view: %w", types.ErrViewConflict)
	}
	for b.growing || b.sorting {
		b.cond.Wait()
	}
	if n > b.length {
		n = b.length
	}
	copy(b.data, b.data[n:b.length])
	for i := b.length - n; i < b.length; i++ {
		b.data[i] = nil
	}
	b.length -= n
	return nil
}

func (b *Buffer) releaseRoot() {
	b.mu.Lock()
	b.rootOut = false
	b.mu.Unlock()
}

// insertionSort is a stable sort by timestamp. Arrival order is normally close to
// chronological so this is O(n) in practice, O(n^2) in the worst case.
func insertionSort(s []*types.Sample) {
	for i := 1; i < len(s); i++ {
		cur := s[i]
		j := i - 1
		for j >= 0 && s[j].Timestamp.After(cur.Timestamp) {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = cur
	}
}
