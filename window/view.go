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
	"sort"
	"sync"
	"time"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/types"
)

// Ensure View can be aggregated over by expressions
var _ condition.Window = (*View)(nil)

// node is the arena entry of a view. Parent links are indices, never pointers.
type node struct {
	parent   int
	children int
	gen      uint32
	live     bool
}

// arena holds the view tree of one buffer
type arena struct {
	mu    sync.Mutex
	buf   *Buffer
	nodes []node
	free  []int
}

func newArena(b *Buffer) *arena {
	return &arena{buf: b}
}

func (a *arena) alloc(parent int) (int, uint32) {
	var h int
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.nodes = append(a.nodes, node{})
		h = len(a.nodes) - 1
	}
	nd := &a.nodes[h]
	nd.parent = parent
	nd.children = 0
	nd.live = true
	return h, nd.gen
}

func (a *arena) newRoot(data []*types.Sample) *View {
	a.mu.Lock()
	h, gen := a.alloc(-1)
	a.mu.Unlock()
	return &View{arena: a, handle: h, gen: gen, data: data, lo: 0, hi: len(data)}
}

// child registers a new child of parent; it fails if parent was released
func (a *arena) child(parent *View, data []*types.Sample, lo, hi int) (*View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.validLocked(parent) {
		return nil, types.ErrViewReleased
	}
	h, gen := a.alloc(parent.handle)
	a.nodes[parent.handle].children++
	return &View{arena: a, handle: h, gen: gen, data: data, lo: lo, hi: hi}, nil
}

func (a *arena) validLocked(v *View) bool {
	nd := a.nodes[v.handle]
	return nd.live && nd.gen == v.gen
}

func (a *arena) release(v *View) error {
	a.mu.Lock()
	if !a.validLocked(v) {
		a.mu.Unlock()
		return types.ErrViewReleased
	}
	nd := &a.nodes[v.handle]
	if nd.children > 0 {
		n := nd.children
		a.mu.Unlock()
		return fmt.Errorf("%w: %d live", types.ErrUnreleasedChildren, n)
	}
	nd.live = false
	nd.gen++
	parent := nd.parent
	if parent >= 0 {
		a.nodes[parent].children--
	}
	a.free = append(a.free, v.handle)
	a.mu.Unlock()

	if parent < 0 {
		a.buf.releaseRoot()
	}
	return nil
}

func (a *arena) liveChildren(v *View) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.validLocked(v) {
		return 0
	}
	return a.nodes[v.handle].children
}

// View is an immutable handle over the chronologically sorted range [lo, hi) of a
// frozen sample array. Index 0 of Get is the newest sample.
type View struct {
	arena  *arena
	handle int
	gen    uint32
	data   []*types.Sample
	lo, hi int
	// slot is set on time bucket views
	slot types.TimeSlot
	// key is set on key group views
	key []interface{}
}

// Length returns the number of samples in the view
func (v *View) Length() int { return v.hi - v.lo }

// Get returns the sample i positions back from the newest
func (v *View) Get(i int) (*types.Sample, error) {
	if i < 0 || i >= v.Length() {
		return nil, fmt.Errorf("%w: %d of %d", types.ErrIndexOutOfRange, i, v.Length())
	}
	return v.data[v.hi-1-i], nil
}

// Newest returns the newest sample or nil for an empty view
func (v *View) Newest() *types.Sample {
	if v.Length() == 0 {
		return nil
	}
	return v.data[v.hi-1]
}

// Oldest returns the oldest sample or nil for an empty view
func (v *View) Oldest() *types.Sample {
	if v.Length() == 0 {
		return nil
	}
	return v.data[v.lo]
}

// Scan visits the samples oldest to newest
func (v *View) Scan(visit func(*types.Sample)) {
	for i := v.lo; i < v.hi; i++ {
		visit(v.data[i])
	}
}

// ForEach visits the samples oldest to newest for which pred is TRUE.
// A nil predicate admits every sample.
func (v *View) ForEach(visit func(*types.Sample), pred condition.Condition) {
	for i := v.lo; i < v.hi; i++ {
		s := v.data[i]
		if pred != nil && pred.Test(s, v) != condition.True {
			continue
		}
		visit(s)
	}
}

// Slot returns the time range of a time bucket view
func (v *View) Slot() types.TimeSlot { return v.slot }

// Key returns the evaluated key tuple of a key group view
func (v *View) Key() []interface{} { return v.key }

// Children returns the number of live sub-views
func (v *View) Children() int { return v.arena.liveChildren(v) }

// RecordsIn counts the samples within [newest-d, newest]
func (v *View) RecordsIn(d time.Duration) int {
	n := v.Length()
	if n == 0 {
		return 0
	}
	target := v.data[v.hi-1].Timestamp.Add(-d)
	idx := sort.Search(n, func(i int) bool {
		return !v.data[v.lo+i].Timestamp.Before(target)
	})
	return n - idx
}

// SubView returns the newest count samples as a child view; count is clamped to Length
func (v *View) SubView(count int) (*View, error) {
	if count > v.Length() {
		count = v.Length()
	}
	if count < 0 {
		count = 0
	}
	return v.arena.child(v, v.data, v.hi-count, v.hi)
}

// SubViewDuration is SubView(RecordsIn(d))
func (v *View) SubViewDuration(d time.Duration) (*View, error) {
	return v.SubView(v.RecordsIn(d))
}

// Release releases the view. It fails while sub-views are live; releasing the root
// view allows the buffer to take the next snapshot.
func (v *View) Release() error {
	return v.arena.release(v)
}

// ReleaseAll releases views in order, returning the first error
func ReleaseAll(views []*View) error {
	var first error
	for _, sv := range views {
		if err := sv.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// GroupByTime returns up to count cumulative buckets anchored at the newest sample,
// bucket k spanning [newest-k*d, newest]. The first bucket reaching the oldest sample
// is clamped to the whole view and ends generation.
func (v *View) GroupByTime(d time.Duration, count int) ([]*View, error) {
	n := v.Length()
	if n == 0 || d <= 0 || count <= 0 {
		return nil, nil
	}
	newest := v.data[v.hi-1].Timestamp
	oldest := v.data[v.lo].Timestamp
	buckets := make([]*View, 0, count)
	for k := 1; k <= count; k++ {
		span := time.Duration(k) * d
		slot := types.NewTimeSlot(newest, span)
		size := v.RecordsIn(span)
		last := !slot.Start.After(oldest)
		if last {
			size = n
		}
		sv, err := v.SubView(size)
		if err != nil {
			_ = ReleaseAll(buckets)
			return nil, err
		}
		sv.slot = slot
		buckets = append(buckets, sv)
		if last {
			break
		}
	}
	return buckets, nil
}

// GroupByKeys partitions the view by the tuple the key expressions evaluate to per sample.
// NULL keys form their own group. Groups are ordered by their newest sample, newest first;
// samples stay chronological inside a group.
func (v *View) GroupByKeys(keys []condition.Expression) ([]*View, error) {
	if len(keys) == 0 {
		sv, err := v.SubView(v.Length())
		if err != nil {
			return nil, err
		}
		return []*View{sv}, nil
	}
	var groups []*keyGroup
	index := make(map[uint64][]*keyGroup)
	for i := v.lo; i < v.hi; i++ {
		s := v.data[i]
		tuple := make([]interface{}, len(keys))
		for j, k := range keys {
			val, err := k.Evaluate(s, v)
			if err != nil {
				val = nil
			}
			tuple[j] = val
		}
		canonical := encodeKey(tuple)
		h := hashKey(canonical)
		var g *keyGroup
		for _, cand := range index[h] {
			if cand.canonical == canonical {
				g = cand
				break
			}
		}
		if g == nil {
			g = &keyGroup{canonical: canonical, key: tuple}
			index[h] = append(index[h], g)
			groups = append(groups, g)
		}
		g.samples = append(g.samples, s)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		ti := groups[i].samples[len(groups[i].samples)-1].Timestamp
		tj := groups[j].samples[len(groups[j].samples)-1].Timestamp
		return ti.After(tj)
	})
	out := make([]*View, 0, len(groups))
	for _, g := range groups {
		sv, err := v.arena.child(v, g.samples, 0, len(g.samples))
		if err != nil {
			_ = ReleaseAll(out)
			return nil, err
		}
		sv.key = g.key
		out = append(out, sv)
	}
	return out, nil
}
