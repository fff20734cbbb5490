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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/types"
)

func snapshotOf(t *testing.T, n int) (*Buffer, *View) {
	t.Helper()
	b := NewBuffer(4)
	fill(b, n)
	root, err := b.Snapshot()
	require.NoError(t, err)
	return b, root
}

func TestReleaseOrdering(t *testing.T) {
	b, root := snapshotOf(t, 10)

	c1, err := root.SubView(3)
	require.NoError(t, err)
	c2, err := root.SubViewDuration(5 * time.Second)
	require.NoError(t, err)
	grand, err := c1.SubView(1)
	require.NoError(t, err)
	assert.Equal(t, 2, root.Children())

	assert.ErrorIs(t, root.Release(), types.ErrUnreleasedChildren)
	assert.ErrorIs(t, c1.Release(), types.ErrUnreleasedChildren)

	require.NoError(t, grand.Release())
	require.NoError(t, c1.Release())
	assert.ErrorIs(t, root.Release(), types.ErrUnreleasedChildren)
	require.NoError(t, c2.Release())

	// still outstanding until the root goes
	_, err = b.Snapshot()
	assert.ErrorIs(t, err, types.ErrViewConflict)

	require.NoError(t, root.Release())
	assert.ErrorIs(t, root.Release(), types.ErrViewReleased)
	assert.ErrorIs(t, c1.Release(), types.ErrViewReleased)

	_, err = root.SubView(1)
	assert.ErrorIs(t, err, types.ErrViewReleased)

	next, err := b.Snapshot()
	require.NoError(t, err)
	// a recycled handle must not revive the stale view
	child, err := next.SubView(1)
	require.NoError(t, err)
	assert.ErrorIs(t, c2.Release(), types.ErrViewReleased)
	assert.ErrorIs(t, grand.Release(), types.ErrViewReleased)
	require.NoError(t, child.Release())
	require.NoError(t, next.Release())
}

func TestGet(t *testing.T) {
	_, root := snapshotOf(t, 5)
	defer root.Release()

	s, err := root.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Values["i"])
	s, err = root.Get(4)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Values["i"])

	_, err = root.Get(5)
	assert.ErrorIs(t, err, types.ErrIndexOutOfRange)
	_, err = root.Get(-1)
	assert.ErrorIs(t, err, types.ErrIndexOutOfRange)
}

func TestRecordsIn(t *testing.T) {
	_, root := snapshotOf(t, 10)
	defer root.Release()

	assert.Equal(t, 4, root.RecordsIn(3*time.Second))
	assert.Equal(t, 1, root.RecordsIn(0))
	assert.Equal(t, 2, root.RecordsIn(1500*time.Millisecond))
	assert.Equal(t, 10, root.RecordsIn(time.Hour))
}

func TestSubViewClamp(t *testing.T) {
	_, root := snapshotOf(t, 5)

	all, err := root.SubView(50)
	require.NoError(t, err)
	assert.Equal(t, 5, all.Length())

	none, err := root.SubView(-1)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Length())

	last2, err := root.SubView(2)
	require.NoError(t, err)
	assert.Equal(t, 3, last2.Oldest().Values["i"])
	assert.Equal(t, 4, last2.Newest().Values["i"])

	require.NoError(t, ReleaseAll([]*View{all, none, last2}))
	require.NoError(t, root.Release())
}

func TestForEach(t *testing.T) {
	_, root := snapshotOf(t, 6)
	defer root.Release()

	even, err := condition.NewExprCondition("i % 2 == 0")
	require.NoError(t, err)

	var got []interface{}
	root.ForEach(func(s *types.Sample) { got = append(got, s.Values["i"]) }, even)
	assert.Equal(t, []interface{}{0, 2, 4}, got)

	got = nil
	root.ForEach(func(s *types.Sample) { got = append(got, s.Values["i"]) }, nil)
	assert.Len(t, got, 6)
}

func TestGroupByTime(t *testing.T) {
	_, root := snapshotOf(t, 10)

	buckets, err := root.GroupByTime(3*time.Second, 5)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, 4, buckets[0].Length())
	assert.Equal(t, 7, buckets[1].Length())
	assert.Equal(t, 10, buckets[2].Length())
	assert.Equal(t, 3*time.Second, buckets[0].Slot().Span())
	assert.Equal(t, base.Add(9*time.Second), buckets[1].Slot().End)

	assert.ErrorIs(t, root.Release(), types.ErrUnreleasedChildren)
	require.NoError(t, ReleaseAll(buckets))

	two, err := root.GroupByTime(time.Second, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, 2, two[0].Length())
	assert.Equal(t, 3, two[1].Length())
	require.NoError(t, ReleaseAll(two))

	empty, err := root.GroupByTime(0, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
	require.NoError(t, root.Release())
}

func TestGroupByKeys(t *testing.T) {
	b := NewBuffer(8)
	rooms := []interface{}{"a", "b", "a", nil, 1, 1.0, "b", "a"}
	for i, r := range rooms {
		b.Append(at(i, map[string]interface{}{"room": r, "i": i}))
	}
	root, err := b.Snapshot()
	require.NoError(t, err)

	room, err := condition.Compile("room")
	require.NoError(t, err)
	groups, err := root.GroupByKeys([]condition.Expression{room})
	require.NoError(t, err)
	require.Len(t, groups, 4)

	// newest first by each group's newest sample
	assert.Equal(t, []interface{}{"a"}, groups[0].Key())
	assert.Equal(t, 3, groups[0].Length())
	assert.Equal(t, []interface{}{"b"}, groups[1].Key())
	assert.Equal(t, 2, groups[1].Length())
	// 1 and 1.0 are the same key
	assert.Equal(t, 2, groups[2].Length())
	assert.Equal(t, []interface{}{nil}, groups[3].Key())
	assert.Equal(t, 1, groups[3].Length())

	// chronological inside a group
	assert.Equal(t, 0, groups[0].Oldest().Values["i"])
	assert.Equal(t, 7, groups[0].Newest().Values["i"])

	// a group can be windowed further
	last, err := groups[0].SubView(1)
	require.NoError(t, err)
	assert.Equal(t, 7, last.Newest().Values["i"])
	assert.ErrorIs(t, groups[0].Release(), types.ErrUnreleasedChildren)
	require.NoError(t, last.Release())

	require.NoError(t, ReleaseAll(groups))
	require.NoError(t, root.Release())
}

func TestEncodeKey(t *testing.T) {
	assert.Equal(t, encodeKey([]interface{}{int64(3), "x"}), encodeKey([]interface{}{3.0, "x"}))
	assert.NotEqual(t, encodeKey([]interface{}{"3"}), encodeKey([]interface{}{3}))
	assert.NotEqual(t, encodeKey([]interface{}{nil}), encodeKey([]interface{}{""}))
	assert.NotEqual(t, encodeKey([]interface{}{"a", "b"}), encodeKey([]interface{}{"ab"}))
	assert.Equal(t, hashKey("k"), hashKey("k"))
}
