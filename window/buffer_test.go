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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/fpcql/types"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func at(sec int, values map[string]interface{}) *types.Sample {
	return types.NewSample(base.Add(time.Duration(sec)*time.Second), values)
}

// fill appends samples t0..t(n-1) one second apart
func fill(b *Buffer, n int) {
	for i := 0; i < n; i++ {
		b.Append(at(i, map[string]interface{}{"i": i}))
	}
}

func TestSingleOutstandingRoot(t *testing.T) {
	b := NewBuffer(4)
	fill(b, 3)

	root, err := b.Snapshot()
	require.NoError(t, err)

	_, err = b.Snapshot()
	assert.ErrorIs(t, err, types.ErrViewConflict)

	require.NoError(t, root.Release())
	again, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 3, again.Length())
	require.NoError(t, again.Release())
}

func TestGrowthPreservesData(t *testing.T) {
	b := NewBuffer(2)
	const n = 37
	// reverse order: the snapshot must sort
	for i := n - 1; i >= 0; i-- {
		b.Append(at(i, map[string]interface{}{"i": i}))
	}
	assert.Equal(t, n, b.Len())
	assert.GreaterOrEqual(t, b.Cap(), n)

	root, err := b.Snapshot()
	require.NoError(t, err)
	defer root.Release()

	require.Equal(t, n, root.Length())
	i := 0
	root.Scan(func(s *types.Sample) {
		assert.Equal(t, i, s.Values["i"])
		i++
	})
	assert.Equal(t, n, i)
}

func TestConcurrentAppendDuringGrowth(t *testing.T) {
	b := NewBuffer(1)
	const writers, perWriter = 8, 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.Append(at(i, map[string]interface{}{"id": w*perWriter + i}))
			}
		}(w)
	}
	// snapshots race with appends and growth
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if root, err := b.Snapshot(); err == nil {
				assert.LessOrEqual(t, root.Length(), writers*perWriter)
				assert.NoError(t, root.Release())
			}
		}
	}()
	wg.Wait()
	<-done

	root, err := b.Snapshot()
	require.NoError(t, err)
	defer root.Release()
	require.Equal(t, writers*perWriter, root.Length())

	seen := make(map[int]bool, writers*perWriter)
	var prev time.Time
	root.Scan(func(s *types.Sample) {
		id := s.Values["id"].(int)
		assert.False(t, seen[id], "duplicate sample %d", id)
		seen[id] = true
		assert.False(t, s.Timestamp.Before(prev), "view must be chronological")
		prev = s.Timestamp
	})
	assert.Len(t, seen, writers*perWriter)
}

func TestDiscard(t *testing.T) {
	b := NewBuffer(4)
	fill(b, 10)

	root, err := b.Snapshot()
	require.NoError(t, err)
	assert.ErrorIs(t, b.Discard(3), types.ErrViewConflict)
	require.NoError(t, root.Release())

	require.NoError(t, b.Discard(6))
	assert.Equal(t, 4, b.Len())
	b.Append(at(10, map[string]interface{}{"i": 10}))

	root, err = b.Snapshot()
	require.NoError(t, err)
	defer root.Release()
	require.Equal(t, 5, root.Length())
	assert.Equal(t, 6, root.Oldest().Values["i"])
	assert.Equal(t, 10, root.Newest().Values["i"])

	assert.NoError(t, b.Discard(0))
}

func TestDiscardMoreThanBuffered(t *testing.T) {
	b := NewBuffer(4)
	fill(b, 3)
	require.NoError(t, b.Discard(10))
	assert.Equal(t, 0, b.Len())

	root, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, root.Length())
	assert.Nil(t, root.Newest())
	require.NoError(t, root.Release())
}
