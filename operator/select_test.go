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

package operator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/window"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func exprs(t *testing.T, sources ...string) []condition.Expression {
	t.Helper()
	out := make([]condition.Expression, len(sources))
	for i, src := range sources {
		e, err := condition.Compile(src)
		require.NoError(t, err)
		out[i] = e
	}
	return out
}

// snapshot buffers one sample per second built by values(i) and takes the root view
func snapshot(t *testing.T, n int, values func(i int) map[string]interface{}) (*window.Buffer, *window.View) {
	t.Helper()
	b := window.NewBuffer(n)
	for i := 0; i < n; i++ {
		b.Append(types.NewSample(base.Add(time.Duration(i)*time.Second), values(i)))
	}
	root, err := b.Snapshot()
	require.NoError(t, err)
	return b, root
}

func sequence(i int) map[string]interface{} {
	return map[string]interface{}{"i": i, "room": []string{"a", "b"}[i%2]}
}

func evaluate(t *testing.T, sel *Select, root *window.View) []types.Row {
	t.Helper()
	rows, err := sel.Evaluate(root)
	require.NoError(t, err)
	assert.Zero(t, root.Children(), "sub-views must be released")
	require.NoError(t, root.Release())
	return rows
}

func TestSelectUpto(t *testing.T) {
	tests := []struct {
		name string
		upto types.WindowSize
		want []types.Row
	}{
		{"default newest only", types.WindowSize{}, []types.Row{{9}}},
		{"count", types.Count(3), []types.Row{{9}, {8}, {7}}},
		{"count beyond view", types.Count(50), nil},
		{"duration", types.Duration(2 * time.Second), []types.Row{{9}, {8}, {7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, root := snapshot(t, 10, sequence)
			rows := evaluate(t, &Select{Fields: exprs(t, "i"), Upto: tt.upto}, root)
			if tt.want == nil {
				assert.Len(t, rows, 10)
				assert.Equal(t, types.Row{0}, rows[9])
				return
			}
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestSelectProjectsNewestFirst(t *testing.T) {
	_, root := snapshot(t, 2, func(i int) map[string]interface{} {
		return map[string]interface{}{"temp": []float64{20.5, 26.5}[i]}
	})
	newest, err := root.Get(0)
	require.NoError(t, err)

	rows := evaluate(t, &Select{Fields: exprs(t, "temp"), Upto: types.Count(1)}, root)
	require.Len(t, rows, 1)
	assert.Equal(t, newest.Values["temp"], rows[0][0])
	assert.Equal(t, 26.5, rows[0][0])
}

func TestSelectHaving(t *testing.T) {
	having, err := condition.NewExprCondition("i % 2 == 0")
	require.NoError(t, err)
	_, root := snapshot(t, 6, sequence)

	rows := evaluate(t, &Select{Fields: exprs(t, "i"), Upto: types.Count(6), Having: having}, root)
	assert.Equal(t, []types.Row{{4}, {2}, {0}}, rows)
}

func TestSelectHavingUnknownRejects(t *testing.T) {
	having, err := condition.NewExprCondition("missing > 1")
	require.NoError(t, err)
	_, root := snapshot(t, 3, sequence)

	rows := evaluate(t, &Select{Fields: exprs(t, "i"), Upto: types.Count(3), Having: having}, root)
	assert.Empty(t, rows)
}

func TestSelectDefaultRow(t *testing.T) {
	having := condition.Always(condition.False)
	_, root := snapshot(t, 3, sequence)

	sel := &Select{Fields: exprs(t, "i", "room"), Having: having, Default: types.Row{nil, "none"}}
	rows := evaluate(t, sel, root)
	assert.Equal(t, []types.Row{{nil, "none"}}, rows)

	// the default row is copied per pass
	rows[0][1] = "changed"
	assert.Equal(t, "none", sel.Default[1])
}

func TestSelectEmptyView(t *testing.T) {
	b := window.NewBuffer(4)
	root, err := b.Snapshot()
	require.NoError(t, err)

	rows := evaluate(t, &Select{Fields: exprs(t, "i")}, root)
	assert.Empty(t, rows)
}

func TestSelectProjectionErrorIsNull(t *testing.T) {
	_, root := snapshot(t, 2, sequence)
	rows := evaluate(t, &Select{Fields: exprs(t, "i", "missing + 1")}, root)
	assert.Equal(t, []types.Row{{1, nil}}, rows)
}

func TestSelectAggregatesOverView(t *testing.T) {
	_, root := snapshot(t, 4, sequence)
	rows := evaluate(t, &Select{Fields: exprs(t, "COUNT()", `SUM("i")`, "i")}, root)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0][0])
	assert.Equal(t, 6.0, rows[0][1])
	assert.Equal(t, 3, rows[0][2])
}

func TestSelectGroupByTime(t *testing.T) {
	_, root := snapshot(t, 10, sequence)
	sel := &Select{
		Fields:  exprs(t, "COUNT()", `FIRST("i")`),
		GroupBy: GroupBy{Period: 3 * time.Second, Buckets: 2},
	}
	rows := evaluate(t, sel, root)
	assert.Equal(t, []types.Row{{4, 6}, {7, 3}}, rows)
}

func TestSelectGroupByKeys(t *testing.T) {
	_, root := snapshot(t, 5, sequence)
	sel := &Select{
		Fields:  exprs(t, "room", "COUNT()", "i"),
		GroupBy: GroupBy{Keys: exprs(t, "room")},
	}
	rows := evaluate(t, sel, root)
	// room a holds 0,2,4 and owns the newest sample
	assert.Equal(t, []types.Row{{"a", 3, 4}, {"b", 2, 3}}, rows)
}

func TestSelectGroupByTimeAndKeys(t *testing.T) {
	_, root := snapshot(t, 6, sequence)
	sel := &Select{
		Fields:  exprs(t, "room", "COUNT()"),
		GroupBy: GroupBy{Period: time.Second, Buckets: 2, Keys: exprs(t, "room")},
	}
	rows := evaluate(t, sel, root)
	// bucket 1 holds 4,5; bucket 2 holds 3,4,5
	assert.Equal(t, []types.Row{{"b", 1}, {"a", 1}, {"b", 2}, {"a", 1}}, rows)
}

func TestSelectAttributes(t *testing.T) {
	having, err := condition.NewExprCondition("power > 1")
	require.NoError(t, err)
	sel := &Select{
		Fields:  exprs(t, "a", `AVG("b")`, "a + c"),
		GroupBy: GroupBy{Keys: exprs(t, "room")},
		Having:  having,
	}
	assert.Equal(t, []string{"a", "b", "c", "power", "room"}, sel.Attributes())
}

func TestSelectValidate(t *testing.T) {
	fields := exprs(t, "a", "b")
	tests := []struct {
		name string
		sel  Select
		ok   bool
	}{
		{"valid", Select{Fields: fields, Names: []string{"a", "b"}}, true},
		{"no fields", Select{}, false},
		{"names mismatch", Select{Fields: fields, Names: []string{"a"}}, false},
		{"default mismatch", Select{Fields: fields, Default: types.Row{1}}, false},
		{"negative period", Select{Fields: fields, GroupBy: GroupBy{Period: -time.Second}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sel.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGroupByHorizon(t *testing.T) {
	assert.Zero(t, GroupBy{}.Horizon())
	assert.Equal(t, 2*time.Second, GroupBy{Period: 2 * time.Second}.Horizon())
	assert.Equal(t, 6*time.Second, GroupBy{Period: 2 * time.Second, Buckets: 3}.Horizon())
	assert.True(t, GroupBy{}.IsZero())
	assert.False(t, GroupBy{Keys: exprs(t, "a")}.IsZero())
}
