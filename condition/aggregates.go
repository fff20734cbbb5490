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

package condition

import (
	"github.com/spf13/cast"

	"github.com/rulego/fpcql/types"
)

// aggregateNames are the window functions visible to expressions.
// They are upper case so they never shadow the expr-lang builtins.
var aggregateNames = map[string]struct{}{
	"COUNT": {},
	"SUM":   {},
	"AVG":   {},
	"MIN":   {},
	"MAX":   {},
	"FIRST": {},
	"LAST":  {},
}

// bindAggregates installs the window functions into env. Without a window every
// aggregate is NULL.
func bindAggregates(env map[string]interface{}, w Window) {
	env["COUNT"] = func() interface{} {
		if w == nil {
			return nil
		}
		return w.Length()
	}
	env["SUM"] = func(field string) interface{} {
		sum, n := fold(w, field, func(acc, v float64) float64 { return acc + v })
		if n == 0 {
			return nil
		}
		return sum
	}
	env["AVG"] = func(field string) interface{} {
		sum, n := fold(w, field, func(acc, v float64) float64 { return acc + v })
		if n == 0 {
			return nil
		}
		return sum / float64(n)
	}
	env["MIN"] = func(field string) interface{} {
		min, n := fold(w, field, func(acc, v float64) float64 {
			if v < acc {
				return v
			}
			return acc
		})
		if n == 0 {
			return nil
		}
		return min
	}
	env["MAX"] = func(field string) interface{} {
		max, n := fold(w, field, func(acc, v float64) float64 {
			if v > acc {
				return v
			}
			return acc
		})
		if n == 0 {
			return nil
		}
		return max
	}
	env["FIRST"] = func(field string) interface{} {
		return pick(w, field, true)
	}
	env["LAST"] = func(field string) interface{} {
		return pick(w, field, false)
	}
}

// fold reduces the numeric values of field; the first value seeds the accumulator.
// Non numeric and NULL values are skipped.
func fold(w Window, field string, fn func(acc, v float64) float64) (float64, int) {
	if w == nil {
		return 0, 0
	}
	var acc float64
	n := 0
	w.Scan(func(s *types.Sample) {
		raw, ok := s.Get(field)
		if !ok || raw == nil {
			return
		}
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return
		}
		if n == 0 {
			acc = v
		} else {
			acc = fn(acc, v)
		}
		n++
	})
	return acc, n
}

// pick returns the oldest (first) or newest non NULL value of field
func pick(w Window, field string, first bool) interface{} {
	if w == nil {
		return nil
	}
	var out interface{}
	w.Scan(func(s *types.Sample) {
		v, ok := s.Get(field)
		if !ok || v == nil {
			return
		}
		if first && out != nil {
			return
		}
		out = v
	})
	return out
}
