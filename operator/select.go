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
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/window"
)

// DefaultUpto is used when a select has no UPTO clause: the newest sample only
var DefaultUpto = types.Count(1)

// GroupBy partitions a view before projection. Period > 0 buckets by time, Keys partition
// each bucket (or the whole view) by the evaluated key tuple.
type GroupBy struct {
	Period  time.Duration
	Buckets int
	Keys    []condition.Expression
}

// IsZero reports whether no grouping is configured
func (g GroupBy) IsZero() bool {
	return g.Period <= 0 && len(g.Keys) == 0
}

// Horizon is how far back a pass grouped this way can reach; 0 when unbounded
func (g GroupBy) Horizon() time.Duration {
	if g.Period <= 0 {
		return 0
	}
	return g.Period * time.Duration(g.buckets())
}

func (g GroupBy) buckets() int {
	if g.Buckets <= 0 {
		return 1
	}
	return g.Buckets
}

// Select is the windowed selection evaluated on every pass.
//
//	SELECT Fields UPTO Upto GROUP BY GroupBy HAVING Having DEFAULT Default
type Select struct {
	Fields []condition.Expression
	// Names labels the output columns, same order as Fields
	Names   []string
	Upto    types.WindowSize
	GroupBy GroupBy
	// Having filters samples before projection, nil admits all
	Having  condition.Condition
	Default types.Row
}

// Attributes lists the device attributes the projections, keys and HAVING depend on
func (s *Select) Attributes() []string {
	attrs := condition.Attributes(s.Fields...)
	attrs = append(attrs, condition.Attributes(s.GroupBy.Keys...)...)
	if s.Having != nil {
		attrs = append(attrs, s.Having.Attributes()...)
	}
	return dedup(attrs)
}

// Evaluate runs the select over view and returns its rows. Sub-views created for grouping
// are released before returning; view itself stays with the caller.
func (s *Select) Evaluate(view *window.View) ([]types.Row, error) {
	var rows []types.Row
	var err error
	if s.GroupBy.IsZero() {
		rows = s.project(view, nil)
	} else {
		rows, err = s.grouped(view)
		if err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 && s.Default != nil {
		row := make(types.Row, len(s.Default))
		copy(row, s.Default)
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Select) grouped(view *window.View) (rows []types.Row, err error) {
	if s.GroupBy.Period <= 0 {
		return s.byKeys(view, rows)
	}
	buckets, err := view.GroupByTime(s.GroupBy.Period, s.GroupBy.buckets())
	if err != nil {
		return nil, fmt.Errorf("group by time %s: %w", s.GroupBy.Period, err)
	}
	defer func() {
		if rerr := window.ReleaseAll(buckets); rerr != nil && err == nil {
			err = rerr
		}
	}()
	for _, bucket := range buckets {
		if len(s.GroupBy.Keys) == 0 {
			rows = s.project(bucket, rows)
			continue
		}
		if rows, err = s.byKeys(bucket, rows); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (s *Select) byKeys(view *window.View, rows []types.Row) ([]types.Row, error) {
	groups, err := view.GroupByKeys(s.GroupBy.Keys)
	if err != nil {
		return nil, fmt.Errorf("group by keys: %w", err)
	}
	for _, g := range groups {
		rows = s.project(g, rows)
	}
	if err := window.ReleaseAll(groups); err != nil {
		return nil, err
	}
	return rows, nil
}

// project appends one row per admitted sample among the newest upto samples of view,
// newest first
func (s *Select) project(view *window.View, rows []types.Row) []types.Row {
	u := s.upto(view)
	for i := 0; i < u; i++ {
		sample, err := view.Get(i)
		if err != nil {
			break
		}
		if s.Having != nil && s.Having.Test(sample, view) != condition.True {
			continue
		}
		row := make(types.Row, len(s.Fields))
		for j, f := range s.Fields {
			v, err := f.Evaluate(sample, view)
			if err != nil {
				v = nil
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Select) upto(view *window.View) int {
	upto := s.Upto
	if upto.IsZero() {
		upto = DefaultUpto
	}
	var u int
	switch {
	case upto.IsCount():
		u = upto.Samples()
	case upto.IsDuration():
		u = view.RecordsIn(upto.Period())
	}
	if u > view.Length() {
		u = view.Length()
	}
	return u
}

// Validate checks the select is internally consistent
func (s *Select) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New("select has no fields")
	}
	if len(s.Names) != 0 && len(s.Names) != len(s.Fields) {
		return fmt.Errorf("select has %d names for %d fields", len(s.Names), len(s.Fields))
	}
	if s.Default != nil && len(s.Default) != len(s.Fields) {
		return fmt.Errorf("default row has %d values for %d fields", len(s.Default), len(s.Fields))
	}
	if s.GroupBy.Period < 0 {
		return fmt.Errorf("negative group by period %s", s.GroupBy.Period)
	}
	return nil
}

func dedup(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, a := range in {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
