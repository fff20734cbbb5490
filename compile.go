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

package fpcql

import (
	"fmt"
	"strings"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/operator"
	"github.com/rulego/fpcql/sampling"
	"github.com/rulego/fpcql/stream"
	"github.com/rulego/fpcql/types"
)

// Compile binds a query definition: every expression is compiled and the sampling,
// gating and termination clauses are turned into their runtime descriptors.
func Compile(cfg *types.QueryConfig) (stream.Definition, error) {
	c := *cfg
	c.Fields = append([]types.FieldConfig(nil), cfg.Fields...)
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return stream.Definition{}, err
	}

	sel := &operator.Select{
		Upto:    c.Upto,
		Default: types.Row(c.Default),
	}
	for _, f := range c.Fields {
		e, err := compileExpr("field "+f.Name, f.Expr)
		if err != nil {
			return stream.Definition{}, err
		}
		sel.Fields = append(sel.Fields, e)
		sel.Names = append(sel.Names, f.Name)
	}
	if g := c.GroupBy; g != nil {
		sel.GroupBy = operator.GroupBy{Period: g.Period, Buckets: g.Buckets}
		for _, k := range g.Keys {
			e, err := compileExpr("group by key", k)
			if err != nil {
				return stream.Definition{}, err
			}
			sel.GroupBy.Keys = append(sel.GroupBy.Keys, e)
		}
	}
	var err error
	if sel.Having, err = compileCondition("having", c.Having); err != nil {
		return stream.Definition{}, err
	}

	def := stream.Definition{
		Name:           c.Name,
		Select:         sel,
		Every:          c.Every,
		TerminateAfter: c.TerminateAfter,
		History:        c.History,
	}
	if def.Where, err = compileCondition("where", c.Where); err != nil {
		return stream.Definition{}, err
	}

	if len(c.Sampling.OnEvents) > 0 {
		def.Events = &sampling.EventDriven{Events: c.Sampling.OnEvents}
	} else {
		rules := make([]sampling.Rule, 0, len(c.Sampling.IfEvery))
		for i, r := range c.Sampling.IfEvery {
			cond, err := compileCondition(fmt.Sprintf("if_every rule %d", i), r.If)
			if err != nil {
				return stream.Definition{}, err
			}
			rules = append(rules, sampling.Rule{Cond: cond, Rate: r.Rate})
		}
		chain, err := sampling.NewRateChain(rules, c.Sampling.Policy, refreshOf(c.Sampling.Refresh))
		if err != nil {
			return stream.Definition{}, err
		}
		def.Rate = &chain
	}

	if x := c.ExecuteIf; x != nil {
		cond, err := compileCondition("execute_if", x.Condition)
		if err != nil {
			return stream.Definition{}, err
		}
		def.Gate = &sampling.ExecutionConditions{Cond: cond, Refresh: refreshOf(x.Refresh)}
	}
	if err := def.Validate(); err != nil {
		return stream.Definition{}, err
	}
	return def, nil
}

func compileExpr(what, source string) (condition.Expression, error) {
	e, err := condition.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidConfig, what, err)
	}
	return e, nil
}

// compileCondition returns nil for an empty clause
func compileCondition(what, source string) (condition.Condition, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}
	c, err := condition.NewExprCondition(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidConfig, what, err)
	}
	return c, nil
}

func refreshOf(r *types.RefreshConfig) sampling.Refresh {
	switch {
	case r == nil:
		return sampling.Never()
	case r.Every > 0:
		return sampling.Every(r.Every)
	case len(r.Events) > 0:
		return sampling.OnEvents(r.Events...)
	default:
		return sampling.Never()
	}
}
