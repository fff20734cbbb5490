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

package sampling

import (
	"fmt"
	"strings"
	"time"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/types"
)

// RefreshKind selects how a rate chain or gating condition is kept up to date
type RefreshKind uint8

const (
	RefreshNever RefreshKind = iota
	RefreshPeriodic
	RefreshOnEvents
)

// Refresh describes when dependent attributes are re-acquired
type Refresh struct {
	Kind   RefreshKind
	Period time.Duration
	Events []string
}

// Never is the refresh that never fires
func Never() Refresh { return Refresh{} }

// Every refreshes periodically
func Every(d time.Duration) Refresh { return Refresh{Kind: RefreshPeriodic, Period: d} }

// OnEvents refreshes whenever one of the named device events fires
func OnEvents(names ...string) Refresh { return Refresh{Kind: RefreshOnEvents, Events: names} }

// IsNever reports whether the refresh is inactive
func (r Refresh) IsNever() bool {
	switch r.Kind {
	case RefreshPeriodic:
		return r.Period <= 0
	case RefreshOnEvents:
		return len(r.Events) == 0
	default:
		return true
	}
}

func (r Refresh) String() string {
	switch {
	case r.IsNever():
		return "NEVER"
	case r.Kind == RefreshPeriodic:
		return "EVERY " + r.Period.String()
	default:
		return "ON " + strings.Join(r.Events, ", ")
	}
}

// Rule is one (condition, rate) entry of an IF-EVERY chain
type Rule struct {
	Cond condition.Condition
	Rate time.Duration
}

// RateChain is the rate-adaptive sampling descriptor
type RateChain struct {
	Rules   []Rule
	Policy  string
	Refresh Refresh
}

// NewRateChain validates and builds a chain; a nil rule condition means TRUE
func NewRateChain(rules []Rule, policy string, refresh Refresh) (RateChain, error) {
	if len(rules) == 0 {
		return RateChain{}, fmt.Errorf("%w: empty rate chain", types.ErrInvalidConfig)
	}
	out := make([]Rule, len(rules))
	for i, r := range rules {
		if r.Rate <= 0 {
			return RateChain{}, fmt.Errorf("%w: rule %d needs a positive rate", types.ErrInvalidConfig, i)
		}
		if r.Cond == nil {
			r.Cond = condition.Always(condition.True)
		}
		out[i] = r
	}
	if policy == "" {
		policy = types.RatePolicySuspend
	}
	if policy != types.RatePolicySuspend && policy != types.RatePolicyHold {
		return RateChain{}, fmt.Errorf("%w: unknown rate policy %q", types.ErrInvalidConfig, policy)
	}
	return RateChain{Rules: out, Policy: policy, Refresh: refresh}, nil
}

// Attributes lists the attributes the rule conditions depend on
func (c RateChain) Attributes() []string {
	conds := make([]condition.Condition, len(c.Rules))
	for i, r := range c.Rules {
		conds[i] = r.Cond
	}
	return condition.Attributes(conds...)
}

// Select returns the rate of the first rule whose condition is strictly TRUE
func (c RateChain) Select(s *types.Sample) (time.Duration, bool) {
	for _, r := range c.Rules {
		if r.Cond.Test(s, nil) == condition.True {
			return r.Rate, true
		}
	}
	return 0, false
}

// holds reports whether the last rate is kept when no rule matches
func (c RateChain) holds() bool { return c.Policy == types.RatePolicyHold }

// EventDriven is the event sampling descriptor
type EventDriven struct {
	Events []string
}

// ExecutionConditions gate a query: it only samples while Cond is TRUE
type ExecutionConditions struct {
	Cond    condition.Condition
	Refresh Refresh
}

// Attributes lists the attributes the gating condition depends on
func (e ExecutionConditions) Attributes() []string {
	if e.Cond == nil {
		return nil
	}
	return e.Cond.Attributes()
}

// IsStatic reports whether the gate can be decided without acquiring anything
func (e ExecutionConditions) IsStatic() bool {
	return condition.IsStatic(e.Cond)
}

// Decide evaluates a static gate; an absent condition is TRUE
func (e ExecutionConditions) Decide() condition.Truth {
	if e.Cond == nil {
		return condition.True
	}
	return e.Cond.Test(nil, nil)
}
