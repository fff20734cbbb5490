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
	"errors"
	"fmt"
	"sort"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/operator"
	"github.com/rulego/fpcql/sampling"
	"github.com/rulego/fpcql/types"
)

// Definition is a bound continuous query.
//
//	SELECT ... WHERE Where EVERY Every
//	SAMPLING Rate | Events
//	EXECUTE IF Gate
//	TERMINATE AFTER TerminateAfter
type Definition struct {
	Name   string
	Select *operator.Select
	// Where filters samples before they are buffered, nil admits all
	Where condition.Condition
	// Every triggers a selection pass per n admitted samples or per period
	Every types.WindowSize

	// exactly one of Rate and Events
	Rate   *sampling.RateChain
	Events *sampling.EventDriven

	// Gate is the EXECUTE IF clause, nil runs unconditionally
	Gate *sampling.ExecutionConditions
	// TerminateAfter stops the query after n selection passes or after a running time
	TerminateAfter types.WindowSize
	// History bounds the buffered samples of a key-only GROUP BY, zero keeps all
	History types.WindowSize
}

// Validate checks a definition is complete
func (d *Definition) Validate() error {
	if d.Select == nil {
		return fmt.Errorf("%w: query %q has no select", types.ErrInvalidConfig, d.Name)
	}
	if err := d.Select.Validate(); err != nil {
		return fmt.Errorf("%w: query %q: %v", types.ErrInvalidConfig, d.Name, err)
	}
	if (d.Rate == nil) == (d.Events == nil) {
		return fmt.Errorf("%w: query %q needs exactly one sampling clause", types.ErrInvalidConfig, d.Name)
	}
	if d.Events != nil && len(d.Events.Events) == 0 {
		return fmt.Errorf("%w: query %q samples on no events", types.ErrInvalidConfig, d.Name)
	}
	if d.Every.IsCount() && d.Every.Samples() <= 0 || d.Every.IsDuration() && d.Every.Period() <= 0 {
		return fmt.Errorf("%w: query %q has an empty EVERY clause", types.ErrInvalidConfig, d.Name)
	}
	t := d.TerminateAfter
	if t.IsCount() && t.Samples() <= 0 || t.IsDuration() && t.Period() <= 0 {
		return fmt.Errorf("%w: query %q has an empty TERMINATE AFTER clause", types.ErrInvalidConfig, d.Name)
	}
	return nil
}

// Attributes lists what the sampler acquires: the attributes of the select and WHERE
func (d *Definition) Attributes() []string {
	attrs := d.Select.Attributes()
	if d.Where != nil {
		attrs = append(attrs, d.Where.Attributes()...)
	}
	seen := make(map[string]struct{}, len(attrs))
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if a == types.TimestampField {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

var errNoDevice = errors.New("query needs a device")
