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

package types

import (
	"time"
)

// TimestampField is the name under which a sample's timestamp is visible to expressions
const TimestampField = "timestamp"

// Sample is one acquisition from a device: attribute values plus the designated timestamp.
// A sample is immutable once appended to a buffer; views reference it, never copy it.
type Sample struct {
	Timestamp time.Time
	Values    map[string]interface{}
}

// NewSample creates a sample. A zero timestamp is replaced by the current time.
func NewSample(ts time.Time, values map[string]interface{}) *Sample {
	if ts.IsZero() {
		ts = time.Now()
	}
	if values == nil {
		values = make(map[string]interface{})
	}
	return &Sample{Timestamp: ts, Values: values}
}

// Get returns the value of an attribute
func (s *Sample) Get(name string) (interface{}, bool) {
	if name == TimestampField {
		return s.Timestamp, true
	}
	v, ok := s.Values[name]
	return v, ok
}

// Env builds the expression environment of the sample: its values plus the timestamp.
func (s *Sample) Env() map[string]interface{} {
	env := make(map[string]interface{}, len(s.Values)+1)
	for k, v := range s.Values {
		env[k] = v
	}
	env[TimestampField] = s.Timestamp
	return env
}

// Row is one output row of a selection pass, ordered like the SELECT field list
type Row []interface{}
