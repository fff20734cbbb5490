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

package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/utils/timex"
)

// Config describes a simulated device in YAML
type Config struct {
	Latency    time.Duration            `yaml:"latency"`
	Attributes map[string]SignalConfig  `yaml:"attributes"`
	Events     map[string]time.Duration `yaml:"events"`
}

// SignalConfig is either a constant value, a list of values cycled through, or a ramp
// from Min to Max by Step.
type SignalConfig struct {
	Value  interface{}   `yaml:"value"`
	Values []interface{} `yaml:"values"`
	Min    float64       `yaml:"min"`
	Max    float64       `yaml:"max"`
	Step   float64       `yaml:"step"`
}

// Validate checks ramps and event periods
func (c *Config) Validate() error {
	for name, s := range c.Attributes {
		if s.Step != 0 && s.Max <= s.Min {
			return fmt.Errorf("%w: attribute %s: ramp needs max > min", types.ErrInvalidConfig, name)
		}
	}
	for name, p := range c.Events {
		if p <= 0 {
			return fmt.Errorf("%w: event %s needs a positive period", types.ErrInvalidConfig, name)
		}
	}
	return nil
}

// Generator builds the generator of the signal
func (s SignalConfig) Generator() Generator {
	switch {
	case s.Step != 0:
		span := s.Max - s.Min
		return func(seq int64) interface{} {
			return s.Min + math.Abs(math.Mod(s.Step*float64(seq-1), span))
		}
	case len(s.Values) > 0:
		return Sequence(s.Values...)
	default:
		return Constant(s.Value)
	}
}

// NewFromConfig creates a device from cfg. The returned timers fire the configured
// events and must be stopped by the caller.
func NewFromConfig(cfg Config, opts ...Option) (*Device, []timex.Timer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Latency > 0 {
		opts = append([]Option{WithLatency(cfg.Latency)}, opts...)
	}
	d := New(opts...)
	for name, s := range cfg.Attributes {
		d.SetGenerator(name, s.Generator())
	}
	timers := make([]timex.Timer, 0, len(cfg.Events))
	for name, period := range cfg.Events {
		timers = append(timers, d.FireEvery(name, period))
	}
	return d, timers, nil
}
