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

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rulego/fpcql/device/opcua"
	"github.com/rulego/fpcql/device/sim"
	"github.com/rulego/fpcql/types"
)

// Device kinds
const (
	DeviceSim   = "sim"
	DeviceOPCUA = "opcua"
)

// Output formats
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

// Config is the run configuration of the fpcql binary
type Config struct {
	Device      DeviceConfig            `yaml:"device"`
	Performance types.PerformanceConfig `yaml:"performance"`
	Metrics     MetricsConfig           `yaml:"metrics"`
	Sink        SinkConfig              `yaml:"sink"`
	Queries     []types.QueryConfig     `yaml:"queries"`
}

type DeviceConfig struct {
	Kind  string       `yaml:"kind"`
	Sim   sim.Config   `yaml:"sim"`
	OPCUA opcua.Config `yaml:"opcua"`
}

type MetricsConfig struct {
	// Addr serves /metrics and /healthz, empty disables the server
	Addr string `yaml:"addr"`
}

// SinkConfig selects where rows go besides stdout
type SinkConfig struct {
	Postgres string `yaml:"postgres"`
	Table    string `yaml:"table"`
	// Format of rows on stdout: json or table
	Format string `yaml:"format"`
	Quiet  bool   `yaml:"quiet"`
}

// LoadConfig reads and validates a run configuration
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	if cfg.Device.Kind == "" {
		cfg.Device.Kind = DeviceSim
	}
	if cfg.Sink.Table == "" {
		cfg.Sink.Table = "fpcql_rows"
	}
	if cfg.Sink.Format == "" {
		cfg.Sink.Format = FormatJSON
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the device section and every query
func (c *Config) Validate() error {
	switch c.Device.Kind {
	case DeviceSim:
		if err := c.Device.Sim.Validate(); err != nil {
			return err
		}
	case DeviceOPCUA:
		o := c.Device.OPCUA
		o.ApplyDefaults()
		if err := o.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown device kind %q", types.ErrInvalidConfig, c.Device.Kind)
	}
	if c.Sink.Format != FormatJSON && c.Sink.Format != FormatTable {
		return fmt.Errorf("%w: unknown output format %q", types.ErrInvalidConfig, c.Sink.Format)
	}
	if len(c.Queries) == 0 {
		return fmt.Errorf("%w: no queries configured", types.ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Queries))
	for i := range c.Queries {
		q := &c.Queries[i]
		q.ApplyDefaults()
		if err := q.Validate(); err != nil {
			return fmt.Errorf("query %d (%s): %w", i, q.Name, err)
		}
		if _, dup := seen[q.Name]; dup {
			return fmt.Errorf("%w: duplicate query name %q", types.ErrInvalidConfig, q.Name)
		}
		seen[q.Name] = struct{}{}
	}
	return nil
}
