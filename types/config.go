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
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rate policies of an IF-EVERY chain when no rule matches
const (
	// RatePolicySuspend stops periodic acquisition until a rule matches again
	RatePolicySuspend = "suspend"
	// RatePolicyHold keeps sampling at the last selected rate
	RatePolicyHold = "hold"
)

// QueryConfig 查询定义，对应一个连续查询
type QueryConfig struct {
	Name           string           `yaml:"name"`
	Fields         []FieldConfig    `yaml:"fields"`
	Where          string           `yaml:"where"`
	Every          WindowSize       `yaml:"every"`
	Upto           WindowSize       `yaml:"upto"`
	GroupBy        *GroupByConfig   `yaml:"group_by"`
	Having         string           `yaml:"having"`
	Default        []interface{}    `yaml:"default"`
	Sampling       SamplingConfig   `yaml:"sampling"`
	ExecuteIf      *ExecuteIfConfig `yaml:"execute_if"`
	TerminateAfter WindowSize       `yaml:"terminate_after"`
	// History bounds how much buffered data a key-only GROUP BY may look at
	History WindowSize `yaml:"history"`
}

// FieldConfig 输出字段配置
type FieldConfig struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// UnmarshalYAML accepts either a mapping or a bare expression
func (f *FieldConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Expr = value.Value
		f.Name = value.Value
		return nil
	}
	type plain FieldConfig
	return value.Decode((*plain)(f))
}

// GroupByConfig 分组配置：时间分桶和/或字段分组
type GroupByConfig struct {
	Period  time.Duration `yaml:"period"`
	Buckets int           `yaml:"buckets"`
	Keys    []string      `yaml:"keys"`
}

// SamplingConfig 采样配置，IF-EVERY 规则链或事件驱动二选一
type SamplingConfig struct {
	IfEvery  []RateConfig   `yaml:"if_every"`
	Policy   string         `yaml:"policy"`
	Refresh  *RefreshConfig `yaml:"refresh"`
	OnEvents []string       `yaml:"on_events"`
}

// RateConfig 一条 IF-EVERY 规则，If 为空表示 TRUE
type RateConfig struct {
	If   string        `yaml:"if"`
	Rate time.Duration `yaml:"rate"`
}

// RefreshConfig 刷新配置，Every 与 Events 二选一，都为空表示 NEVER
type RefreshConfig struct {
	Every  time.Duration `yaml:"every"`
	Events []string      `yaml:"events"`
}

// ExecuteIfConfig EXECUTE IF 配置
type ExecuteIfConfig struct {
	Condition string         `yaml:"condition"`
	Refresh   *RefreshConfig `yaml:"refresh"`
}

// LoadQueryConfig reads and validates a YAML query definition
func LoadQueryConfig(path string) (*QueryConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseQueryConfig(raw)
}

// ParseQueryConfig decodes and validates a YAML query definition
func ParseQueryConfig(raw []byte) (*QueryConfig, error) {
	var cfg QueryConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills the clauses a query may omit
func (c *QueryConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "query"
	}
	if c.Every.IsZero() {
		c.Every = Count(1)
	}
	if c.Upto.IsZero() {
		c.Upto = Count(1)
	}
	if c.Sampling.Policy == "" {
		c.Sampling.Policy = RatePolicySuspend
	}
	for i := range c.Fields {
		if c.Fields[i].Name == "" {
			c.Fields[i].Name = c.Fields[i].Expr
		}
	}
}

// Validate checks the structural rules of a query definition
func (c *QueryConfig) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("%w: at least one field must be selected", ErrInvalidConfig)
	}
	for i, f := range c.Fields {
		if strings.TrimSpace(f.Expr) == "" {
			return fmt.Errorf("%w: field %d has no expression", ErrInvalidConfig, i)
		}
	}
	if c.Default != nil && len(c.Default) != len(c.Fields) {
		return fmt.Errorf("%w: default row has %d values, expected %d", ErrInvalidConfig, len(c.Default), len(c.Fields))
	}
	if g := c.GroupBy; g != nil {
		if g.Period < 0 || g.Buckets < 0 {
			return fmt.Errorf("%w: group by period and buckets must not be negative", ErrInvalidConfig)
		}
		if (g.Period > 0) != (g.Buckets > 0) {
			return fmt.Errorf("%w: group by period and buckets must be set together", ErrInvalidConfig)
		}
		if g.Period == 0 && len(g.Keys) == 0 {
			return fmt.Errorf("%w: group by needs a period or keys", ErrInvalidConfig)
		}
	}
	s := c.Sampling
	switch {
	case len(s.IfEvery) > 0 && len(s.OnEvents) > 0:
		return fmt.Errorf("%w: sampling must be either if_every or on_events", ErrInvalidConfig)
	case len(s.IfEvery) == 0 && len(s.OnEvents) == 0:
		return fmt.Errorf("%w: sampling clause is required", ErrInvalidConfig)
	}
	for i, r := range s.IfEvery {
		if r.Rate <= 0 {
			return fmt.Errorf("%w: if_every rule %d needs a positive rate", ErrInvalidConfig, i)
		}
	}
	if s.Policy != RatePolicySuspend && s.Policy != RatePolicyHold {
		return fmt.Errorf("%w: unknown rate policy %q", ErrInvalidConfig, s.Policy)
	}
	if err := s.Refresh.validate(); err != nil {
		return err
	}
	if c.ExecuteIf != nil {
		if strings.TrimSpace(c.ExecuteIf.Condition) == "" {
			return fmt.Errorf("%w: execute_if needs a condition", ErrInvalidConfig)
		}
		if err := c.ExecuteIf.Refresh.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RefreshConfig) validate() error {
	if r == nil {
		return nil
	}
	if r.Every < 0 {
		return fmt.Errorf("%w: refresh period must not be negative", ErrInvalidConfig)
	}
	if r.Every > 0 && len(r.Events) > 0 {
		return fmt.Errorf("%w: refresh must be either every or events", ErrInvalidConfig)
	}
	return nil
}

// PerformanceConfig 引擎性能配置
type PerformanceConfig struct {
	BufferConfig BufferConfig `yaml:"buffer"`
	WorkerConfig WorkerConfig `yaml:"worker"`
}

// BufferConfig 缓冲区配置
type BufferConfig struct {
	InitialCapacity  int `yaml:"initial_capacity"`   // 样本缓冲区初始容量
	EventChannelSize int `yaml:"event_channel_size"` // 设备事件通道大小
}

// WorkerConfig 工作池配置
type WorkerConfig struct {
	SelectPoolSize    int `yaml:"select_pool_size"`    // 选择任务队列大小
	SelectWorkerCount int `yaml:"select_worker_count"` // 选择任务工作协程数
}

// DefaultPerformanceConfig 默认性能配置
func DefaultPerformanceConfig() PerformanceConfig {
	return PerformanceConfig{
		BufferConfig: BufferConfig{
			InitialCapacity:  64,
			EventChannelSize: 256,
		},
		WorkerConfig: WorkerConfig{
			SelectPoolSize:    128,
			SelectWorkerCount: 4,
		},
	}
}

// HighPerformanceConfig 高吞吐配置预设
func HighPerformanceConfig() PerformanceConfig {
	config := DefaultPerformanceConfig()
	config.BufferConfig.InitialCapacity = 4096
	config.BufferConfig.EventChannelSize = 4096
	config.WorkerConfig.SelectPoolSize = 1024
	config.WorkerConfig.SelectWorkerCount = 16
	return config
}
