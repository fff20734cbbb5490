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
	"go.uber.org/atomic"
)

// Statistics field constants
const (
	InputCount    = "input_count"
	AdmittedCount = "admitted_count"
	FilteredCount = "filtered_count"
	DroppedCount  = "dropped_count"
	PassCount     = "pass_count"
	OutputCount   = "output_count"
	ErrorCount    = "error_count"
	BufferLen     = "buffer_len"
	BufferCap     = "buffer_cap"
	Triggered     = "triggered"
	SelectPoolLen = "select_pool_len"
	SelectPoolCap = "select_pool_cap"
)

// Detailed statistics field constants
const (
	BasicStats       = "basic_stats"
	StateName        = "state"
	AdmitRate        = "admit_rate"
	DropRate         = "drop_rate"
	SelectPoolUsage  = "select_pool_usage"
	RowsPerPass      = "rows_per_pass"
	PerformanceLevel = "performance_level"
)

// Performance level constants
const (
	PerformanceLevelCritical     = "CRITICAL"
	PerformanceLevelWarning      = "WARNING"
	PerformanceLevelHighLoad     = "HIGH_LOAD"
	PerformanceLevelModerateLoad = "MODERATE_LOAD"
	PerformanceLevelOptimal      = "OPTIMAL"
)

// AssessPerformanceLevel 根据选择任务队列使用率和丢弃率评估性能等级
func AssessPerformanceLevel(poolUsage, dropRate float64) string {
	switch {
	case dropRate > 50:
		return PerformanceLevelCritical
	case dropRate > 20:
		return PerformanceLevelWarning
	case poolUsage > 90:
		return PerformanceLevelHighLoad
	case poolUsage > 70:
		return PerformanceLevelModerateLoad
	default:
		return PerformanceLevelOptimal
	}
}

// StatsCollector counts what a query sees and produces.
// Samples received while the query is not running are dropped, samples WHERE does not
// hold for are filtered.
type StatsCollector struct {
	input    atomic.Int64
	admitted atomic.Int64
	filtered atomic.Int64
	dropped  atomic.Int64
	passes   atomic.Int64
	output   atomic.Int64
	errors   atomic.Int64
}

// NewStatsCollector creates a new statistics collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

func (sc *StatsCollector) IncrementInput()        { sc.input.Inc() }
func (sc *StatsCollector) IncrementAdmitted()     { sc.admitted.Inc() }
func (sc *StatsCollector) IncrementFiltered()     { sc.filtered.Inc() }
func (sc *StatsCollector) IncrementDropped()      { sc.dropped.Inc() }
func (sc *StatsCollector) IncrementError()        { sc.errors.Inc() }
func (sc *StatsCollector) AddOutput(rows int)     { sc.output.Add(int64(rows)) }
func (sc *StatsCollector) IncrementPass() int64   { return sc.passes.Inc() }
func (sc *StatsCollector) GetPassCount() int64    { return sc.passes.Load() }
func (sc *StatsCollector) GetOutputCount() int64  { return sc.output.Load() }
func (sc *StatsCollector) GetInputCount() int64   { return sc.input.Load() }
func (sc *StatsCollector) GetDroppedCount() int64 { return sc.dropped.Load() }

// Reset resets the counters. The pass count is kept: it drives TERMINATE AFTER.
func (sc *StatsCollector) Reset() {
	sc.input.Store(0)
	sc.admitted.Store(0)
	sc.filtered.Store(0)
	sc.dropped.Store(0)
	sc.output.Store(0)
	sc.errors.Store(0)
}

// GetBasicStats gets basic statistics information
func (sc *StatsCollector) GetBasicStats() map[string]int64 {
	return map[string]int64{
		InputCount:    sc.input.Load(),
		AdmittedCount: sc.admitted.Load(),
		FilteredCount: sc.filtered.Load(),
		DroppedCount:  sc.dropped.Load(),
		PassCount:     sc.passes.Load(),
		OutputCount:   sc.output.Load(),
		ErrorCount:    sc.errors.Load(),
	}
}

// GetDetailedStats derives rates from basic statistics
func (sc *StatsCollector) GetDetailedStats(basicStats map[string]int64) map[string]interface{} {
	var poolUsage float64
	if c := basicStats[SelectPoolCap]; c > 0 {
		poolUsage = float64(basicStats[SelectPoolLen]) / float64(c) * 100
	}
	admitRate := 100.0
	dropRate := 0.0
	if in := basicStats[InputCount]; in > 0 {
		admitRate = float64(basicStats[AdmittedCount]) / float64(in) * 100
		dropRate = float64(basicStats[DroppedCount]) / float64(in) * 100
	}
	var rowsPerPass float64
	if p := basicStats[PassCount]; p > 0 {
		rowsPerPass = float64(basicStats[OutputCount]) / float64(p)
	}
	return map[string]interface{}{
		BasicStats:       basicStats,
		AdmitRate:        admitRate,
		DropRate:         dropRate,
		SelectPoolUsage:  poolUsage,
		RowsPerPass:      rowsPerPass,
		PerformanceLevel: AssessPerformanceLevel(poolUsage, dropRate),
	}
}
