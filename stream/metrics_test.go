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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/fpcql/operator"
	"github.com/rulego/fpcql/types"
)

func TestAssessPerformanceLevel(t *testing.T) {
	tests := []struct {
		poolUsage, dropRate float64
		want                string
	}{
		{0, 60, PerformanceLevelCritical},
		{0, 30, PerformanceLevelWarning},
		{95, 0, PerformanceLevelHighLoad},
		{75, 0, PerformanceLevelModerateLoad},
		{10, 1, PerformanceLevelOptimal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AssessPerformanceLevel(tt.poolUsage, tt.dropRate))
	}
}

func TestStatsCollector(t *testing.T) {
	sc := NewStatsCollector()
	for i := 0; i < 4; i++ {
		sc.IncrementInput()
	}
	sc.IncrementAdmitted()
	sc.IncrementAdmitted()
	sc.IncrementFiltered()
	sc.IncrementDropped()
	sc.IncrementPass()
	sc.AddOutput(3)

	basic := sc.GetBasicStats()
	assert.Equal(t, int64(4), basic[InputCount])
	assert.Equal(t, int64(2), basic[AdmittedCount])
	assert.Equal(t, int64(1), basic[FilteredCount])
	assert.Equal(t, int64(1), basic[DroppedCount])
	assert.Equal(t, int64(1), basic[PassCount])
	assert.Equal(t, int64(3), basic[OutputCount])

	basic[SelectPoolLen], basic[SelectPoolCap] = 1, 4
	detailed := sc.GetDetailedStats(basic)
	assert.Equal(t, 50.0, detailed[AdmitRate])
	assert.Equal(t, 25.0, detailed[DropRate])
	assert.Equal(t, 25.0, detailed[SelectPoolUsage])
	assert.Equal(t, 3.0, detailed[RowsPerPass])
	assert.Equal(t, PerformanceLevelWarning, detailed[PerformanceLevel])

	sc.Reset()
	assert.Zero(t, sc.GetInputCount())
	assert.Zero(t, sc.GetOutputCount())
	assert.Equal(t, int64(1), sc.GetPassCount(), "passes survive a reset")
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	again, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, m.Samples, again.Samples, "collectors are shared per registry")

	unregistered, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, unregistered.Rows)
}

func TestQueryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	opts := quiet()
	opts.Metrics = m
	q := newQuery(t, Definition{
		Name:   "metered",
		Select: &operator.Select{Fields: exprs(t, "a")},
		Where:  cond(t, "a > 1"),
		Every:  types.Count(1),
		Events: idle(),
	}, &recorder{}, opts)

	q.ingest(sample(map[string]interface{}{"a": 5}))
	require.NoError(t, q.Start())
	q.ingest(sample(map[string]interface{}{"a": 0}))
	q.ingest(sample(map[string]interface{}{"a": 5}))
	require.Eventually(t, func() bool {
		return testutil.CollectAndCount(m.PassLatency) == 1
	}, waitFor, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Samples.WithLabelValues("metered", OutcomeAdmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Samples.WithLabelValues("metered", OutcomeFiltered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Samples.WithLabelValues("metered", OutcomeDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Passes.WithLabelValues("metered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BufferLength.WithLabelValues("metered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rows.WithLabelValues("metered")))

	detailed := q.DetailedStats()
	assert.Equal(t, "running", detailed[StateName])

	m.Forget("metered")
	assert.Zero(t, testutil.CollectAndCount(m.Passes))
}
