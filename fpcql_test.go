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
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/fpcql/device/sim"
	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/sink"
	"github.com/rulego/fpcql/stream"
	"github.com/rulego/fpcql/types"
)

const waitFor = 2 * time.Second

func newEngine(t *testing.T, options ...Option) (*Engine, *sim.Device) {
	t.Helper()
	dev := sim.New(sim.WithLogger(logger.NewDiscardLogger()))
	e, err := New(dev, append([]Option{WithLogger(logger.NewDiscardLogger())}, options...)...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, dev
}

const hotQuery = `
name: hot
fields:
  - {name: temp, expr: temperature}
where: temperature > 25
sampling:
  if_every:
    - rate: 10ms
`

func TestEngineExecuteYAML(t *testing.T) {
	e, dev := newEngine(t)
	dev.SetGenerator("temperature", sim.Sequence(20.5, 26.5))

	out := sink.NewChannelHandler(16)
	q, err := e.ExecuteYAML([]byte(hotQuery), out)
	require.NoError(t, err)
	assert.Equal(t, "hot", q.Name())
	assert.Equal(t, []string{"temp"}, q.Columns())

	select {
	case r := <-out.Rows():
		assert.Equal(t, "hot", r.Query)
		assert.Equal(t, map[string]interface{}{"temp": 26.5}, r.Map())
	case <-time.After(waitFor):
		t.Fatal("no row received")
	}

	got, ok := e.Query("hot")
	require.True(t, ok)
	assert.Same(t, q, got)
	assert.Equal(t, []string{"hot"}, e.Queries())
}

func TestEngineDuplicateName(t *testing.T) {
	e, dev := newEngine(t)
	dev.Set("temperature", 30)

	_, err := e.ExecuteYAML([]byte(hotQuery), sink.NewChannelHandler(16))
	require.NoError(t, err)
	_, err = e.ExecuteYAML([]byte(hotQuery), sink.NewChannelHandler(16))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))

	t.Run("已停止的同名查询可以替换", func(t *testing.T) {
		q, _ := e.Query("hot")
		q.Stop()
		q2, err := e.ExecuteYAML([]byte(hotQuery), sink.NewChannelHandler(16))
		require.NoError(t, err)
		assert.NotSame(t, q, q2)
	})
}

func TestEngineStop(t *testing.T) {
	e, dev := newEngine(t)
	dev.Set("temperature", 30)

	out := sink.NewChannelHandler(64)
	q, err := e.ExecuteYAML([]byte(hotQuery), out)
	require.NoError(t, err)

	require.NoError(t, e.Stop("hot"))
	assert.Equal(t, stream.Stopped, q.State())
	select {
	case <-out.Done():
	case <-time.After(waitFor):
		t.Fatal("completion not delivered")
	}
	assert.Empty(t, e.Queries())

	err = e.Stop("hot")
	assert.True(t, errors.Is(err, ErrQueryNotFound))
}

func TestEngineClose(t *testing.T) {
	e, dev := newEngine(t)
	dev.Set("temperature", 30)

	q, err := e.ExecuteYAML([]byte(hotQuery), sink.NewChannelHandler(64))
	require.NoError(t, err)
	e.Close()
	e.Close()
	assert.Equal(t, stream.Stopped, q.State())

	_, err = e.ExecuteYAML([]byte(hotQuery), sink.NewChannelHandler(16))
	assert.True(t, errors.Is(err, ErrEngineClosed))
}

func TestEngineExecuteErrors(t *testing.T) {
	e, dev := newEngine(t)

	t.Run("无效YAML", func(t *testing.T) {
		_, err := e.ExecuteYAML([]byte("fields: [a"), sink.NewChannelHandler(1))
		assert.True(t, errors.Is(err, types.ErrInvalidConfig))
	})
	t.Run("空配置", func(t *testing.T) {
		_, err := e.Execute(nil, sink.NewChannelHandler(1))
		assert.True(t, errors.Is(err, types.ErrInvalidConfig))
	})
	t.Run("设备拒绝采集", func(t *testing.T) {
		dev.FailAcquisitions(errors.New("bus busy"))
		defer dev.FailAcquisitions(nil)
		_, err := e.ExecuteYAML([]byte(hotQuery), sink.NewChannelHandler(1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrDeviceAcquisition))
		_, ok := e.Query("hot")
		assert.False(t, ok)
	})
	t.Run("没有设备", func(t *testing.T) {
		_, err := New(nil)
		assert.True(t, errors.Is(err, types.ErrInvalidConfig))
	})
}

func TestEngineTerminateAfter(t *testing.T) {
	e, dev := newEngine(t)
	dev.Set("level", 3)

	out := sink.NewChannelHandler(16)
	_, err := e.ExecuteYAML([]byte(`
name: bounded
fields: [level]
terminate_after: 3
sampling: {if_every: [{rate: 5ms}]}
`), out)
	require.NoError(t, err)

	select {
	case <-out.Done():
	case <-time.After(waitFor):
		t.Fatal("query did not terminate")
	}
	assert.Len(t, out.Rows(), 3)
}

func TestEngineStatsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, dev := newEngine(t, WithRegisterer(reg), WithWorkers(2, 8))
	dev.Set("temperature", 30)

	out := sink.NewChannelHandler(64)
	_, err := e.ExecuteYAML([]byte(hotQuery), out)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(out.Rows()) >= 2 }, waitFor, 5*time.Millisecond)

	stats := e.GetStats()
	require.Contains(t, stats, "hot")
	assert.Equal(t, "running", stats["hot"][stream.StateName])
	assert.Equal(t, int64(8), stats[""][stream.SelectPoolCap])
	n, err := testutil.GatherAndCount(reg, "fpcql_samples_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestOptions(t *testing.T) {
	dev := sim.New(sim.WithLogger(logger.NewDiscardLogger()))
	defaultLogger := logger.GetDefault()
	t.Cleanup(func() { logger.SetDefault(defaultLogger) })

	t.Run("默认配置", func(t *testing.T) {
		e, err := New(dev)
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, types.DefaultPerformanceConfig(), e.perf)
		assert.NotNil(t, e.log)
		assert.NotNil(t, e.scheduler)
	})

	t.Run("高性能配置", func(t *testing.T) {
		e, err := New(dev, WithHighPerformance())
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, types.HighPerformanceConfig(), e.perf)
		assert.Equal(t, 1024, e.pool.Cap())
	})

	t.Run("自定义配置补齐默认值", func(t *testing.T) {
		e, err := New(dev, WithCustomPerformance(types.PerformanceConfig{
			BufferConfig: types.BufferConfig{InitialCapacity: 10},
		}))
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, 10, e.perf.BufferConfig.InitialCapacity)
		assert.Equal(t, types.DefaultPerformanceConfig().WorkerConfig, e.perf.WorkerConfig)
	})

	t.Run("缓冲区和工作池", func(t *testing.T) {
		e, err := New(dev, WithBufferSizes(32, 0), WithWorkers(0, 16))
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, 32, e.perf.BufferConfig.InitialCapacity)
		assert.Equal(t, 256, e.perf.BufferConfig.EventChannelSize)
		assert.Equal(t, 4, e.perf.WorkerConfig.SelectWorkerCount)
		assert.Equal(t, 16, e.pool.Cap())
	})

	t.Run("日志输出", func(t *testing.T) {
		var buf bytes.Buffer
		e, err := New(dev, WithLogOutput(&buf, logger.INFO))
		require.NoError(t, err)
		e.Close()
		assert.Contains(t, buf.String(), "engine closed")
		assert.Same(t, e.log, logger.GetDefault())
	})

	t.Run("日志级别", func(t *testing.T) {
		var buf bytes.Buffer
		e, err := New(dev, WithLogOutput(&buf, logger.INFO), WithLogLevel(logger.ERROR))
		require.NoError(t, err)
		e.Close()
		assert.Empty(t, buf.String())
	})

	t.Run("禁用日志", func(t *testing.T) {
		e, err := New(dev, WithDiscardLog())
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, logger.NewDiscardLogger(), e.log)
	})
}
