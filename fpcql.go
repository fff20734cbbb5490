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
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/stream"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/utils/timex"
)

// ErrEngineClosed 引擎已关闭，不再接受新的查询
var ErrEngineClosed = errors.New("engine closed")

// ErrQueryNotFound 指定名称的查询不存在
var ErrQueryNotFound = errors.New("query not found")

// Engine 是连续查询引擎的主要接口。
// 它持有设备连接、选择任务工作池和监控指标，并管理多个并发运行的查询。
//
// 使用示例:
//
//	engine, err := fpcql.New(dev)
//	q, err := engine.ExecuteYAML(raw, sink.NewChannelHandler(64))
//	defer engine.Close()
type Engine struct {
	device     device.Device
	log        logger.Logger
	scheduler  timex.Scheduler
	registerer prometheus.Registerer
	perf       types.PerformanceConfig

	pool    *stream.WorkerPool
	metrics *stream.Metrics

	mu      sync.Mutex
	queries map[string]*stream.Query
	closed  bool
}

// New 创建一个新的引擎实例。
// 支持通过可选的Option参数进行配置。
//
// 参数:
//   - dev: 查询采样所使用的设备
//   - options: 可变长度的配置选项
//
// 返回值:
//   - *Engine: 新创建的引擎实例
//   - error: 设备为空或监控指标注册失败时返回错误
//
// 示例:
//
//	// 创建默认实例
//	engine, err := fpcql.New(dev)
//
//	// 创建高性能实例并注册Prometheus指标
//	engine, err := fpcql.New(dev, fpcql.WithHighPerformance(), fpcql.WithRegisterer(prometheus.DefaultRegisterer))
func New(dev device.Device, options ...Option) (*Engine, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: engine needs a device", types.ErrInvalidConfig)
	}
	e := &Engine{
		device:  dev,
		perf:    types.DefaultPerformanceConfig(),
		queries: make(map[string]*stream.Query),
	}

	// 应用所有配置选项
	for _, option := range options {
		option(e)
	}
	if e.log == nil {
		e.log = logger.GetDefault()
	}
	if e.scheduler == nil {
		e.scheduler = timex.Default
	}

	metrics, err := stream.NewMetrics(e.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	e.metrics = metrics
	w := e.perf.WorkerConfig
	e.pool = stream.NewWorkerPool(w.SelectWorkerCount, w.SelectPoolSize, e.log)
	return e, nil
}

// Execute 编译并启动一个查询。
// 查询名称在引擎内唯一；已停止的同名查询会被替换。
//
// 参数:
//   - cfg: 查询定义
//   - handler: 接收结果行、错误和完成通知的下游处理器
//
// 返回值:
//   - *stream.Query: 已启动的查询
//   - error: 定义无效、名称冲突或启动失败时返回错误
func (e *Engine) Execute(cfg *types.QueryConfig, handler stream.Handler) (*stream.Query, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil query config", types.ErrInvalidConfig)
	}
	def, err := Compile(cfg)
	if err != nil {
		return nil, fmt.Errorf("compile query %q: %w", cfg.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if old, ok := e.queries[def.Name]; ok && old.State() != stream.Stopped {
		return nil, fmt.Errorf("%w: query %q is already running", types.ErrInvalidConfig, def.Name)
	}

	q, err := stream.NewQuery(def, handler, stream.Options{
		Device:          e.device,
		Pool:            e.pool,
		Scheduler:       e.scheduler,
		Logger:          e.log,
		Metrics:         e.metrics,
		InitialCapacity: e.perf.BufferConfig.InitialCapacity,
		EventBuffer:     e.perf.BufferConfig.EventChannelSize,
	})
	if err != nil {
		return nil, err
	}
	if err := q.Start(); err != nil {
		e.metrics.Forget(def.Name)
		return nil, err
	}
	e.queries[def.Name] = q
	e.log.Info("query %s started", def.Name)
	return q, nil
}

// ExecuteYAML 解析YAML格式的查询定义并启动查询
func (e *Engine) ExecuteYAML(raw []byte, handler stream.Handler) (*stream.Query, error) {
	cfg, err := types.ParseQueryConfig(raw)
	if err != nil {
		return nil, err
	}
	return e.Execute(cfg, handler)
}

// Query 按名称查找查询
func (e *Engine) Query(name string) (*stream.Query, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queries[name]
	return q, ok
}

// Queries 返回所有查询名称，按字母排序
func (e *Engine) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.queries))
	for name := range e.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop 停止并移除指定查询，同时清理其监控指标
func (e *Engine) Stop(name string) error {
	e.mu.Lock()
	q, ok := e.queries[name]
	delete(e.queries, name)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrQueryNotFound, name)
	}
	q.Stop()
	e.metrics.Forget(name)
	return nil
}

// Close 停止所有查询并关闭工作池。可重复调用。
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	queries := e.queries
	e.queries = make(map[string]*stream.Query)
	e.mu.Unlock()

	for name, q := range queries {
		q.Stop()
		e.metrics.Forget(name)
	}
	e.pool.Close()
	e.log.Info("engine closed, %d queries stopped", len(queries))
}

// GetStats 返回每个查询的详细统计信息，以及工作池的状态
//
// 返回值:
//   - map[string]map[string]interface{}: 查询名称到统计信息的映射，键 "" 为引擎级统计
func (e *Engine) GetStats() map[string]map[string]interface{} {
	e.mu.Lock()
	queries := make(map[string]*stream.Query, len(e.queries))
	for name, q := range e.queries {
		queries[name] = q
	}
	e.mu.Unlock()

	out := make(map[string]map[string]interface{}, len(queries)+1)
	for name, q := range queries {
		out[name] = q.DetailedStats()
	}
	out[""] = map[string]interface{}{
		stream.SelectPoolLen: int64(e.pool.Len()),
		stream.SelectPoolCap: int64(e.pool.Cap()),
		"pool_overflows":     e.pool.Overflows(),
		"pool_panics":        e.pool.Panics(),
	}
	return out
}

// Device 返回引擎使用的设备
func (e *Engine) Device() device.Device { return e.device }
