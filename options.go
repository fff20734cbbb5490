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
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/utils/timex"
)

// Option 定义引擎的配置选项类型
type Option func(*Engine)

// WithLogger 设置引擎使用的日志记录器，并将其设为全局默认日志记录器
//
// 参数:
//   - log: 日志记录器，例如 logger.NewZapLogger(z)
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
		logger.SetDefault(log)
	}
}

// WithLogLevel 设置日志级别
func WithLogLevel(level logger.Level) Option {
	return func(e *Engine) {
		if e.log != nil {
			e.log.SetLevel(level)
			return
		}
		logger.GetDefault().SetLevel(level)
	}
}

// WithLogOutput 将日志以指定级别写入 w
func WithLogOutput(w io.Writer, level logger.Level) Option {
	return WithLogger(logger.NewLogger(level, w))
}

// WithDiscardLog 禁用日志输出
func WithDiscardLog() Option {
	return WithLogger(logger.NewDiscardLogger())
}

// WithScheduler 设置定时器来源，测试中可使用 timex.NewManual()
func WithScheduler(s timex.Scheduler) Option {
	return func(e *Engine) {
		e.scheduler = s
	}
}

// WithRegisterer 将查询指标注册到指定的 Prometheus 注册器
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithHighPerformance 使用高性能配置
// 适用于大量并发查询或高采样率的场景
func WithHighPerformance() Option {
	return func(e *Engine) {
		e.perf = types.HighPerformanceConfig()
	}
}

// WithCustomPerformance 使用自定义性能配置，未设置的字段保持默认值
func WithCustomPerformance(config types.PerformanceConfig) Option {
	return func(e *Engine) {
		def := types.DefaultPerformanceConfig()
		if config.BufferConfig.InitialCapacity <= 0 {
			config.BufferConfig.InitialCapacity = def.BufferConfig.InitialCapacity
		}
		if config.BufferConfig.EventChannelSize <= 0 {
			config.BufferConfig.EventChannelSize = def.BufferConfig.EventChannelSize
		}
		if config.WorkerConfig.SelectPoolSize <= 0 {
			config.WorkerConfig.SelectPoolSize = def.WorkerConfig.SelectPoolSize
		}
		if config.WorkerConfig.SelectWorkerCount <= 0 {
			config.WorkerConfig.SelectWorkerCount = def.WorkerConfig.SelectWorkerCount
		}
		e.perf = config
	}
}

// WithWorkers 设置选择任务工作池
//
// 参数:
//   - workerCount: 工作协程数
//   - poolSize: 任务队列大小
func WithWorkers(workerCount, poolSize int) Option {
	return func(e *Engine) {
		if workerCount > 0 {
			e.perf.WorkerConfig.SelectWorkerCount = workerCount
		}
		if poolSize > 0 {
			e.perf.WorkerConfig.SelectPoolSize = poolSize
		}
	}
}

// WithBufferSizes 设置样本缓冲区初始容量和设备事件通道大小
func WithBufferSizes(initialCapacity, eventChannelSize int) Option {
	return func(e *Engine) {
		if initialCapacity > 0 {
			e.perf.BufferConfig.InitialCapacity = initialCapacity
		}
		if eventChannelSize > 0 {
			e.perf.BufferConfig.EventChannelSize = eventChannelSize
		}
	}
}
