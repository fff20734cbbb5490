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

/*
Package fpcql 是面向 FPC 传感设备的连续查询引擎。

查询以声明方式描述：从设备采样哪些属性、以什么速率采样、在什么条件下执行、
以及每次选择产生哪些结果行。引擎负责采样、缓冲、选择和结果投递。

# 核心特性

• 自适应采样 - IF ... EVERY 规则链按设备状态切换采样速率
• 事件驱动采样 - 每次设备事件触发一次采样
• EXECUTE IF 门控 - 条件不成立时暂停查询，成立时自动恢复
• 窗口选择 - UPTO 限定结果行数，GROUP BY 支持时间分桶和字段分组
• 聚合函数 - COUNT, SUM, AVG, MIN, MAX, FIRST, LAST
• 三值逻辑 - WHERE 和 HAVING 中缺失属性的结果为 UNKNOWN，不会被选中
• 监控 - 查询统计和 Prometheus 指标

# 入门示例

	dev := sim.New()
	dev.SetGenerator("temperature", sim.Sequence(20.5, 21.0, 26.5))

	engine, err := fpcql.New(dev)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	query := `
	name: hot
	fields: [temperature]
	where: temperature > 25
	sampling:
	  if_every:
	    - rate: 1s
	`
	out := sink.NewChannelHandler(16)
	if _, err := engine.ExecuteYAML([]byte(query), out); err != nil {
		panic(err)
	}
	for r := range out.Rows() {
		fmt.Println(r.Map())
	}

# 查询定义

查询定义对应 types.QueryConfig，可以用 YAML 描述：

	name: power_watch
	fields:
	  - {name: room, expr: room}
	  - {name: avg_power, expr: AVG("power")}
	where: power > 0
	every: 5              # 每 5 个样本选择一次，也可写作 2s
	upto: 1m              # 每次选择最多查看 1 分钟的样本
	group_by:
	  keys: [room]
	having: AVG("power") > 100  # 在分组样本上求值
	sampling:
	  policy: suspend     # 没有规则成立时暂停采样，hold 则保持上一个速率
	  refresh: {every: 10s}
	  if_every:
	    - {if: "mode == 'fast'", rate: 100ms}
	    - {rate: 1s}
	execute_if:
	  condition: armed
	  refresh: {events: [arm_changed]}
	terminate_after: 100  # 100 次选择后结束，也可写作 1h

Compile 将定义编译为 stream.Definition，Engine.Execute 创建并启动 stream.Query。

# 结果处理

结果通过 stream.Handler 投递。sink 包提供通道、回调、组合处理器，以及写入
PostgreSQL 的 SQLSink。
*/
package fpcql
