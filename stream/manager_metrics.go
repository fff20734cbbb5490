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

// Stats gets the query statistics (thread-safe)
func (q *Query) Stats() map[string]int64 {
	stats := q.stats.GetBasicStats()
	stats[BufferLen] = int64(q.buffer.Len())
	stats[BufferCap] = int64(q.buffer.Cap())
	stats[Triggered] = int64(q.triggered.Load())
	stats[SelectPoolLen] = int64(q.pool.Len())
	stats[SelectPoolCap] = int64(q.pool.Cap())
	return stats
}

// DetailedStats gets the statistics plus derived rates and the query state
func (q *Query) DetailedStats() map[string]interface{} {
	detailed := q.stats.GetDetailedStats(q.Stats())
	detailed[StateName] = q.State().String()
	return detailed
}

// ResetStats resets the sample and row counters
func (q *Query) ResetStats() {
	q.stats.Reset()
}
