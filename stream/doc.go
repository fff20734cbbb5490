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
Package stream executes continuous queries over FPC devices.

A Query wires a sampler, a sample buffer and a select evaluator into one state machine:

	Ready -> Initializing -> Running <-> Paused -> Stopped

# Execution

Samples delivered by the sampler while the query runs are tested against WHERE; only
samples for which it is TRUE are buffered. EVERY n SAMPLES counts admitted samples down
with a lock-free counter; EVERY <duration> ticks on the shared scheduler. Each trigger
requests a selection pass on the WorkerPool:

	snapshot buffer -> operator.Select -> release view -> discard expired samples -> Handler.OnRow

Passes of one query never overlap. Triggers arriving while a pass runs collapse into a
single queued pass.

# Gating

EXECUTE IF conditions that depend on attributes are kept live by a sampling.Gate: the
query runs while the condition is TRUE and pauses otherwise. A paused query stops
sampling and the EVERY timer; TERMINATE AFTER <duration> does not count paused time.

# Termination

TERMINATE AFTER n SELECTIONS stops the query right after the n-th pass delivered its
rows. Device failures stop the query and reach Handler.OnError once; a normal stop
reaches Handler.OnComplete once. A stopped query cannot be restarted.

# Monitoring

	stats := query.Stats()          // map[string]int64, see InputCount and friends
	detail := query.DetailedStats() // adds rates and a performance level

Metrics exports the same counters to Prometheus, labelled by query name.
*/
package stream
