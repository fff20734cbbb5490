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
Package types provides the shared data model of fpcql.

# Core Types

	Sample      // one device acquisition: timestamp + attribute values
	Row         // one output row, ordered like the SELECT list
	WindowSize  // Count(n) | Duration(d), sizes EVERY / UPTO / TERMINATE AFTER

# Query Definitions

QueryConfig is the declarative form of a continuous query, usually loaded from YAML:

	name: temperature
	fields: [room, temp]
	where: temp > 0
	every: 1 sample
	upto: 10s
	sampling:
	  if_every:
	    - if: power > 80
	      rate: 100ms
	    - rate: 1s
	  refresh:
	    every: 10s
	terminate_after: 3 selections

# Errors

Buffer and view contract violations (ErrViewConflict, ErrUnreleasedChildren, ErrIndexOutOfRange)
are returned to the caller. Device failures (ErrDeviceAcquisition, ErrDeviceError,
ErrPrematureCompletion) stop the query and reach its error handler once.
*/
package types
