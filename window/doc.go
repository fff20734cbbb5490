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
Package window provides the sample buffer of a continuous query and the view tree
that selection passes read it through.

# Buffer

A Buffer is append-only and growable. Appends take a short lock; growth doubles the
backing array and copies the old prefix outside the lock, so writers are never
blocked for long.

	buf := window.NewBuffer(64)
	buf.Append(types.NewSample(ts, map[string]interface{}{"temp": 21.5}))

# Views

Snapshot freezes the buffered samples, sorts them by timestamp and returns the root
View. Only one root view may be outstanding; a second Snapshot fails with
types.ErrViewConflict until the first is released.

Views form a strict tree kept in an arena indexed by handle. A view cannot be released
while it has live sub-views:

	root, _ := buf.Snapshot()
	last3s, _ := root.SubViewDuration(3 * time.Second)
	root.Release()   // types.ErrUnreleasedChildren
	last3s.Release()
	root.Release()   // ok, the buffer may snapshot again

# Grouping

GroupByTime builds cumulative buckets anchored at the newest sample, GroupByKeys
partitions a view by evaluated key tuples. Both return child views the caller must
release.
*/
package window
