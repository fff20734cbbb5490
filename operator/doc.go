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

// Package operator evaluates the SELECT clause of a continuous query over a buffer view.
//
// A pass takes the newest UPTO samples of the view (or of each GROUP BY sub-view), drops
// those HAVING does not hold for, and projects the field expressions with the view as the
// aggregation window. Groups are emitted in sub-view order; an empty result is replaced by
// the DEFAULT row when one is configured.
package operator
