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

package types

import "errors"

// Buffer and view contract violations. They are returned to the immediate caller.
var (
	// ErrViewConflict a root view is requested while the previous one is still outstanding
	ErrViewConflict = errors.New("view conflict: previous root view not released")
	// ErrUnreleasedChildren a view is released while it still has live children
	ErrUnreleasedChildren = errors.New("view has unreleased children")
	// ErrViewReleased the view handle was already released
	ErrViewReleased = errors.New("view already released")
	// ErrIndexOutOfRange the requested position lies outside the view
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Device side failures. They stop the affected query and reach the downstream error handler once.
var (
	// ErrDeviceAcquisition the device could not service an acquisition or subscription request
	ErrDeviceAcquisition = errors.New("device acquisition failure")
	// ErrPrematureCompletion a long-lived device task ended without being asked to
	ErrPrematureCompletion = errors.New("premature completion of device task")
	// ErrDeviceError the device reported a failure on an outstanding task
	ErrDeviceError = errors.New("device error")
)

var (
	// ErrQueryStopped the query was stopped and cannot be started again
	ErrQueryStopped = errors.New("query stopped")
	// ErrInvalidConfig the query definition is malformed
	ErrInvalidConfig = errors.New("invalid query config")
)
