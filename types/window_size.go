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

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// WindowKind tells which variant a WindowSize holds
type WindowKind uint8

const (
	// WindowNone is the zero WindowSize, meaning "not configured"
	WindowNone WindowKind = iota
	// WindowCount sizes a window by number of samples (or selections)
	WindowCount
	// WindowDuration sizes a window by elapsed time
	WindowDuration
)

// WindowSize is either Count(n) or Duration(d).
// It sizes EVERY, UPTO, TERMINATE AFTER and history clauses.
type WindowSize struct {
	kind     WindowKind
	count    int
	duration time.Duration
}

// Count creates a sample-count window size
func Count(n int) WindowSize {
	return WindowSize{kind: WindowCount, count: n}
}

// Duration creates a time-based window size
func Duration(d time.Duration) WindowSize {
	return WindowSize{kind: WindowDuration, duration: d}
}

// Kind returns the variant
func (w WindowSize) Kind() WindowKind { return w.kind }

// IsZero reports whether the window size was never set
func (w WindowSize) IsZero() bool { return w.kind == WindowNone }

// IsCount reports whether the window is sample based
func (w WindowSize) IsCount() bool { return w.kind == WindowCount }

// IsDuration reports whether the window is time based
func (w WindowSize) IsDuration() bool { return w.kind == WindowDuration }

// Samples returns the count of a Count window, 0 otherwise
func (w WindowSize) Samples() int { return w.count }

// Period returns the duration of a Duration window, 0 otherwise
func (w WindowSize) Period() time.Duration { return w.duration }

// Equal compares variant and value
func (w WindowSize) Equal(other WindowSize) bool { return w == other }

func (w WindowSize) String() string {
	switch w.kind {
	case WindowCount:
		if w.count == 1 {
			return "1 sample"
		}
		return fmt.Sprintf("%d samples", w.count)
	case WindowDuration:
		return w.duration.String()
	default:
		return "none"
	}
}

// countUnits are the accepted unit words of a count window
var countUnits = map[string]struct{}{
	"sample": {}, "samples": {},
	"selection": {}, "selections": {},
	"record": {}, "records": {},
}

// ParseWindowSize parses "3 samples", "1 selection", a bare count such as "5" or a Go
// duration such as "30ms".
func ParseWindowSize(s string) (WindowSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return WindowSize{}, nil
	}
	parts := strings.Fields(strings.ToLower(s))
	if len(parts) == 2 {
		if _, ok := countUnits[parts[1]]; !ok {
			return WindowSize{}, fmt.Errorf("%w: unknown window unit %q", ErrInvalidConfig, parts[1])
		}
		n, err := cast.ToIntE(parts[0])
		if err != nil || n <= 0 {
			return WindowSize{}, fmt.Errorf("%w: window count must be a positive integer, got %q", ErrInvalidConfig, parts[0])
		}
		return Count(n), nil
	}
	// a bare integer counts samples
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return WindowSize{}, fmt.Errorf("%w: window count must be a positive integer, got %q", ErrInvalidConfig, s)
		}
		return Count(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return WindowSize{}, fmt.Errorf("%w: invalid window size %q", ErrInvalidConfig, s)
	}
	if d <= 0 {
		return WindowSize{}, fmt.Errorf("%w: window duration must be positive, got %s", ErrInvalidConfig, s)
	}
	return Duration(d), nil
}

// UnmarshalYAML decodes a scalar window size
func (w *WindowSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: window size must be a scalar (line %d)", ErrInvalidConfig, value.Line)
	}
	parsed, err := ParseWindowSize(value.Value)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
