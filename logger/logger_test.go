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

package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{OFF, "OFF"},
		{Level(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WARN, &buf)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")

	buf.Reset()
	l.SetLevel(OFF)
	l.Error("silenced")
	assert.Empty(t, buf.String())

	l.SetLevel(DEBUG)
	l.Debug("now visible")
	assert.True(t, strings.Contains(buf.String(), "[DEBUG] now visible"))
}

func TestDefaultLogger(t *testing.T) {
	orig := GetDefault()
	t.Cleanup(func() { SetDefault(orig) })

	var buf bytes.Buffer
	SetDefault(NewLogger(DEBUG, &buf))
	Info("query %s started", "q1")
	assert.Contains(t, buf.String(), "query q1 started")

	SetDefault(nil)
	require.NotNil(t, GetDefault())
	GetDefault().Error("goes nowhere")
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))

	l.Debug("sampler %s started", "s1")
	l.Warn("late notification")
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "sampler s1 started", logs.All()[0].Message)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)

	l.SetLevel(ERROR)
	l.Info("dropped")
	l.Error("kept")
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, "kept", logs.All()[2].Message)

	l.SetLevel(OFF)
	l.Error("dropped too")
	assert.Equal(t, 3, logs.Len())
}
